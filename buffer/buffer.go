// Package buffer implements the root aggregator for temporal
// accumulator buffers. A buffer gathers one channel's block per cycle
// and applies its default processing step plus an optional ordered chain
// of further steps; the root folds all registered buffers into a single
// accumulated output and limits it once per cycle.
package buffer

import (
	"errors"

	"github.com/rs/xid"

	"github.com/pipelined/pulse/token"
)

var (
	// ErrInvalidBuffer is returned when a nil buffer is registered.
	ErrInvalidBuffer = errors.New("invalid buffer")
	// ErrAlreadyRegistered is returned when the buffer is already part
	// of the root. Informational, not fatal.
	ErrAlreadyRegistered = errors.New("buffer already registered")
	// ErrIncompatibleToken is returned when a processor or child buffer
	// token does not match the target's token.
	ErrIncompatibleToken = errors.New("incompatible processing token")
	// ErrAccessDenied is returned on a cross-aggregator read without a
	// recorded grant.
	ErrAccessDenied = errors.New("cross access denied")
)

// Processor is one processing step of a buffer. Process runs once per
// cycle and must return within it.
type Processor interface {
	// Process mutates the buffer's block in place.
	Process(b *Buffer) error
	// OnAttach validates the processor against the buffer it is being
	// attached to.
	OnAttach(b *Buffer) error
	// Token returns the processing token the processor requires.
	Token() token.Buffer
}

// Buffer is one channel's block of samples for a processing domain. Its
// token is resolved at creation time and fixed for its lifetime.
type Buffer struct {
	id      string
	token   token.Buffer
	channel uint32
	data    []float64
	hasData bool

	defaultProc Processor
	chain       []Processor
}

// New returns a buffer for the token and channel with a block of the
// provided size. The token is validated at creation: axis conflicts are
// configuration errors and refuse the buffer.
func New(tok token.Buffer, channel uint32, size int) (*Buffer, error) {
	if err := tok.Validate(); err != nil {
		return nil, err
	}
	return &Buffer{
		id:      xid.New().String(),
		token:   tok,
		channel: channel,
		data:    make([]float64, size),
	}, nil
}

// ID returns the buffer's unique id.
func (b *Buffer) ID() string { return b.id }

// Token returns the processing token of the buffer.
func (b *Buffer) Token() token.Buffer { return b.token }

// Channel returns the channel index of the buffer.
func (b *Buffer) Channel() uint32 { return b.channel }

// Data exposes the buffer's block. The slice is owned by the buffer.
func (b *Buffer) Data() []float64 { return b.data }

// Size returns the block size.
func (b *Buffer) Size() int { return len(b.data) }

// Write copies samples into the block and marks the cycle's data as
// present. Samples beyond the block size are dropped.
func (b *Buffer) Write(samples []float64) {
	n := copy(b.data, samples)
	for i := n; i < len(b.data); i++ {
		b.data[i] = 0
	}
	b.hasData = true
}

// HasData reports whether the buffer produced data this cycle.
func (b *Buffer) HasData() bool { return b.hasData }

// Clear zeroes the block and drops the cycle mark.
func (b *Buffer) Clear() {
	for i := range b.data {
		b.data[i] = 0
	}
	b.hasData = false
}

// Resize grows or shrinks the block.
func (b *Buffer) Resize(size int) {
	if size == len(b.data) {
		return
	}
	data := make([]float64, size)
	copy(data, b.data)
	b.data = data
}

// SetDefault attaches the buffer's default processing step, its natural
// accumulation behaviour. Token compatibility is enforced strictly.
func (b *Buffer) SetDefault(p Processor) error {
	if err := b.attach(p); err != nil {
		return err
	}
	b.defaultProc = p
	return nil
}

// Default returns the default processing step.
func (b *Buffer) Default() Processor { return b.defaultProc }

// AppendToChain appends a step to the buffer's processing chain. Chain
// steps run strictly in registration order, after the default step.
func (b *Buffer) AppendToChain(p Processor) error {
	if err := b.attach(p); err != nil {
		return err
	}
	b.chain = append(b.chain, p)
	return nil
}

// ChainLen returns the number of chained steps.
func (b *Buffer) ChainLen() int { return len(b.chain) }

func (b *Buffer) attach(p Processor) error {
	if p == nil {
		return ErrInvalidBuffer
	}
	if p.Token() != b.token {
		return ErrIncompatibleToken
	}
	return p.OnAttach(b)
}

// process runs the default step, then the chain in order.
func (b *Buffer) process() error {
	if b.defaultProc != nil {
		if err := b.defaultProc.Process(b); err != nil {
			return err
		}
		b.hasData = true
	}
	for _, p := range b.chain {
		if err := p.Process(b); err != nil {
			return err
		}
	}
	return nil
}

// Proc adapts a function to the Processor interface.
type Proc struct {
	tok token.Buffer
	fn  func(b *Buffer) error
}

// NewProc wraps fn into a processor bound to the token.
func NewProc(tok token.Buffer, fn func(b *Buffer) error) *Proc {
	return &Proc{tok: tok, fn: fn}
}

// Process calls the adapted function.
func (p *Proc) Process(b *Buffer) error { return p.fn(b) }

// OnAttach accepts any buffer; token compatibility is checked by the
// buffer itself.
func (p *Proc) OnAttach(*Buffer) error { return nil }

// Token returns the token the processor was bound to.
func (p *Proc) Token() token.Buffer { return p.tok }
