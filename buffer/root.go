package buffer

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/pipelined/pulse/internal/pending"
	"github.com/pipelined/pulse/log"
	"github.com/pipelined/pulse/token"
)

// Soft-knee limiter parameters applied once per cycle on the root's
// accumulated output.
const (
	limiterThreshold = 0.95
	limiterKnee      = 0.1
)

// Root owns all buffers registered under one (token, channel) pair and
// folds them into a single accumulated block per cycle. Like the unit
// root, it is single-writer: the driving context processes it and any
// other context's child churn is deferred to the next cycle boundary.
type Root struct {
	id      string
	token   token.Buffer
	channel uint32

	children   []*Buffer
	output     []float64
	nodeOutput []float64
	processing atomic.Bool
	pending    pending.Queue[*Buffer]

	logger log.Logger
}

// RootOption provides a way to set optional root parameters.
type RootOption func(*Root)

// WithLogger sets logger to the root. If this option is not provided,
// silent logger is used.
func WithLogger(logger log.Logger) RootOption {
	return func(r *Root) {
		r.logger = logger
	}
}

// NewRoot returns a root for the token and channel with a block of the
// provided size.
func NewRoot(tok token.Buffer, channel uint32, size int, options ...RootOption) (*Root, error) {
	if err := tok.Validate(); err != nil {
		return nil, err
	}
	r := &Root{
		id:      xid.New().String(),
		token:   tok,
		channel: channel,
		output:  make([]float64, size),
		logger:  log.Silent(),
	}
	for _, option := range options {
		option(r)
	}
	return r, nil
}

// ID returns the root's unique id.
func (r *Root) ID() string { return r.id }

// Token returns the processing token of the root.
func (r *Root) Token() token.Buffer { return r.token }

// Channel returns the channel index of the root.
func (r *Root) Channel() uint32 { return r.channel }

// Size returns the block size.
func (r *Root) Size() int { return len(r.output) }

// Len returns the number of registered children, pending changes
// excluded.
func (r *Root) Len() int { return len(r.children) }

// Output exposes the accumulated block of the last cycle. The slice is
// owned by the root.
func (r *Root) Output() []float64 { return r.output }

// AddChild registers a buffer under the root. The child's token must
// equal the root's token exactly; near misses are refused, not coerced.
// When called while a cycle is in flight, the addition is queued and
// applied at the next cycle boundary.
func (r *Root) AddChild(b *Buffer) error {
	if b == nil {
		return ErrInvalidBuffer
	}
	if b.token != r.token {
		return fmt.Errorf("%w: child %v, root %v", ErrIncompatibleToken, b.token, r.token)
	}
	if r.processing.Load() {
		if r.pending.Push(b, true) {
			return nil
		}
		r.awaitBoundary()
	}
	return r.add(b)
}

// RemoveChild removes a buffer from the root. Safe no-op if absent;
// mid-cycle removals are deferred to the next cycle boundary.
func (r *Root) RemoveChild(b *Buffer) {
	if b == nil {
		return
	}
	if r.processing.Load() {
		if r.pending.Push(b, false) {
			return
		}
		r.awaitBoundary()
	}
	r.remove(b)
}

// SetNodeOutput hands the unit aggregates of the current cycle to the
// root. The block is folded into the accumulated output before the
// children are.
func (r *Root) SetNodeOutput(samples []float64) {
	if r.nodeOutput == nil {
		r.nodeOutput = make([]float64, len(r.output))
	}
	n := copy(r.nodeOutput, samples)
	for i := n; i < len(r.nodeOutput); i++ {
		r.nodeOutput[i] = 0
	}
}

// ProcessCycle runs one full cycle: deferred child churn is drained at
// the boundary, each child runs its default step and its chain in
// registration order, active children are averaged into the accumulated
// output on top of the unit aggregates, and the final limiter is applied
// exactly once. A child fault is journaled and the child contributes
// silence for the cycle.
func (r *Root) ProcessCycle() []float64 {
	if !r.processing.CompareAndSwap(false, true) {
		return r.output
	}
	r.pending.Drain(func(b *Buffer, add bool) {
		if add {
			_ = r.add(b)
		} else {
			r.remove(b)
		}
	})

	for _, b := range r.children {
		if err := r.processChild(b); err != nil {
			r.logger.Error(fmt.Sprintf("root %s channel %d: buffer %s fault: %v", r.id, r.channel, b.id, err))
			b.Clear()
		}
	}

	for i := range r.output {
		r.output[i] = 0
	}
	if r.nodeOutput != nil {
		copy(r.output, r.nodeOutput)
	}

	active := 0
	for _, b := range r.children {
		if b.hasData {
			active++
		}
	}
	if active > 0 {
		norm := 1 / float64(active)
		for _, b := range r.children {
			if !b.hasData {
				continue
			}
			for i, sample := range b.data {
				if i >= len(r.output) {
					break
				}
				r.output[i] += sample * norm
			}
		}
	}

	for i, sample := range r.output {
		r.output[i] = limit(sample)
	}

	for _, b := range r.children {
		b.hasData = false
	}
	r.processing.Store(false)
	return r.output
}

// processChild runs one child's steps. A panic inside a processor is
// caught at the child boundary so siblings keep processing.
func (r *Root) processChild(b *Buffer) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("processor panic: %v", rec)
		}
	}()
	return b.process()
}

// limit applies a tanh soft knee above the threshold. Samples below the
// knee region pass through untouched.
func limit(sample float64) float64 {
	abs := math.Abs(sample)
	if abs <= limiterThreshold-limiterKnee {
		return sample
	}
	excess := abs - (limiterThreshold - limiterKnee)
	shaped := limiterThreshold - limiterKnee + limiterKnee*math.Tanh(excess/limiterKnee)
	if sample < 0 {
		return -shaped
	}
	return shaped
}

// awaitBoundary spins until the in-flight cycle releases the root. Only
// reached when the pending queue overflows within one cycle.
func (r *Root) awaitBoundary() {
	for r.processing.Load() {
		runtime.Gosched()
	}
}

func (r *Root) add(b *Buffer) error {
	for _, child := range r.children {
		if child == b {
			return ErrAlreadyRegistered
		}
	}
	if b.Size() != len(r.output) {
		b.Resize(len(r.output))
	}
	r.children = append(r.children, b)
	return nil
}

func (r *Root) remove(b *Buffer) {
	for i, child := range r.children {
		if child == b {
			r.children = append(r.children[:i], r.children[i+1:]...)
			return
		}
	}
}
