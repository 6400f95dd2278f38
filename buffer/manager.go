package buffer

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pipelined/pulse/log"
	"github.com/pipelined/pulse/token"
)

// DefaultBlockSize is the block size of lazily created roots.
const DefaultBlockSize = 512

// Manager creates buffer roots on demand and routes child churn,
// processing and cross-aggregator reads. At most one root exists per
// (token, channel) pair for the lifetime of the manager.
type Manager struct {
	mu        sync.Mutex
	roots     map[rootKey]*Root
	inputs    map[*Root]*Buffer
	grants    map[grantKey]struct{}
	blockSize int
	logger    log.Logger
}

type rootKey struct {
	token   token.Buffer
	channel uint32
}

type grantKey struct {
	requester token.Buffer
	target    token.Buffer
}

// ManagerOption provides a way to set optional manager parameters.
type ManagerOption func(*Manager)

// WithBlockSize sets the block size of roots the manager creates.
func WithBlockSize(size int) ManagerOption {
	return func(m *Manager) {
		m.blockSize = size
	}
}

// WithManagerLogger sets logger to the manager and to every root it
// creates.
func WithManagerLogger(logger log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns a manager with no roots.
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		roots:     make(map[rootKey]*Root),
		grants:    make(map[grantKey]struct{}),
		blockSize: DefaultBlockSize,
		logger:    log.Silent(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// BlockSize returns the block size of the manager's roots.
func (m *Manager) BlockSize() int { return m.blockSize }

// SetupChannels creates the roots for channels 0..channels-1 under the
// token. Idempotent for existing roots.
func (m *Manager) SetupChannels(tok token.Buffer, channels uint32) error {
	for c := uint32(0); c < channels; c++ {
		if _, err := m.Root(tok, c); err != nil {
			return err
		}
	}
	return nil
}

// Root returns the root for the (token, channel) pair, creating it on
// first use. Token validation happens at creation, so an invalid token
// never owns a root.
func (m *Manager) Root(tok token.Buffer, channel uint32) (*Root, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rootKey{token: tok, channel: channel}
	if r, ok := m.roots[key]; ok {
		return r, nil
	}
	r, err := NewRoot(tok, channel, m.blockSize, WithLogger(m.logger))
	if err != nil {
		return nil, err
	}
	m.roots[key] = r
	return r, nil
}

// AddChild registers a buffer under the (token, channel) root.
func (m *Manager) AddChild(tok token.Buffer, channel uint32, b *Buffer) error {
	r, err := m.Root(tok, channel)
	if err != nil {
		return err
	}
	return r.AddChild(b)
}

// RemoveChild removes a buffer from the (token, channel) root. Safe
// no-op if the root or the buffer is absent.
func (m *Manager) RemoveChild(tok token.Buffer, channel uint32, b *Buffer) {
	m.mu.Lock()
	r, ok := m.roots[rootKey{token: tok, channel: channel}]
	m.mu.Unlock()
	if ok {
		r.RemoveChild(b)
	}
}

// ProcessChannel runs one cycle of the (token, channel) root and returns
// its accumulated block.
func (m *Manager) ProcessChannel(tok token.Buffer, channel uint32) ([]float64, error) {
	r, err := m.Root(tok, channel)
	if err != nil {
		return nil, err
	}
	return r.ProcessCycle(), nil
}

// ProcessChannelWithNodeData folds the unit aggregates into the channel
// root before running the cycle.
func (m *Manager) ProcessChannelWithNodeData(tok token.Buffer, channel uint32, nodeData []float64) ([]float64, error) {
	r, err := m.Root(tok, channel)
	if err != nil {
		return nil, err
	}
	r.SetNodeOutput(nodeData)
	return r.ProcessCycle(), nil
}

// ProcessToken runs one cycle of every root registered under the token,
// in channel order.
func (m *Manager) ProcessToken(tok token.Buffer) {
	for _, r := range m.tokenRoots(tok) {
		r.ProcessCycle()
	}
}

// ProcessInput distributes one interleaved block from a backend into
// per-channel input buffers and registers them under the token's roots.
// The buffers persist across calls and are overwritten each cycle.
func (m *Manager) ProcessInput(tok token.Buffer, interleaved []float64, channels uint32) error {
	if channels == 0 {
		return nil
	}
	frames := len(interleaved) / int(channels)
	block := make([]float64, frames)
	for c := uint32(0); c < channels; c++ {
		for f := 0; f < frames; f++ {
			block[f] = interleaved[f*int(channels)+int(c)]
		}
		r, err := m.Root(tok, c)
		if err != nil {
			return err
		}
		in, err := m.inputBuffer(r)
		if err != nil {
			return err
		}
		in.Write(block)
	}
	return nil
}

// inputBuffer returns the root's dedicated backend input buffer,
// creating and registering it on first use.
func (m *Manager) inputBuffer(r *Root) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inputs == nil {
		m.inputs = make(map[*Root]*Buffer)
	}
	if b, ok := m.inputs[r]; ok {
		return b, nil
	}
	b, err := New(r.token, r.channel, r.Size())
	if err != nil {
		return nil, err
	}
	if err := r.AddChild(b); err != nil {
		return nil, err
	}
	m.inputs[r] = b
	return b, nil
}

// Reset drops every root of the token along with its backend input
// buffer. New calls create fresh roots.
func (m *Manager) Reset(tok token.Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, r := range m.roots {
		if key.token == tok {
			delete(m.inputs, r)
			delete(m.roots, key)
		}
	}
}

// Channels returns the sorted channel indexes that have a root under the
// token.
func (m *Manager) Channels(tok token.Buffer) []uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	channels := make([]uint32, 0, len(m.roots))
	for key := range m.roots {
		if key.token == tok {
			channels = append(channels, key.channel)
		}
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })
	return channels
}

// Allow grants the requester token read access to the target token's
// roots. Access is deny-by-default; only an explicit grant opens it.
func (m *Manager) Allow(requester, target token.Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grantKey{requester: requester, target: target}] = struct{}{}
}

// Revoke removes a previously recorded grant.
func (m *Manager) Revoke(requester, target token.Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, grantKey{requester: requester, target: target})
}

// Read returns a copy of the target root's accumulated block for a
// reader operating under the requester token. The grant is checked on
// every read; same-token reads are always allowed.
func (m *Manager) Read(requester, target token.Buffer, channel uint32) ([]float64, error) {
	m.mu.Lock()
	_, granted := m.grants[grantKey{requester: requester, target: target}]
	r, ok := m.roots[rootKey{token: target, channel: channel}]
	m.mu.Unlock()
	if requester != target && !granted {
		return nil, fmt.Errorf("%w: %v reading %v", ErrAccessDenied, requester, target)
	}
	if !ok {
		return nil, fmt.Errorf("no root for %v channel %d", target, channel)
	}
	out := make([]float64, len(r.output))
	copy(out, r.output)
	return out, nil
}

func (m *Manager) tokenRoots(tok token.Buffer) []*Root {
	m.mu.Lock()
	defer m.mu.Unlock()
	roots := make([]*Root, 0, len(m.roots))
	for key, r := range m.roots {
		if key.token == tok {
			roots = append(roots, r)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].channel < roots[j].channel })
	return roots
}
