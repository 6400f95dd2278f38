package node

import (
	"sort"
	"sync"

	"github.com/pipelined/pulse/log"
	"github.com/pipelined/pulse/token"
)

// Manager creates roots on demand and routes registration and
// processing calls. At most one root exists per (token, channel) pair
// for the lifetime of the manager.
type Manager struct {
	mu     sync.Mutex
	roots  map[rootKey]*Root
	logger log.Logger
}

type rootKey struct {
	token   token.Unit
	channel uint32
}

// ManagerOption provides a way to set optional manager parameters.
type ManagerOption func(*Manager)

// WithManagerLogger sets logger to the manager and to every root it
// creates.
func WithManagerLogger(logger log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager returns a manager with no roots. Roots are created lazily
// on first registration to their slot.
func NewManager(options ...ManagerOption) *Manager {
	m := &Manager{
		roots:  make(map[rootKey]*Root),
		logger: log.Silent(),
	}
	for _, option := range options {
		option(m)
	}
	return m
}

// Root returns the root for the (token, channel) pair, creating it on
// first use.
func (m *Manager) Root(tok token.Unit, channel uint32) *Root {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := rootKey{token: tok, channel: channel}
	if r, ok := m.roots[key]; ok {
		return r
	}
	r := NewRoot(tok, channel, WithLogger(m.logger))
	m.roots[key] = r
	return r
}

// Register adds a unit under the (token, channel) pair.
func (m *Manager) Register(tok token.Unit, channel uint32, n Node) error {
	return m.Root(tok, channel).Register(n)
}

// Unregister removes a unit from the (token, channel) pair. Safe no-op
// if the unit or the slot is absent.
func (m *Manager) Unregister(tok token.Unit, channel uint32, n Node) {
	m.mu.Lock()
	r, ok := m.roots[rootKey{token: tok, channel: channel}]
	m.mu.Unlock()
	if ok {
		r.Unregister(n)
	}
}

// ProcessSample evaluates one cycle of the (token, channel) root.
func (m *Manager) ProcessSample(tok token.Unit, channel uint32) float64 {
	return m.Root(tok, channel).ProcessSample()
}

// ProcessChannel evaluates n cycles of the (token, channel) root and
// returns the aggregates.
func (m *Manager) ProcessChannel(tok token.Unit, channel uint32, n uint64) []float64 {
	return m.Root(tok, channel).ProcessBlock(n)
}

// ProcessToken evaluates n cycles of every root registered under the
// token. Outputs are discarded; use ProcessChannel when the aggregate
// feeds a buffer.
func (m *Manager) ProcessToken(tok token.Unit, n uint64) {
	for _, r := range m.tokenRoots(tok) {
		for i := uint64(0); i < n; i++ {
			r.ProcessSample()
		}
	}
}

// Reset drops every root of the token. In-flight cycles finish on the
// dropped roots; new calls create fresh ones.
func (m *Manager) Reset(tok token.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.roots {
		if key.token == tok {
			delete(m.roots, key)
		}
	}
}

// Channels returns the sorted channel indexes that have a root under
// the token.
func (m *Manager) Channels(tok token.Unit) []uint32 {
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

func (m *Manager) tokenRoots(tok token.Unit) []*Root {
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
