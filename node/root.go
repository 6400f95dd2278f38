package node

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/pipelined/pulse/internal/pending"
	"github.com/pipelined/pulse/log"
	"github.com/pipelined/pulse/token"
)

// Root owns all units registered under one (token, channel) pair. It is
// the sole concurrent-safe owner of that collection: the driving context
// processes it, any other context's registration is deferred to a cycle
// boundary. Evaluation order equals registration order and is stable
// across cycles.
type Root struct {
	id      string
	token   token.Unit
	channel uint32

	nodes      []Node
	processing atomic.Bool
	pending    pending.Queue[Node]

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

// NewRoot returns a root for the provided token and channel.
func NewRoot(tok token.Unit, channel uint32, options ...RootOption) *Root {
	r := &Root{
		id:      xid.New().String(),
		token:   tok,
		channel: channel,
		logger:  log.Silent(),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// ID returns the root's unique id.
func (r *Root) ID() string { return r.id }

// Token returns the processing token of the root.
func (r *Root) Token() token.Unit { return r.token }

// Channel returns the channel index of the root.
func (r *Root) Channel() uint32 { return r.channel }

// Len returns the number of registered units, pending changes excluded.
func (r *Root) Len() int { return len(r.nodes) }

// Register adds a unit to the root. When called while a cycle is in
// flight, the registration is queued and applied at the next cycle
// boundary: it never interrupts the in-flight cycle, which keeps
// observing the member set it started with.
func (r *Root) Register(n Node) error {
	if n == nil {
		return ErrInvalidNode
	}
	if r.processing.Load() {
		if r.pending.Push(n, true) {
			return nil
		}
		// all pending slots taken, wait for the boundary
		r.awaitBoundary()
	}
	return r.register(n)
}

// Unregister removes a unit from the root. Safe no-op if absent; when
// called mid-cycle the removal is deferred to the next cycle boundary.
func (r *Root) Unregister(n Node) {
	if n == nil {
		return
	}
	if r.processing.Load() {
		if r.pending.Push(n, false) {
			return
		}
		r.awaitBoundary()
	}
	r.unregister(n)
}

// ProcessSample evaluates every registered unit exactly once, in
// registration order, and returns the additive aggregate. Per-cycle
// marks are reset before returning so the next call re-evaluates fresh
// state. Registration churn during the call is deferred, never applied
// mid-cycle.
func (r *Root) ProcessSample() float64 {
	if !r.begin() {
		return 0
	}
	var sum float64
	for _, n := range r.nodes {
		if m, ok := n.(CycleMarker); ok && m.Processed() {
			sum += m.LastOutput()
			continue
		}
		sum += r.processNode(n)
		if m, ok := n.(CycleMarker); ok {
			m.MarkProcessed()
		}
	}
	r.end()
	return sum
}

// ProcessBlock evaluates n cycles and returns their aggregates.
func (r *Root) ProcessBlock(n uint64) []float64 {
	output := make([]float64, n)
	for i := uint64(0); i < n; i++ {
		output[i] = r.ProcessSample()
	}
	return output
}

// processNode evaluates one unit. A fault inside the unit is caught at
// the slot boundary, journaled, and contributes zero for this cycle:
// one misbehaving unit must not halt the aggregate.
func (r *Root) processNode(n Node) (out float64) {
	defer func() {
		if rec := recover(); rec != nil {
			out = 0
			r.logger.Error(fmt.Sprintf("root %s channel %d: node fault: %v", r.id, r.channel, rec))
		}
	}()
	return n.ProcessSample(0)
}

// begin claims the cycle and drains deferred registrations at its
// boundary.
func (r *Root) begin() bool {
	if !r.processing.CompareAndSwap(false, true) {
		return false
	}
	r.pending.Drain(func(n Node, add bool) {
		if add {
			// deferred duplicate registration is informational
			_ = r.register(n)
		} else {
			r.unregister(n)
		}
	})
	return true
}

// end resets per-cycle marks and releases the cycle.
func (r *Root) end() {
	for _, n := range r.nodes {
		if m, ok := n.(CycleMarker); ok {
			m.ResetCycle()
		}
	}
	r.processing.Store(false)
}

// awaitBoundary spins until the in-flight cycle releases the root. Only
// reached when the pending queue overflows within one cycle.
func (r *Root) awaitBoundary() {
	for r.processing.Load() {
		runtime.Gosched()
	}
}

func (r *Root) register(n Node) error {
	for _, registered := range r.nodes {
		if registered == n {
			return ErrAlreadyRegistered
		}
	}
	r.nodes = append(r.nodes, n)
	return nil
}

func (r *Root) unregister(n Node) {
	for i, registered := range r.nodes {
		if registered == n {
			r.nodes = append(r.nodes[:i], r.nodes[i+1:]...)
			return
		}
	}
}
