package pulse

import (
	"github.com/pipelined/pulse/buffer"
	"github.com/pipelined/pulse/node"
	"github.com/pipelined/pulse/sched"
	"github.com/pipelined/pulse/token"
)

// HookPosition tells when a processing hook runs relative to the
// domain's cycle.
type HookPosition int

const (
	// HookPre hooks run before the domain's units and buffers process.
	HookPre HookPosition = iota
	// HookPost hooks run after the domain's cycle completes.
	HookPost
)

// ProcessHook observes a domain cycle. Hooks run on the domain's driving
// context and must return within the cycle.
type ProcessHook func(units uint64)

// Handle is a token-scoped capability over the engine. Every operation
// checks token containment before touching any subsystem: a refused call
// returns *TokenBoundaryError and leaves the engine untouched.
type Handle struct {
	name string
	set  TokenSet

	nodes     *NodeHandle
	buffers   *BufferHandle
	scheduler *SchedulerHandle

	pre  []ProcessHook
	post []ProcessHook
}

func newHandle(name string, set TokenSet, nodes *node.Manager, buffers *buffer.Manager, scheduler *sched.Scheduler) *Handle {
	return &Handle{
		name:      name,
		set:       set,
		nodes:     &NodeHandle{name: name, set: set, manager: nodes},
		buffers:   &BufferHandle{name: name, set: set, manager: buffers},
		scheduler: &SchedulerHandle{name: name, set: set, scheduler: scheduler},
	}
}

// Name returns the handle's name.
func (h *Handle) Name() string { return h.name }

// Set returns the handle's token set.
func (h *Handle) Set() TokenSet { return h.set }

// Nodes returns the unit surface of the handle.
func (h *Handle) Nodes() *NodeHandle { return h.nodes }

// Buffers returns the buffer surface of the handle.
func (h *Handle) Buffers() *BufferHandle { return h.buffers }

// Scheduler returns the routine surface of the handle.
func (h *Handle) Scheduler() *SchedulerHandle { return h.scheduler }

// AddHook registers a cycle observer at the position. Hooks run in
// registration order.
func (h *Handle) AddHook(pos HookPosition, hook ProcessHook) {
	if hook == nil {
		return
	}
	if pos == HookPre {
		h.pre = append(h.pre, hook)
	} else {
		h.post = append(h.post, hook)
	}
}

// Union returns a handle whose token set is the union of both handles'
// sets, without re-validating the granted tokens. Both handles must be
// backed by the same system: a union across systems would route the
// other handle's tokens to the wrong engine and is refused with
// ErrForeignHandle. Hooks are not carried over.
func (h *Handle) Union(name string, other *Handle) (*Handle, error) {
	if other == nil {
		return nil, ErrForeignHandle
	}
	if h.nodes.manager != other.nodes.manager ||
		h.buffers.manager != other.buffers.manager ||
		h.scheduler.scheduler != other.scheduler.scheduler {
		return nil, ErrForeignHandle
	}
	set := h.set.Union(other.set)
	return &Handle{
		name:      name,
		set:       set,
		nodes:     &NodeHandle{name: name, set: set, manager: h.nodes.manager},
		buffers:   &BufferHandle{name: name, set: set, manager: h.buffers.manager},
		scheduler: &SchedulerHandle{name: name, set: set, scheduler: h.scheduler.scheduler},
	}, nil
}

func (h *Handle) runHooks(pos HookPosition, units uint64) {
	hooks := h.pre
	if pos == HookPost {
		hooks = h.post
	}
	for _, hook := range hooks {
		hook(units)
	}
}

// NodeHandle is the token-scoped surface over the unit aggregators.
type NodeHandle struct {
	name    string
	set     TokenSet
	manager *node.Manager
}

// Register adds a unit under the (token, channel) pair after the
// containment check.
func (h *NodeHandle) Register(tok token.Unit, channel uint32, n node.Node) error {
	if !h.set.ContainsUnit(tok) {
		return &TokenBoundaryError{Handle: h.name, Op: "register node", Token: tok.String()}
	}
	return h.manager.Register(tok, channel, n)
}

// Unregister removes a unit from the (token, channel) pair.
func (h *NodeHandle) Unregister(tok token.Unit, channel uint32, n node.Node) error {
	if !h.set.ContainsUnit(tok) {
		return &TokenBoundaryError{Handle: h.name, Op: "unregister node", Token: tok.String()}
	}
	h.manager.Unregister(tok, channel, n)
	return nil
}

// ProcessSample evaluates one cycle of the (token, channel) root.
func (h *NodeHandle) ProcessSample(tok token.Unit, channel uint32) (float64, error) {
	if !h.set.ContainsUnit(tok) {
		return 0, &TokenBoundaryError{Handle: h.name, Op: "process sample", Token: tok.String()}
	}
	return h.manager.ProcessSample(tok, channel), nil
}

// ProcessChannel evaluates n cycles of the (token, channel) root.
func (h *NodeHandle) ProcessChannel(tok token.Unit, channel uint32, n uint64) ([]float64, error) {
	if !h.set.ContainsUnit(tok) {
		return nil, &TokenBoundaryError{Handle: h.name, Op: "process channel", Token: tok.String()}
	}
	return h.manager.ProcessChannel(tok, channel, n), nil
}

// BufferHandle is the token-scoped surface over the buffer aggregators.
type BufferHandle struct {
	name    string
	set     TokenSet
	manager *buffer.Manager
}

// AddChild registers a buffer under the (token, channel) root after the
// containment check.
func (h *BufferHandle) AddChild(tok token.Buffer, channel uint32, b *buffer.Buffer) error {
	if !h.set.ContainsBuffer(tok) {
		return &TokenBoundaryError{Handle: h.name, Op: "add child", Token: tok.String()}
	}
	return h.manager.AddChild(tok, channel, b)
}

// RemoveChild removes a buffer from the (token, channel) root.
func (h *BufferHandle) RemoveChild(tok token.Buffer, channel uint32, b *buffer.Buffer) error {
	if !h.set.ContainsBuffer(tok) {
		return &TokenBoundaryError{Handle: h.name, Op: "remove child", Token: tok.String()}
	}
	h.manager.RemoveChild(tok, channel, b)
	return nil
}

// Read returns a copy of a root's accumulated block. Reads inside the
// handle's set go through directly; reads of a foreign token are
// forwarded to the manager's grant table with the handle's own token as
// requester.
func (h *BufferHandle) Read(requester, target token.Buffer, channel uint32) ([]float64, error) {
	if !h.set.ContainsBuffer(requester) {
		return nil, &TokenBoundaryError{Handle: h.name, Op: "read", Token: requester.String()}
	}
	return h.manager.Read(requester, target, channel)
}

// ProcessChannel runs one cycle of the (token, channel) root.
func (h *BufferHandle) ProcessChannel(tok token.Buffer, channel uint32) ([]float64, error) {
	if !h.set.ContainsBuffer(tok) {
		return nil, &TokenBoundaryError{Handle: h.name, Op: "process channel", Token: tok.String()}
	}
	return h.manager.ProcessChannel(tok, channel)
}

// SchedulerHandle is the token-scoped surface over the task scheduler.
type SchedulerHandle struct {
	name      string
	set       TokenSet
	scheduler *sched.Scheduler
}

// Schedule registers a routine after the containment check. The returned
// tag addresses the routine for later cancel and update calls.
func (h *SchedulerHandle) Schedule(r *sched.Routine, tag string) (string, error) {
	if r == nil {
		return "", sched.ErrInvalidRoutine
	}
	if !h.set.ContainsRoutine(r.Token()) {
		return "", &TokenBoundaryError{Handle: h.name, Op: "schedule", Token: r.Token().String()}
	}
	return h.scheduler.Add(r, tag)
}

// Cancel flags the tagged routine for termination at its next resume.
func (h *SchedulerHandle) Cancel(tag string) bool {
	return h.scheduler.Cancel(tag)
}

// UpdateParams mutates a live routine's state bag with key/value pairs.
func (h *SchedulerHandle) UpdateParams(tag string, pairs ...interface{}) error {
	return h.scheduler.UpdateParams(tag, pairs...)
}

// Restart re-arms the tagged routine from its initial condition.
func (h *SchedulerHandle) Restart(tag string) bool {
	return h.scheduler.Restart(tag)
}

// CurrentUnits returns the token clock's position after the containment
// check.
func (h *SchedulerHandle) CurrentUnits(tok token.Routine) (uint64, error) {
	if !h.set.ContainsRoutine(tok) {
		return 0, &TokenBoundaryError{Handle: h.name, Op: "current units", Token: tok.String()}
	}
	return h.scheduler.CurrentUnits(tok), nil
}

// SecondsToUnits converts seconds into the token's processing units.
func (h *SchedulerHandle) SecondsToUnits(seconds float64, tok token.Routine) (uint64, error) {
	if !h.set.ContainsRoutine(tok) {
		return 0, &TokenBoundaryError{Handle: h.name, Op: "seconds to units", Token: tok.String()}
	}
	return h.scheduler.SecondsToUnits(seconds, tok), nil
}
