package sched

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pipelined/pulse/log"
	"github.com/pipelined/pulse/token"
)

// Status identifies one of the possible states a routine can be in.
type Status uint8

const (
	// Waiting means the routine is suspended on a condition.
	Waiting Status = iota
	// Runnable means the routine is executing a step right now.
	Runnable
	// Terminated means the routine finished and will not run again
	// unless restarted.
	Terminated
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Runnable:
		return "runnable"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// StepFunc executes one resumption of a routine. It runs until it either
// suspends again, by returning the condition to wait on, or terminates
// by returning Done.
type StepFunc func(r *Routine) Condition

// Routine is a cooperative temporal process. It suspends on declarative
// wait conditions and resumes under scheduler control, carrying a named
// state bag that external code can inspect and update between steps.
type Routine struct {
	token   token.Routine
	step    StepFunc
	initial Condition
	tag     string

	terminate atomic.Bool

	mu       sync.Mutex
	state    map[string]interface{}
	snapshot map[string]interface{}
	status   Status
	cond     Condition
	next     uint64
}

// RoutineOption provides a way to set optional routine parameters.
type RoutineOption func(*Routine)

// StartAfter sets the condition the routine initially waits on. The
// default is Yield, resuming on the first processing pass.
func StartAfter(c Condition) RoutineOption {
	return func(r *Routine) {
		r.initial = c
	}
}

// WithState seeds the routine's state bag. The seeded values are also
// what Restart re-initializes the bag to.
func WithState(key string, value interface{}) RoutineOption {
	return func(r *Routine) {
		r.state[key] = value
	}
}

// NewRoutine returns a routine scheduled under the provided token.
func NewRoutine(tok token.Routine, step StepFunc, options ...RoutineOption) *Routine {
	r := &Routine{
		token:   tok,
		step:    step,
		initial: Yield(),
		state:   make(map[string]interface{}),
		status:  Waiting,
	}
	for _, option := range options {
		option(r)
	}
	r.snapshot = copyState(r.state)
	r.cond = r.initial
	return r
}

// Token returns the processing token that determines how this routine is
// scheduled.
func (r *Routine) Token() token.Routine { return r.token }

// Tag returns the human-readable key the routine was scheduled under.
func (r *Routine) Tag() string { return r.tag }

// Status returns the current lifecycle state.
func (r *Routine) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Active returns true until the routine terminates.
func (r *Routine) Active() bool {
	return r.Status() != Terminated
}

// Terminate flags the routine for termination. Cancellation is observed,
// not preemptive: the routine stops at its next scheduled resume.
func (r *Routine) Terminate() {
	r.terminate.Store(true)
}

// Set stores a named state value. Visible to the routine the next time
// it runs.
func (r *Routine) Set(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[key] = value
}

// Value retrieves a named state value.
func (r *Routine) Value(key string) (interface{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.state[key]
	return v, ok
}

// Float64 retrieves a named state value as float64.
func (r *Routine) Float64(key string) (float64, bool) {
	v, ok := r.Value(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// restart re-initializes the state bag, clears termination and anchors
// the initial condition at the provided clock position.
func (r *Routine) restart(pos uint64) {
	r.terminate.Store(false)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = copyState(r.snapshot)
	r.status = Waiting
	r.anchorLocked(r.initial, pos)
}

// ready reports whether the routine should resume at the position. A
// flagged termination always resumes so it can be observed.
func (r *Routine) ready(pos uint64) bool {
	if r.terminate.Load() {
		return true
	}
	r.mu.Lock()
	cond := r.cond
	next := r.next
	r.mu.Unlock()
	switch cond.kind {
	case condYield:
		return true
	case condDelay, condUntil:
		return pos >= next
	case condWhen:
		return cond.predicate()
	case condTrigger:
		return cond.trigger.consume()
	}
	return false
}

// resume runs one step of the routine. A fault inside the step is caught
// here, journaled, and terminates this routine only.
func (r *Routine) resume(pos uint64, logger log.Logger) {
	if r.terminate.Load() {
		r.setStatus(Terminated)
		logger.Debug(fmt.Sprintf("routine %s: termination observed", r.tag))
		return
	}
	r.setStatus(Runnable)
	cond, ok := r.runStep(logger)
	if !ok || cond.kind == condDone {
		r.setStatus(Terminated)
		return
	}
	r.suspend(cond, pos)
}

func (r *Routine) runStep(logger log.Logger) (cond Condition, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			logger.Error(fmt.Sprintf("routine %s: fault at resume: %v", r.tag, rec))
		}
	}()
	return r.step(r), true
}

func (r *Routine) suspend(cond Condition, pos uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = Waiting
	r.anchorLocked(cond, pos)
}

// anchorLocked stores the condition, resolving relative delays into an
// absolute clock position.
func (r *Routine) anchorLocked(cond Condition, pos uint64) {
	r.cond = cond
	switch cond.kind {
	case condDelay:
		r.next = pos + cond.units
	case condUntil:
		r.next = cond.position
	default:
		r.next = 0
	}
}

func (r *Routine) setStatus(s Status) {
	r.mu.Lock()
	r.status = s
	r.mu.Unlock()
}

func copyState(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
