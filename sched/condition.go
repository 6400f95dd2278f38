package sched

import "sync/atomic"

// Condition declares when a suspended routine becomes runnable again.
// Suspension points are declarative only: the scheduler, not the
// routine, decides when to resume.
type Condition struct {
	kind      conditionKind
	units     uint64
	position  uint64
	predicate func() bool
	trigger   *Trigger
}

type conditionKind uint8

const (
	condYield conditionKind = iota
	condDelay
	condUntil
	condWhen
	condTrigger
	condDone
)

// Yield suspends until the next processing pass of the routine's token,
// regardless of clock position.
func Yield() Condition {
	return Condition{kind: condYield}
}

// Delay suspends for n units of the routine's clock. The routine resumes
// on the processing call whose cumulative advance first reaches or
// exceeds n.
func Delay(units uint64) Condition {
	return Condition{kind: condDelay, units: units}
}

// Until suspends until the routine's clock reaches the absolute
// position.
func Until(position uint64) Condition {
	return Condition{kind: condUntil, position: position}
}

// When suspends until the predicate reports true. The predicate is
// evaluated by the scheduler on every processing pass and must not
// block.
func When(predicate func() bool) Condition {
	return Condition{kind: condWhen, predicate: predicate}
}

// OnTrigger suspends until the trigger fires. Each fire resumes a single
// wait.
func OnTrigger(t *Trigger) Condition {
	return Condition{kind: condTrigger, trigger: t}
}

// Done terminates the routine.
func Done() Condition {
	return Condition{kind: condDone}
}

// Trigger resumes waiting routines from an external context.
type Trigger struct {
	fired atomic.Bool
}

// NewTrigger returns a new unfired trigger.
func NewTrigger() *Trigger {
	return &Trigger{}
}

// Fire marks the trigger. The next waiting routine processed for its
// token consumes the mark and resumes.
func (t *Trigger) Fire() {
	t.fired.Store(true)
}

// consume atomically claims a fire.
func (t *Trigger) consume() bool {
	return t.fired.CompareAndSwap(true, false)
}
