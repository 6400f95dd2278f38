// Package pending implements the deferred-change queue used by root
// aggregators. Structural changes requested while a processing cycle is
// in flight are parked here and drained by the driving context at the
// next cycle boundary, so the hot path never waits on a lock.
package pending

import "sync/atomic"

// Cap is the fixed number of slots per queue. Registration churn beyond
// this within a single cycle falls back to waiting for the boundary.
const Cap = 64

// Queue is a fixed-capacity set of CAS-guarded slots. Any context may
// Push; only the driving context drains.
type Queue[T any] struct {
	slots [Cap]slot[T]
	count atomic.Int32
}

type slot[T any] struct {
	// claimed is acquired by writers, ready is set once the op fields
	// are written. The drainer only consumes ready slots.
	claimed atomic.Bool
	ready   atomic.Bool
	member  T
	add     bool
}

// Push parks a membership change. It returns false when all slots are
// taken, in which case the caller must wait for the cycle boundary.
func (q *Queue[T]) Push(member T, add bool) bool {
	for i := range q.slots {
		s := &q.slots[i]
		if s.claimed.CompareAndSwap(false, true) {
			s.member = member
			s.add = add
			s.ready.Store(true)
			q.count.Add(1)
			return true
		}
	}
	return false
}

// Drain applies and releases every ready slot. Must only be called by
// the driving context while it owns the cycle.
func (q *Queue[T]) Drain(apply func(member T, add bool)) {
	if q.count.Load() == 0 {
		return
	}
	for i := range q.slots {
		s := &q.slots[i]
		if !s.ready.Load() {
			continue
		}
		member, add := s.member, s.add
		var zero T
		s.member = zero
		s.ready.Store(false)
		s.claimed.Store(false)
		q.count.Add(-1)
		apply(member, add)
	}
}

// Empty reports whether no ops are parked.
func (q *Queue[T]) Empty() bool {
	return q.count.Load() == 0
}
