// Package sched implements the task scheduler and its per-domain
// clocks. Each processing token owns one clock and one FIFO list of
// routines; the domain's driving context advances the clock and resumes
// every routine whose wait condition is satisfied.
package sched

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/xid"

	"github.com/pipelined/pulse/log"
	"github.com/pipelined/pulse/token"
)

// Default rates for lazily created domains.
const (
	DefaultSampleRate = 48000
	DefaultFrameRate  = 60
	defaultCustomRate = 1000
	defaultDemandRate = 1
)

var (
	// ErrInvalidRoutine is returned when a nil routine or a routine
	// with an unknown token is scheduled.
	ErrInvalidRoutine = errors.New("invalid routine")
	// ErrAlreadyScheduled is returned when the tag is already taken by
	// a live routine.
	ErrAlreadyScheduled = errors.New("tag already scheduled")
	// ErrUnknownTag is returned when no routine is scheduled under the
	// tag.
	ErrUnknownTag = errors.New("unknown tag")
)

// TokenProcessor is a custom scheduling algorithm for one token domain.
// It receives the domain's routines in schedule order and the number of
// units the clock was advanced by.
type TokenProcessor func(routines []*Routine, units uint64)

// Scheduler owns one clock and one routine list per live token. It is
// the single driver of all routine resumption: routines never run except
// from a ProcessToken call of their token.
type Scheduler struct {
	mu         sync.Mutex
	domains    map[token.Routine]*domain
	sampleRate uint32
	frameRate  uint32
	logger     log.Logger
}

// domain holds the scheduling state of one token. The live list is only
// mutated by the token's processing pass; additions from other contexts
// land in pending and merge at the next pass.
type domain struct {
	clock     Clock
	live      []*Routine
	pending   []*Routine
	processor TokenProcessor
}

// Option provides a way to set scheduler parameters.
type Option func(*Scheduler)

// WithSampleRate sets the sample-accurate domain rate.
func WithSampleRate(rate uint32) Option {
	return func(s *Scheduler) {
		s.sampleRate = rate
	}
}

// WithFrameRate sets the frame-accurate domain rate.
func WithFrameRate(rate uint32) Option {
	return func(s *Scheduler) {
		s.frameRate = rate
	}
}

// WithLogger sets logger to the scheduler. If this option is not
// provided, silent logger is used.
func WithLogger(logger log.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler and pre-creates the standard domains.
func New(options ...Option) *Scheduler {
	s := &Scheduler{
		domains:    make(map[token.Routine]*domain),
		sampleRate: DefaultSampleRate,
		frameRate:  DefaultFrameRate,
		logger:     log.Silent(),
	}
	for _, option := range options {
		option(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDomainLocked(token.SampleAccurate)
	s.ensureDomainLocked(token.FrameAccurate)
	s.ensureDomainLocked(token.MultiRate)
	s.ensureDomainLocked(token.OnDemand)
	return s
}

// EnsureClock lazily creates the token's clock on first use with the
// scheduler's configured base rate. Idempotent.
func (s *Scheduler) EnsureClock(tok token.Routine) Clock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureDomainLocked(tok).clock
}

func (s *Scheduler) ensureDomainLocked(tok token.Routine) *domain {
	if d, ok := s.domains[tok]; ok {
		return d
	}
	rate := s.defaultRate(tok)
	var clock Clock
	switch tok {
	case token.SampleAccurate, token.MultiRate:
		clock = NewSampleClock(rate)
	case token.FrameAccurate:
		clock = NewFrameClock(rate)
	default:
		clock = NewCustomClock(rate, "units")
	}
	d := &domain{clock: clock}
	s.domains[tok] = d
	return d
}

func (s *Scheduler) defaultRate(tok token.Routine) uint32 {
	switch tok {
	case token.SampleAccurate, token.MultiRate:
		return s.sampleRate
	case token.FrameAccurate:
		return s.frameRate
	case token.OnDemand:
		return defaultDemandRate
	case token.Custom:
		return defaultCustomRate
	}
	return s.sampleRate
}

// Add registers a routine in waiting state. The tag is a human-readable
// key for external lookup and update, not used for scheduling order; an
// empty tag gets a generated one. Registration is accepted immediately
// but only joins the live list at the next processing pass of the
// routine's token. A terminated routine is re-initialized on add: its
// state bag, termination flag and initial condition are reset, so
// re-adding is the external restart path once the routine has been
// drained.
func (s *Scheduler) Add(r *Routine, tag string) (string, error) {
	if r == nil || !r.Token().Valid() {
		return "", ErrInvalidRoutine
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tag == "" {
		tag = xid.New().String()
	} else if s.findLocked(tag) != nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyScheduled, tag)
	}
	d := s.ensureDomainLocked(r.Token())
	r.tag = tag
	if r.Active() && !r.terminate.Load() {
		r.scheduleAt(d.clock.Position())
	} else {
		r.restart(d.clock.Position())
	}
	d.pending = append(d.pending, r)
	return tag, nil
}

// scheduleAt anchors the routine's current condition at the position.
func (r *Routine) scheduleAt(pos uint64) {
	r.mu.Lock()
	r.anchorLocked(r.cond, pos)
	r.mu.Unlock()
}

// ProcessToken advances the token's clock by units, then resumes every
// runnable routine bound to the token whose condition is satisfied, in
// FIFO schedule order. This is the main entry point for the domain's
// driving context and must never be called concurrently for one token.
func (s *Scheduler) ProcessToken(tok token.Routine, units uint64) {
	s.mu.Lock()
	d, ok := s.domains[tok]
	if !ok {
		s.mu.Unlock()
		return
	}
	if len(d.pending) > 0 {
		d.live = append(d.live, d.pending...)
		d.pending = nil
	}
	d.clock.Tick(units)
	live := d.live
	processor := d.processor
	pos := d.clock.Position()
	logger := s.logger
	s.mu.Unlock()

	if len(live) == 0 {
		return
	}
	if processor != nil {
		processor(live, units)
	} else {
		for _, r := range live {
			if r.Active() && r.ready(pos) {
				r.resume(pos, logger)
			}
		}
	}
	s.dropTerminated(tok)
}

// ProcessAllTokens advances every domain that has live routines by one
// unit.
func (s *Scheduler) ProcessAllTokens() {
	s.mu.Lock()
	tokens := make([]token.Routine, 0, len(s.domains))
	for tok, d := range s.domains {
		if len(d.live) > 0 || len(d.pending) > 0 {
			tokens = append(tokens, tok)
		}
	}
	s.mu.Unlock()
	for _, tok := range tokens {
		s.ProcessToken(tok, 1)
	}
}

// RegisterTokenProcessor overrides the default scheduling algorithm for
// one token domain.
func (s *Scheduler) RegisterTokenProcessor(tok token.Routine, processor TokenProcessor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureDomainLocked(tok).processor = processor
}

// Cancel flags the tagged routine for termination. The routine stops at
// its next scheduled resume, never mid-execution.
func (s *Scheduler) Cancel(tag string) bool {
	s.mu.Lock()
	r := s.findLocked(tag)
	s.mu.Unlock()
	if r == nil {
		return false
	}
	r.Terminate()
	return true
}

// UpdateParams mutates a live routine's state bag with key/value pairs.
// Changes are visible to the routine the next time it runs.
func (s *Scheduler) UpdateParams(tag string, pairs ...interface{}) error {
	if len(pairs)%2 != 0 {
		return errors.New("odd number of key/value arguments")
	}
	s.mu.Lock()
	r := s.findLocked(tag)
	s.mu.Unlock()
	if r == nil {
		return fmt.Errorf("%w: %s", ErrUnknownTag, tag)
	}
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			return fmt.Errorf("key at %d is not a string", i)
		}
		r.Set(key, pairs[i+1])
	}
	return nil
}

// Restart re-initializes the tagged routine's state bag, clears its
// termination flag and anchors its initial condition at the current
// clock position.
func (s *Scheduler) Restart(tag string) bool {
	s.mu.Lock()
	r := s.findLocked(tag)
	if r == nil {
		s.mu.Unlock()
		return false
	}
	d := s.ensureDomainLocked(r.Token())
	pos := d.clock.Position()
	s.mu.Unlock()
	r.restart(pos)
	return true
}

// Routine returns the routine scheduled under the tag.
func (s *Scheduler) Routine(tag string) (*Routine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.findLocked(tag)
	return r, r != nil
}

// Routines returns a copy of the token's routine list in schedule order.
func (s *Scheduler) Routines(tok token.Routine) []*Routine {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[tok]
	if !ok {
		return nil
	}
	routines := make([]*Routine, 0, len(d.live)+len(d.pending))
	routines = append(routines, d.live...)
	routines = append(routines, d.pending...)
	return routines
}

// HasActiveRoutines reports whether the token has routines that have not
// terminated.
func (s *Scheduler) HasActiveRoutines(tok token.Routine) bool {
	for _, r := range s.Routines(tok) {
		if r.Active() {
			return true
		}
	}
	return false
}

// CurrentUnits returns the current position on the token's clock.
func (s *Scheduler) CurrentUnits(tok token.Routine) uint64 {
	return s.EnsureClock(tok).Position()
}

// Rate returns the processing rate of the token's clock.
func (s *Scheduler) Rate(tok token.Routine) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.domains[tok]; ok {
		return d.clock.Rate()
	}
	return s.defaultRate(tok)
}

// SecondsToUnits converts seconds into the token's processing units.
// Fractional results are truncated toward zero: the conversion is
// deterministic, not rounded.
func (s *Scheduler) SecondsToUnits(seconds float64, tok token.Routine) uint64 {
	return uint64(seconds * float64(s.Rate(tok)))
}

// SecondsToSamples converts seconds into samples of the sample-accurate
// domain.
func (s *Scheduler) SecondsToSamples(seconds float64) uint64 {
	return s.SecondsToUnits(seconds, token.SampleAccurate)
}

// findLocked looks a routine up by tag across all domains.
func (s *Scheduler) findLocked(tag string) *Routine {
	for _, d := range s.domains {
		for _, r := range d.live {
			if r.tag == tag {
				return r
			}
		}
		for _, r := range d.pending {
			if r.tag == tag {
				return r
			}
		}
	}
	return nil
}

// dropTerminated removes terminated routines from the live list without
// disturbing the order of the remaining ones.
func (s *Scheduler) dropTerminated(tok token.Routine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.domains[tok]
	if !ok {
		return
	}
	live := d.live[:0]
	for _, r := range d.live {
		if r.Active() {
			live = append(live, r)
		}
	}
	for i := len(live); i < len(d.live); i++ {
		d.live[i] = nil
	}
	d.live = live
}
