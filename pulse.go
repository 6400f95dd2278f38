// Package pulse composes the processing engine: unit and buffer
// aggregators, the task scheduler and the token-scoped handles that
// front them. A System owns one manager per subsystem; client code never
// touches the managers directly, it obtains a Handle for a domain and
// operates through it.
package pulse

import (
	"fmt"
	"sync"

	"github.com/rs/xid"

	"github.com/pipelined/pulse/buffer"
	"github.com/pipelined/pulse/log"
	"github.com/pipelined/pulse/metric"
	"github.com/pipelined/pulse/node"
	"github.com/pipelined/pulse/sched"
	"github.com/pipelined/pulse/token"
)

// System owns the engine's shared state: the unit roots, the buffer
// roots and the scheduler. One System drives any number of processing
// domains; each domain has its own driving context and its own clocks.
type System struct {
	uid string

	nodes     *node.Manager
	buffers   *buffer.Manager
	scheduler *sched.Scheduler

	mu       sync.Mutex
	handles  map[string]*Handle
	channels map[string]uint32
	measures map[string]metric.MeasureFunc

	sampleRate uint32
	frameRate  uint32
	blockSize  int
	logger     log.Logger
}

// SystemOption provides a way to set optional system parameters.
type SystemOption func(*System)

// WithSampleRate sets the sample-accurate rate of the system.
func WithSampleRate(rate uint32) SystemOption {
	return func(s *System) {
		s.sampleRate = rate
	}
}

// WithFrameRate sets the frame-accurate rate of the system.
func WithFrameRate(rate uint32) SystemOption {
	return func(s *System) {
		s.frameRate = rate
	}
}

// WithBufferSize sets the block size of the system's buffer roots.
func WithBufferSize(size int) SystemOption {
	return func(s *System) {
		s.blockSize = size
	}
}

// WithLogger sets logger to the system and all its subsystems. If this
// option is not provided, silent logger is used.
func WithLogger(logger log.Logger) SystemOption {
	return func(s *System) {
		s.logger = logger
	}
}

// NewSystem creates a system with its three subsystems wired together.
func NewSystem(options ...SystemOption) *System {
	s := &System{
		uid:        xid.New().String(),
		handles:    make(map[string]*Handle),
		channels:   make(map[string]uint32),
		measures:   make(map[string]metric.MeasureFunc),
		sampleRate: sched.DefaultSampleRate,
		frameRate:  sched.DefaultFrameRate,
		blockSize:  buffer.DefaultBlockSize,
		logger:     log.Silent(),
	}
	for _, option := range options {
		option(s)
	}
	s.nodes = node.NewManager(node.WithManagerLogger(s.logger))
	s.buffers = buffer.NewManager(
		buffer.WithBlockSize(s.blockSize),
		buffer.WithManagerLogger(s.logger),
	)
	s.scheduler = sched.New(
		sched.WithSampleRate(s.sampleRate),
		sched.WithFrameRate(s.frameRate),
		sched.WithLogger(s.logger),
	)
	return s
}

// UID returns the system's unique id.
func (s *System) UID() string { return s.uid }

// SampleRate returns the system's sample-accurate rate.
func (s *System) SampleRate() uint32 { return s.sampleRate }

// BlockSize returns the block size of the system's buffer roots.
func (s *System) BlockSize() int { return s.blockSize }

// Handle returns the token-scoped handle for the domain, creating it on
// first call. Calls with the same domain name return the same handle;
// the domain's channel roots are set up once with the given count.
func (s *System) Handle(d token.Domain, channels uint32) (*Handle, error) {
	if d.Zero() {
		return nil, &token.ConfigError{Axis: "domain", Reason: "zero domain"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[d.Name()]; ok {
		return h, nil
	}
	if err := s.buffers.SetupChannels(d.Buffer(), channels); err != nil {
		return nil, err
	}
	s.scheduler.EnsureClock(d.Routine())
	h := newHandle(d.Name(), NewTokenSet(d), s.nodes, s.buffers, s.scheduler)
	s.handles[d.Name()] = h
	s.channels[d.Name()] = channels
	s.measures[d.Name()] = metric.Meter(d.Name(), int(s.scheduler.Rate(d.Routine())))()
	return h, nil
}

// AllowCrossAccess grants the requester token read access to the target
// token's buffer roots. Without a grant, cross reads fail with
// buffer.ErrAccessDenied.
func (s *System) AllowCrossAccess(requester, target token.Buffer) {
	s.buffers.Allow(requester, target)
}

// ProcessDomain drives one cycle of the domain: pre hooks, unit roots
// per channel, buffer roots fed with the unit aggregates, the domain's
// routines, post hooks. It is the single entry point of the domain's
// driving context; calling it from two goroutines for one domain is a
// caller error.
func (s *System) ProcessDomain(d token.Domain, units uint64) error {
	s.mu.Lock()
	h, ok := s.handles[d.Name()]
	channels := s.channels[d.Name()]
	measure := s.measures[d.Name()]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handle for domain %s", d.Name())
	}

	h.runHooks(HookPre, units)
	for c := uint32(0); c < channels; c++ {
		nodeData := s.nodes.ProcessChannel(d.Unit(), c, units)
		if _, err := s.buffers.ProcessChannelWithNodeData(d.Buffer(), c, nodeData); err != nil {
			return err
		}
	}
	s.scheduler.ProcessToken(d.Routine(), units)
	h.runHooks(HookPost, units)

	if measure != nil {
		measure(int64(units))
	}
	return nil
}

// Cancel flags the tagged routine for termination at its next resume.
func (s *System) Cancel(tag string) bool {
	return s.scheduler.Cancel(tag)
}

// UpdateParams mutates a live routine's state bag with key/value pairs.
func (s *System) UpdateParams(tag string, pairs ...interface{}) error {
	return s.scheduler.UpdateParams(tag, pairs...)
}

// Nodes returns the system's unit manager. Intended for backends and
// tests; client code goes through handles.
func (s *System) Nodes() *node.Manager { return s.nodes }

// Buffers returns the system's buffer manager.
func (s *System) Buffers() *buffer.Manager { return s.buffers }

// Scheduler returns the system's task scheduler.
func (s *System) Scheduler() *sched.Scheduler { return s.scheduler }
