package sched

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic per-token position and time source. It advances
// only by explicit unit counts pushed by the domain's driving context.
type Clock interface {
	// Tick advances the clock by n units. Ticking by zero is a no-op.
	Tick(n uint64)
	// Position returns the current position in units.
	Position() uint64
	// Time returns the elapsed time the current position represents.
	Time() time.Duration
	// Rate returns the clock rate in units per second.
	Rate() uint32
	// Reset moves the position back to zero. This is the only
	// non-monotonic transition a clock allows.
	Reset()
	// Unit names the unit the clock counts.
	Unit() string
}

// clock is the shared implementation of all clock flavours. The position
// is atomic so that non-driving contexts can observe it.
type clock struct {
	rate uint32
	unit string
	pos  atomic.Uint64
}

func (c *clock) Tick(n uint64) {
	if n == 0 {
		return
	}
	c.pos.Add(n)
}

func (c *clock) Position() uint64 {
	return c.pos.Load()
}

func (c *clock) Time() time.Duration {
	if c.rate == 0 {
		return 0
	}
	return time.Duration(float64(c.pos.Load()) / float64(c.rate) * float64(time.Second))
}

func (c *clock) Rate() uint32 { return c.rate }

func (c *clock) Reset() { c.pos.Store(0) }

func (c *clock) Unit() string { return c.unit }

// SampleClock counts audio samples.
type SampleClock struct {
	clock
}

// NewSampleClock returns a sample clock with the provided sample rate.
func NewSampleClock(sampleRate uint32) *SampleClock {
	return &SampleClock{clock: clock{rate: sampleRate, unit: "samples"}}
}

// FrameClock counts video frames.
type FrameClock struct {
	clock
}

// NewFrameClock returns a frame clock with the provided frame rate.
func NewFrameClock(frameRate uint32) *FrameClock {
	return &FrameClock{clock: clock{rate: frameRate, unit: "frames"}}
}

// CustomClock counts caller-defined units.
type CustomClock struct {
	clock
}

// NewCustomClock returns a clock counting arbitrary units at the
// provided rate.
func NewCustomClock(rate uint32, unit string) *CustomClock {
	if unit == "" {
		unit = "units"
	}
	return &CustomClock{clock: clock{rate: rate, unit: unit}}
}
