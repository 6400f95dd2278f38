// Package token defines the processing token vocabularies and the domain
// composer. A token identifies how a unit, buffer or routine must be
// processed: at which rate, where, and with which concurrency pattern.
//
// Three independent vocabularies exist, one per subsystem. A Domain is a
// named, immutable composition of one token from each vocabulary. All
// operations here are pure value-level operations.
package token

import (
	"fmt"
	"math/bits"
)

// Unit identifies the processing rate of a generator/transformer unit.
// Values are mutually exclusive, the zero value is invalid.
type Unit uint8

const (
	// SampleRate units are evaluated once per audio sample.
	SampleRate Unit = iota + 1
	// FrameRate units are evaluated once per video frame.
	FrameRate
	// CustomRate units are evaluated at a caller-defined rate.
	CustomRate

	maxUnit
)

// Valid returns true if u is a known unit token.
func (u Unit) Valid() bool {
	return u > 0 && u < maxUnit
}

func (u Unit) String() string {
	switch u {
	case SampleRate:
		return "sample-rate"
	case FrameRate:
		return "frame-rate"
	case CustomRate:
		return "custom-rate"
	}
	return "invalid"
}

// Routine identifies the temporal precision of a scheduled routine.
// Values are mutually exclusive, the zero value is invalid.
type Routine uint8

const (
	// SampleAccurate routines resume on audio sample positions.
	SampleAccurate Routine = iota + 1
	// FrameAccurate routines resume on video frame positions.
	FrameAccurate
	// EventDriven routines resume when their external trigger fires.
	EventDriven
	// MultiRate routines coordinate across several clocks. The sample
	// clock is their primary timing source.
	MultiRate
	// OnDemand routines only run when their token is processed explicitly.
	OnDemand
	// Custom routines run against a caller-owned clock.
	Custom

	maxRoutine
)

// Valid returns true if r is a known routine token.
func (r Routine) Valid() bool {
	return r > 0 && r < maxRoutine
}

func (r Routine) String() string {
	switch r {
	case SampleAccurate:
		return "sample-accurate"
	case FrameAccurate:
		return "frame-accurate"
	case EventDriven:
		return "event-driven"
	case MultiRate:
		return "multi-rate"
	case OnDemand:
		return "on-demand"
	case Custom:
		return "custom"
	}
	return "invalid"
}

// Buffer is a bitfield token describing how buffers are processed. It is
// composed of three mutually exclusive axes: rate, location and
// concurrency. Exactly one value per axis must be set, either directly or
// through one of the named combinations.
type Buffer uint32

const (
	// SampleBlock buffers hold one audio block per cycle.
	SampleBlock Buffer = 1 << iota
	// FrameBlock buffers hold one video frame per cycle.
	FrameBlock
	// HostCPU buffers are processed on the host CPU.
	HostCPU
	// Accelerator buffers are processed on accelerator hardware.
	Accelerator
	// Sequential buffers are processed one after another in
	// registration order.
	Sequential
	// Parallel buffers may be processed concurrently.
	Parallel
)

// Named combinations, one per backend configuration.
const (
	// AudioBackend is the standard audio processing configuration.
	AudioBackend = SampleBlock | HostCPU | Sequential
	// GraphicsBackend is the standard graphics processing configuration.
	GraphicsBackend = FrameBlock | Accelerator | Parallel
	// AudioParallel is accelerator-offloaded audio processing.
	AudioParallel = SampleBlock | Accelerator | Parallel
	// WindowEvents is sequential host-side window event processing.
	WindowEvents = FrameBlock | HostCPU | Sequential
)

// axis is one mutually exclusive group of buffer token bits.
type axis struct {
	name string
	mask Buffer
}

var axes = []axis{
	{name: "rate", mask: SampleBlock | FrameBlock},
	{name: "location", mask: HostCPU | Accelerator},
	{name: "concurrency", mask: Sequential | Parallel},
}

var allBufferBits = SampleBlock | FrameBlock | HostCPU | Accelerator | Sequential | Parallel

// Validate checks that exactly one value is set per axis and that no
// unknown bits are present. Setting two values on the same axis is a
// configuration error, never silently resolved.
func (b Buffer) Validate() error {
	if b == 0 {
		return &ConfigError{Axis: "buffer", Reason: "zero token"}
	}
	if b&^allBufferBits != 0 {
		return &ConfigError{Axis: "buffer", Reason: fmt.Sprintf("unknown bits 0x%x", uint32(b&^allBufferBits))}
	}
	for _, a := range axes {
		switch bits.OnesCount32(uint32(b & a.mask)) {
		case 0:
			return &ConfigError{Axis: a.name, Reason: "no value set"}
		case 1:
		default:
			return &ConfigError{Axis: a.name, Reason: "two values set on one axis"}
		}
	}
	return nil
}

// Contains reports whether all bits of other are set in b.
func (b Buffer) Contains(other Buffer) bool {
	return b&other == other
}

// Rate returns the rate axis value of b.
func (b Buffer) Rate() Buffer { return b & (SampleBlock | FrameBlock) }

// Location returns the location axis value of b.
func (b Buffer) Location() Buffer { return b & (HostCPU | Accelerator) }

// Concurrency returns the concurrency axis value of b.
func (b Buffer) Concurrency() Buffer { return b & (Sequential | Parallel) }

func (b Buffer) String() string {
	switch b {
	case AudioBackend:
		return "audio-backend"
	case GraphicsBackend:
		return "graphics-backend"
	case AudioParallel:
		return "audio-parallel"
	case WindowEvents:
		return "window-events"
	}
	s := ""
	for _, f := range []struct {
		bit  Buffer
		name string
	}{
		{SampleBlock, "sample-block"},
		{FrameBlock, "frame-block"},
		{HostCPU, "host-cpu"},
		{Accelerator, "accelerator"},
		{Sequential, "sequential"},
		{Parallel, "parallel"},
	} {
		if b&f.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += f.name
		}
	}
	if s == "" {
		return "invalid"
	}
	return s
}

// ConfigError is returned when a token composition is invalid. It is
// always surfaced to the caller at composition time.
type ConfigError struct {
	Axis   string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid token composition: %s: %s", e.Axis, e.Reason)
}
