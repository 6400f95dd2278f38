// Package node implements the root aggregator for generator and
// transformer units. One root owns all units registered under one
// (token, channel) pair and evaluates them deterministically once per
// cycle, summing their outputs.
package node

import "errors"

var (
	// ErrInvalidNode is returned when a nil unit is registered.
	ErrInvalidNode = errors.New("invalid node")
	// ErrAlreadyRegistered is returned when the unit is already part of
	// the root. Informational, not fatal.
	ErrAlreadyRegistered = errors.New("node already registered")
)

// Node is a per-cycle generator or transformer unit. ProcessSample is
// called exactly once per cycle by the root that owns the unit and must
// return within the cycle: it never blocks or suspends.
type Node interface {
	ProcessSample(input float64) float64
}

// CycleMarker is implemented by units shared across several roots. A
// marked unit is not re-evaluated within one cycle; its last output is
// reused. Marks are reset at the end of the owning root's cycle.
type CycleMarker interface {
	Processed() bool
	MarkProcessed()
	ResetCycle()
	LastOutput() float64
}

// Func adapts a plain function to the Node interface. Units are
// identified by pointer, so the same *Func can be registered in several
// roots while two wraps of one function stay distinct.
type Func struct {
	fn func(input float64) float64
}

// NewFunc wraps fn into a unit.
func NewFunc(fn func(input float64) float64) *Func {
	return &Func{fn: fn}
}

// ProcessSample calls the adapted function.
func (f *Func) ProcessSample(input float64) float64 { return f.fn(input) }

// Constant emits a fixed value every cycle.
type Constant struct {
	Value float64
}

// NewConstant returns a unit emitting value every cycle.
func NewConstant(value float64) *Constant {
	return &Constant{Value: value}
}

// ProcessSample returns the constant value, ignoring the input.
func (c *Constant) ProcessSample(float64) float64 { return c.Value }
