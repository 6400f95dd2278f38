// Package log provides loggers for pulse components. It wraps logrus and
// carries the journal taxonomy: every entry names the component it came
// from and the execution context it was produced in.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

var debug bool

// Logger is a global interface for pulse loggers.
type Logger interface {
	Debug(...interface{})
	Info(...interface{})
	Warn(...interface{})
	Error(...interface{})
}

// Field names used by all components.
const (
	FieldComponent = "component"
	FieldContext   = "context"
)

// Execution contexts of journal entries. Real-time contexts identify
// entries produced from a driving cycle.
const (
	ContextAudioCallback    = "audio-callback"
	ContextGraphicsCallback = "graphics-callback"
	ContextRealtime         = "realtime"
	ContextScheduling       = "scheduling"
	ContextSetup            = "setup"
)

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("PULSE_DEBUG"))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// WithComponent returns an entry tagged with component and context
// fields. The returned entry satisfies Logger.
func WithComponent(l *logrus.Logger, component, context string) *logrus.Entry {
	return l.WithFields(logrus.Fields{
		FieldComponent: component,
		FieldContext:   context,
	})
}

// Silent returns a logger that discards everything. It is the default of
// all components until a real logger is injected.
func Silent() Logger {
	return silent{}
}

type silent struct{}

func (silent) Debug(...interface{}) {}
func (silent) Info(...interface{})  {}
func (silent) Warn(...interface{})  {}
func (silent) Error(...interface{}) {}
