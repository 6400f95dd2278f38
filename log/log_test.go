package log_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/pipelined/pulse/log"
)

func TestGetLogger(t *testing.T) {
	l := log.GetLogger()
	assert.NotNil(t, l)
}

func TestWithComponent(t *testing.T) {
	l := log.GetLogger()
	l.SetLevel(logrus.DebugLevel)
	e := log.WithComponent(l, "scheduler", log.ContextScheduling)
	assert.Equal(t, "scheduler", e.Data[log.FieldComponent])
	assert.Equal(t, log.ContextScheduling, e.Data[log.FieldContext])

	// the entry satisfies the component logger interface
	var logger log.Logger = e
	assert.NotNil(t, logger)
}

func TestSilent(t *testing.T) {
	l := log.Silent()
	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("dropped")
	l.Error("dropped")
}
