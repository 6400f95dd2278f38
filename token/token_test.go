package token_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/pulse/token"
)

func TestBufferValidate(t *testing.T) {
	var tests = []struct {
		name string
		tok  token.Buffer
		axis string
	}{
		{
			name: "audio backend",
			tok:  token.AudioBackend,
		},
		{
			name: "graphics backend",
			tok:  token.GraphicsBackend,
		},
		{
			name: "audio parallel",
			tok:  token.AudioParallel,
		},
		{
			name: "window events",
			tok:  token.WindowEvents,
		},
		{
			name: "zero token",
			tok:  0,
			axis: "buffer",
		},
		{
			name: "two rates",
			tok:  token.SampleBlock | token.FrameBlock | token.HostCPU | token.Sequential,
			axis: "rate",
		},
		{
			name: "two locations",
			tok:  token.SampleBlock | token.HostCPU | token.Accelerator | token.Sequential,
			axis: "location",
		},
		{
			name: "two concurrencies",
			tok:  token.SampleBlock | token.HostCPU | token.Sequential | token.Parallel,
			axis: "concurrency",
		},
		{
			name: "missing location",
			tok:  token.SampleBlock | token.Sequential,
			axis: "location",
		},
		{
			name: "unknown bits",
			tok:  token.AudioBackend | 1<<20,
			axis: "buffer",
		},
	}

	for _, test := range tests {
		err := test.tok.Validate()
		if test.axis == "" {
			assert.NoError(t, err, test.name)
			continue
		}
		assert.Error(t, err, test.name)
		var confErr *token.ConfigError
		if assert.True(t, errors.As(err, &confErr), test.name) {
			assert.Equal(t, test.axis, confErr.Axis, test.name)
		}
	}
}

func TestBufferAxes(t *testing.T) {
	assert.Equal(t, token.SampleBlock, token.AudioBackend.Rate())
	assert.Equal(t, token.HostCPU, token.AudioBackend.Location())
	assert.Equal(t, token.Sequential, token.AudioBackend.Concurrency())
	assert.True(t, token.AudioBackend.Contains(token.SampleBlock))
	assert.False(t, token.AudioBackend.Contains(token.Parallel))
}

func TestCompose(t *testing.T) {
	d, err := token.Compose("stereo", token.SampleRate, token.AudioBackend, token.SampleAccurate)
	assert.NoError(t, err)
	u, b, r := d.Decompose()
	assert.Equal(t, token.SampleRate, u)
	assert.Equal(t, token.AudioBackend, b)
	assert.Equal(t, token.SampleAccurate, r)
	assert.Equal(t, "stereo", d.Name())
	assert.False(t, d.Zero())
}

func TestComposeErrors(t *testing.T) {
	var tests = []struct {
		name    string
		domain  string
		unit    token.Unit
		buffer  token.Buffer
		routine token.Routine
	}{
		{
			name:    "empty name",
			unit:    token.SampleRate,
			buffer:  token.AudioBackend,
			routine: token.SampleAccurate,
		},
		{
			name:    "zero unit",
			domain:  "d",
			buffer:  token.AudioBackend,
			routine: token.SampleAccurate,
		},
		{
			name:    "conflicting buffer axes",
			domain:  "d",
			unit:    token.SampleRate,
			buffer:  token.SampleBlock | token.FrameBlock | token.HostCPU | token.Sequential,
			routine: token.SampleAccurate,
		},
		{
			name:   "zero routine",
			domain: "d",
			unit:   token.SampleRate,
			buffer: token.AudioBackend,
		},
	}

	for _, test := range tests {
		d, err := token.Compose(test.domain, test.unit, test.buffer, test.routine)
		assert.Error(t, err, test.name)
		var confErr *token.ConfigError
		assert.True(t, errors.As(err, &confErr), test.name)
		assert.True(t, d.Zero(), test.name)
	}
}

func TestPredefinedDomains(t *testing.T) {
	assert.Equal(t, token.SampleRate, token.Audio.Unit())
	assert.Equal(t, token.AudioBackend, token.Audio.Buffer())
	assert.Equal(t, token.SampleAccurate, token.Audio.Routine())
	assert.Equal(t, token.FrameRate, token.Graphics.Unit())
	assert.Equal(t, token.GraphicsBackend, token.Graphics.Buffer())
	assert.Equal(t, token.FrameAccurate, token.Graphics.Routine())
}

func TestTokenStrings(t *testing.T) {
	assert.Equal(t, "sample-rate", token.SampleRate.String())
	assert.Equal(t, "audio-backend", token.AudioBackend.String())
	assert.Equal(t, "sample-block|host-cpu", (token.SampleBlock | token.HostCPU).String())
	assert.Equal(t, "event-driven", token.EventDriven.String())
	assert.Equal(t, "invalid", token.Unit(0).String())
}
