package buffer_test

import (
	"errors"
	"testing"

	"github.com/go-audio/audio"
	"github.com/stretchr/testify/assert"

	"github.com/pipelined/pulse/buffer"
	"github.com/pipelined/pulse/token"
)

func TestManagerRoots(t *testing.T) {
	m := buffer.NewManager(buffer.WithBlockSize(16))
	assert.Equal(t, 16, m.BlockSize())

	r1, err := m.Root(token.AudioBackend, 0)
	assert.NoError(t, err)
	assert.Equal(t, 16, r1.Size())
	r2, err := m.Root(token.AudioBackend, 0)
	assert.NoError(t, err)
	assert.Same(t, r1, r2)

	other, err := m.Root(token.GraphicsBackend, 0)
	assert.NoError(t, err)
	assert.NotSame(t, r1, other)

	_, err = m.Root(token.SampleBlock, 0)
	var confErr *token.ConfigError
	assert.True(t, errors.As(err, &confErr))
}

func TestSetupChannels(t *testing.T) {
	m := buffer.NewManager()
	assert.NoError(t, m.SetupChannels(token.AudioBackend, 2))
	assert.Equal(t, []uint32{0, 1}, m.Channels(token.AudioBackend))
	assert.Empty(t, m.Channels(token.GraphicsBackend))

	m.Reset(token.AudioBackend)
	assert.Empty(t, m.Channels(token.AudioBackend))
}

func TestManagerProcess(t *testing.T) {
	m := buffer.NewManager(buffer.WithBlockSize(4))
	b, err := buffer.New(token.AudioBackend, 0, 4)
	assert.NoError(t, err)
	assert.NoError(t, b.SetDefault(buffer.NewProc(token.AudioBackend, fill(0.4))))
	assert.NoError(t, m.AddChild(token.AudioBackend, 0, b))

	out, err := m.ProcessChannel(token.AudioBackend, 0)
	assert.NoError(t, err)
	assert.InDelta(t, 0.4, out[0], 1e-9)

	out, err = m.ProcessChannelWithNodeData(token.AudioBackend, 0, []float64{0.1, 0.1, 0.1, 0.1})
	assert.NoError(t, err)
	assert.InDelta(t, 0.5, out[0], 1e-9)

	m.RemoveChild(token.AudioBackend, 0, b)
	out, err = m.ProcessChannel(token.AudioBackend, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0.0, out[0])
}

func TestCrossAccess(t *testing.T) {
	m := buffer.NewManager(buffer.WithBlockSize(2))
	b, err := buffer.New(token.AudioBackend, 0, 2)
	assert.NoError(t, err)
	assert.NoError(t, b.SetDefault(buffer.NewProc(token.AudioBackend, fill(0.3))))
	assert.NoError(t, m.AddChild(token.AudioBackend, 0, b))
	_, err = m.ProcessChannel(token.AudioBackend, 0)
	assert.NoError(t, err)

	// deny by default
	_, err = m.Read(token.GraphicsBackend, token.AudioBackend, 0)
	assert.True(t, errors.Is(err, buffer.ErrAccessDenied))

	// same-token reads always pass
	out, err := m.Read(token.AudioBackend, token.AudioBackend, 0)
	assert.NoError(t, err)
	assert.InDelta(t, 0.3, out[0], 1e-9)

	// explicit grant opens the read, revocation closes it again
	m.Allow(token.GraphicsBackend, token.AudioBackend)
	out, err = m.Read(token.GraphicsBackend, token.AudioBackend, 0)
	assert.NoError(t, err)
	assert.InDelta(t, 0.3, out[0], 1e-9)

	// the returned block is a copy
	out[0] = 42
	again, err := m.Read(token.GraphicsBackend, token.AudioBackend, 0)
	assert.NoError(t, err)
	assert.InDelta(t, 0.3, again[0], 1e-9)

	m.Revoke(token.GraphicsBackend, token.AudioBackend)
	_, err = m.Read(token.GraphicsBackend, token.AudioBackend, 0)
	assert.True(t, errors.Is(err, buffer.ErrAccessDenied))

	// grants are directional
	_, err = m.Read(token.AudioBackend, token.GraphicsBackend, 0)
	assert.True(t, errors.Is(err, buffer.ErrAccessDenied))
}

func TestProcessInput(t *testing.T) {
	m := buffer.NewManager(buffer.WithBlockSize(2))
	interleaved := []float64{0.1, 0.2, 0.3, 0.4}
	assert.NoError(t, m.ProcessInput(token.AudioBackend, interleaved, 2))

	left, err := m.ProcessChannel(token.AudioBackend, 0)
	assert.NoError(t, err)
	right, err := m.ProcessChannel(token.AudioBackend, 1)
	assert.NoError(t, err)
	assert.InDelta(t, 0.1, left[0], 1e-9)
	assert.InDelta(t, 0.3, left[1], 1e-9)
	assert.InDelta(t, 0.2, right[0], 1e-9)
	assert.InDelta(t, 0.4, right[1], 1e-9)
}

func TestInterleaved(t *testing.T) {
	m := buffer.NewManager(buffer.WithBlockSize(2))
	buf := &audio.FloatBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: 48000},
		Data:   []float64{0.1, 0.2, 0.3, 0.4},
	}
	assert.NoError(t, m.Deinterleave(token.AudioBackend, buf))
	m.ProcessToken(token.AudioBackend)

	out := m.Interleaved(token.AudioBackend, 48000)
	assert.Equal(t, 2, out.Format.NumChannels)
	assert.Equal(t, 48000, out.Format.SampleRate)
	assert.Len(t, out.Data, 4)
	assert.InDelta(t, 0.1, out.Data[0], 1e-9)
	assert.InDelta(t, 0.2, out.Data[1], 1e-9)
	assert.InDelta(t, 0.3, out.Data[2], 1e-9)
	assert.InDelta(t, 0.4, out.Data[3], 1e-9)

	empty := m.Interleaved(token.GraphicsBackend, 60)
	assert.Equal(t, 0, empty.Format.NumChannels)
	assert.Empty(t, empty.Data)
}
