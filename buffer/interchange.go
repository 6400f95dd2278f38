package buffer

import (
	"github.com/go-audio/audio"

	"github.com/pipelined/pulse/token"
)

// Interleaved collects the last accumulated blocks of the token's
// channel roots into one interleaved go-audio buffer, the layout audio
// backends and file encoders consume.
func (m *Manager) Interleaved(tok token.Buffer, sampleRate int) *audio.FloatBuffer {
	roots := m.tokenRoots(tok)
	if len(roots) == 0 {
		return &audio.FloatBuffer{
			Format: &audio.Format{NumChannels: 0, SampleRate: sampleRate},
		}
	}
	frames := roots[0].Size()
	data := make([]float64, frames*len(roots))
	for c, r := range roots {
		for f, sample := range r.output {
			data[f*len(roots)+c] = sample
		}
	}
	return &audio.FloatBuffer{
		Format: &audio.Format{
			NumChannels: len(roots),
			SampleRate:  sampleRate,
		},
		Data: data,
	}
}

// Deinterleave distributes an interleaved go-audio buffer into the
// token's per-channel input buffers. It is the inbound counterpart of
// Interleaved.
func (m *Manager) Deinterleave(tok token.Buffer, buf *audio.FloatBuffer) error {
	if buf == nil || buf.Format == nil || buf.Format.NumChannels == 0 {
		return nil
	}
	return m.ProcessInput(tok, buf.Data, uint32(buf.Format.NumChannels))
}
