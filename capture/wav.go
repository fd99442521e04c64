package capture

import (
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV writes the clip as 16-bit PCM WAV. The engine handoff format
// is WAV because whisper.cpp consumes files, not raw sample buffers.
func (c *Clip) EncodeWAV(w io.WriteSeeker) error {
	enc := wav.NewEncoder(w, c.SampleRate, 16, 1, 1)
	format := &audio.Format{NumChannels: 1, SampleRate: c.SampleRate}

	data := make([]int, len(c.Samples))
	for i, v := range c.Samples {
		data[i] = int(v)
	}
	buf := &audio.IntBuffer{Format: format, Data: data, SourceBitDepth: 16}

	if err := enc.Write(buf); err != nil {
		_ = enc.Close()
		return fmt.Errorf("wav write: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav close: %w", err)
	}
	return nil
}
