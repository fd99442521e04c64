// Package transcribe runs speech-to-text on captured clips through a
// lazily-loaded engine, off the hotkey and UI threads.
package transcribe

import (
	"context"
	"errors"
	"time"

	"github.com/spectralf/speechwave/capture"
)

// Errors reported across the worker boundary.
var (
	// ErrModelLoad is returned when the engine cannot be loaded.
	ErrModelLoad = errors.New("transcribe: model load failed")
	// ErrEmptyTranscript is returned when the engine produced no text.
	ErrEmptyTranscript = errors.New("transcribe: empty transcript")
)

// Transcript is the raw engine output for one clip.
type Transcript struct {
	Text       string
	Language   string
	Confidence float64
}

// Result is a finished transcription delivered back to the coordinator,
// tagged with the session that produced the clip. Exactly one of Text or
// Err is meaningful. The text is never logged or persisted.
type Result struct {
	SessionID  uint64
	Text       string
	Language   string
	Confidence float64
	// Elapsed is the inference wall time, for latency diagnostics.
	Elapsed time.Duration
	Err     error
}

// Engine is a speech-to-text backend. Load is the expensive step and is
// called lazily by the worker; Unload releases whatever Load acquired.
// Implementations must expect the clip to be 16kHz mono PCM.
type Engine interface {
	Load(ctx context.Context) error
	Transcribe(ctx context.Context, clip *capture.Clip) (*Transcript, error)
	SetModel(size string)
	Unload()
}
