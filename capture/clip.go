// Package capture records microphone audio for the duration of one hold
// gesture and hands it off as an immutable clip.
package capture

import (
	"errors"
	"time"
)

// Errors reported by a capture session.
var (
	// ErrDeviceUnavailable is returned when the input device cannot be opened.
	ErrDeviceUnavailable = errors.New("capture: input device unavailable")
	// ErrNotStarted is returned by Stop when Start never succeeded.
	ErrNotStarted = errors.New("capture: session not started")
	// ErrAlreadyStarted is returned when Start is called twice on one session.
	ErrAlreadyStarted = errors.New("capture: session already started")
)

// EngineSampleRate is the fixed sample rate the transcription engine expects.
// Clips handed off by a session are always at this rate, mono.
const EngineSampleRate = 16000

// Clip is the bounded audio captured during one hold gesture.
// A clip is immutable once the session that produced it has stopped.
type Clip struct {
	// Samples are signed 16-bit mono PCM values at SampleRate.
	Samples    []int16
	SampleRate int
	// Truncated is set when the device over- or underflowed during capture;
	// the clip contains whatever was captured.
	Truncated bool
}

// Duration returns the audio duration of the clip.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// Empty reports whether the clip is shorter than the minimum capture
// duration and should be discarded without transcription.
func (c *Clip) Empty(min time.Duration) bool {
	if c == nil || len(c.Samples) == 0 {
		return true
	}
	return c.Duration() < min
}
