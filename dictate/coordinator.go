// Package dictate orchestrates a dictation session from hotkey press to
// inserted text. A single event loop owns all session state, so capture,
// transcription results, and config changes can never race.
package dictate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/spectralf/speechwave/capture"
	"github.com/spectralf/speechwave/hotkey"
	"github.com/spectralf/speechwave/transcribe"
)

// Recorder is one microphone capture, used for exactly one session.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() (*capture.Clip, error)
}

// Transcriber accepts clips and reports results asynchronously.
type Transcriber interface {
	Submit(sessionID uint64, clip *capture.Clip) error
	SetModel(size string)
	Close()
}

// Inserter delivers final text to the focused application.
type Inserter interface {
	Insert(text string) error
}

// Rebinder re-registers the global hotkey at runtime.
type Rebinder interface {
	Update(combo string) error
}

// Settings are the runtime-adjustable knobs the coordinator reads.
type Settings struct {
	Combo   string
	Model   string
	MinHold time.Duration
}

// Options wires a Coordinator.
type Options struct {
	// NewRecorder creates a fresh capture for each session, configured
	// from current settings.
	NewRecorder func() Recorder
	Worker      Transcriber
	Inserter    Inserter
	// Rebinder may be nil when the hotkey cannot be rebound at runtime.
	Rebinder Rebinder
	// Observer may be nil.
	Observer StatusObserver
	MinHold  time.Duration
}

// Coordinator runs the dictation state machine. Hotkey edges, worker
// results, and settings updates all flow through one goroutine.
type Coordinator struct {
	newRecorder func() Recorder
	worker      Transcriber
	inserter    Inserter
	rebinder    Rebinder
	observer    StatusObserver

	hotkeys  chan hotkey.Event
	results  chan transcribe.Result
	control  chan Settings
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once

	// Loop-owned; never touched outside run().
	state   State
	session uint64
	active  uint64
	rec     Recorder
	minHold time.Duration
}

// New creates a coordinator. Call Start to begin processing.
func New(opts Options) *Coordinator {
	return &Coordinator{
		newRecorder: opts.NewRecorder,
		worker:      opts.Worker,
		inserter:    opts.Inserter,
		rebinder:    opts.Rebinder,
		observer:    opts.Observer,
		minHold:     opts.MinHold,
		hotkeys:     make(chan hotkey.Event, 8),
		results:     make(chan transcribe.Result, 8),
		control:     make(chan Settings, 4),
		quit:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Hotkeys is the channel the hotkey watcher feeds.
func (c *Coordinator) Hotkeys() chan<- hotkey.Event {
	return c.hotkeys
}

// DeliverResult hands a finished transcription to the event loop.
// Never blocks; results for sessions nobody waits on are dropped.
func (c *Coordinator) DeliverResult(r transcribe.Result) {
	select {
	case c.results <- r:
	case <-c.quit:
	default:
		slog.Warn("result queue full, dropping", "session", r.SessionID)
	}
}

// ApplySettings forwards updated settings to the event loop.
func (c *Coordinator) ApplySettings(s Settings) {
	select {
	case c.control <- s:
	case <-c.quit:
	}
}

// Start launches the event loop.
func (c *Coordinator) Start() {
	go c.run()
}

// Close stops the coordinator: in-progress capture is discarded, the
// microphone released, and the worker shut down. Waits until the loop
// exits or ctx is done.
func (c *Coordinator) Close(ctx context.Context) error {
	c.quitOnce.Do(func() { close(c.quit) })
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.worker.Close()
	return nil
}

func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case <-c.quit:
			c.abortCapture()
			c.setState(StateIdle)
			return
		case ev := <-c.hotkeys:
			switch ev.Kind {
			case hotkey.Press:
				c.onPress()
			case hotkey.Release:
				c.onRelease()
			}
		case r := <-c.results:
			c.onResult(r)
		case s := <-c.control:
			c.onSettings(s)
		}
	}
}

// onPress starts a new session, superseding whatever was in flight.
func (c *Coordinator) onPress() {
	switch c.state {
	case StateCapturing:
		// The watcher should have sent a release first; recover by
		// discarding the orphaned capture.
		c.setState(StateAborting)
		c.abortCapture()
	case StateTranscribing:
		// The pending result becomes stale the moment a new session
		// starts; bumping the active id is the whole cancellation.
		c.setState(StateAborting)
		slog.Debug("superseding session", "session", c.active)
	}

	c.session++
	id := c.session

	rec := c.newRecorder()
	if err := rec.Start(context.Background()); err != nil {
		if errors.Is(err, capture.ErrDeviceUnavailable) {
			c.notice("Microphone unavailable", "Check that an input device is connected and not in use.")
		} else {
			c.notice("Recording failed", "Could not start audio capture.")
		}
		slog.Error("capture start failed", "session", id, "error", err)
		c.setState(StateIdle)
		return
	}

	c.rec = rec
	c.active = id
	c.setState(StateCapturing)
	slog.Debug("capture started", "session", id)
}

// onRelease ends the capture and hands the clip to the worker.
func (c *Coordinator) onRelease() {
	if c.state != StateCapturing || c.rec == nil {
		return
	}

	clip, err := c.rec.Stop()
	c.rec = nil
	if err != nil {
		slog.Warn("capture stop failed", "session", c.active, "error", err)
		c.setState(StateIdle)
		return
	}

	if clip == nil || clip.Empty(c.minHold) {
		slog.Debug("discarding short capture", "session", c.active)
		c.setState(StateIdle)
		return
	}
	if clip.Truncated {
		slog.Warn("capture truncated by input overflow", "session", c.active)
	}

	if err := c.worker.Submit(c.active, clip); err != nil {
		slog.Warn("transcription submit failed", "session", c.active, "error", err)
		c.setState(StateIdle)
		return
	}
	c.setState(StateTranscribing)
}

// onResult inserts the transcript, unless the session was superseded.
func (c *Coordinator) onResult(r transcribe.Result) {
	if c.state != StateTranscribing || r.SessionID != c.active {
		slog.Debug("dropping stale result", "session", r.SessionID)
		return
	}

	c.setState(StateIdle)
	if r.Err != nil {
		// Empty audio and failed transcriptions end the session
		// quietly; model-load problems are notified by the worker.
		return
	}

	if err := c.inserter.Insert(r.Text); err != nil {
		slog.Error("insertion failed", "session", r.SessionID, "error", err)
		c.notice("Insertion failed", "The transcribed text could not be typed.")
	}
}

func (c *Coordinator) onSettings(s Settings) {
	if s.MinHold > 0 {
		c.minHold = s.MinHold
	}
	if s.Model != "" {
		c.worker.SetModel(s.Model)
	}
	if s.Combo != "" && c.rebinder != nil {
		if err := c.rebinder.Update(s.Combo); err != nil {
			slog.Error("hotkey rebind failed", "combo", s.Combo, "error", err)
			c.notice("Hotkey unavailable", "The previous shortcut remains active.")
		}
	}
}

// abortCapture stops and discards any open recorder.
func (c *Coordinator) abortCapture() {
	if c.rec == nil {
		return
	}
	if _, err := c.rec.Stop(); err != nil {
		slog.Warn("abort stop failed", "session", c.active, "error", err)
	}
	c.rec = nil
}

func (c *Coordinator) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.observer != nil {
		c.observer.StateChanged(s)
	}
}

func (c *Coordinator) notice(title, message string) {
	if c.observer != nil {
		c.observer.Notice(title, message)
	}
}
