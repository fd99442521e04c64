package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spectralf/speechwave/capture"
)

// Worker lifecycle errors.
var (
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("transcribe: worker closed")
	// ErrBusy is returned by Submit when the job queue is full.
	ErrBusy = errors.New("transcribe: worker queue full")
)

type job struct {
	session uint64
	clip    *capture.Clip
}

// Worker runs transcriptions on a dedicated goroutine so inference never
// blocks the hotkey or UI threads. It owns the engine lifecycle: lazy
// load on the first job, reload after a model swap, and idle unload.
//
// Jobs and the idle timer are handled by the same goroutine, so an idle
// unload can never fire while a transcription is in flight.
type Worker struct {
	engine  Engine
	deliver func(Result)
	// onDegraded is called once per load-failure streak; the next
	// successful load re-arms it.
	onDegraded func(error)
	idle       time.Duration

	mu       sync.Mutex
	closed   bool
	loaded   bool
	notified bool

	jobs chan job
	quit chan struct{}
	done chan struct{}
}

// NewWorker creates a worker delivering results through deliver. idle of
// zero disables idle unload. onDegraded may be nil.
func NewWorker(engine Engine, idle time.Duration, deliver func(Result), onDegraded func(error)) *Worker {
	return &Worker{
		engine:     engine,
		deliver:    deliver,
		onDegraded: onDegraded,
		idle:       idle,
		jobs:       make(chan job, 4),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start spawns the worker goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Submit queues a clip for transcription. Never blocks: a full queue
// yields ErrBusy and the clip is dropped.
func (w *Worker) Submit(sessionID uint64, clip *capture.Clip) error {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case w.jobs <- job{session: sessionID, clip: clip}:
		return nil
	default:
		return ErrBusy
	}
}

// SetModel swaps the preferred model size. The engine reloads lazily on
// the next job.
func (w *Worker) SetModel(size string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.engine.SetModel(size)
	w.loaded = false
}

// SetIdleTimeout changes the idle-unload period. Takes effect after the
// next job completes.
func (w *Worker) SetIdleTimeout(idle time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.idle = idle
}

// Close stops the worker and unloads the engine. Pending jobs are
// discarded; an in-flight job finishes first.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	close(w.quit)
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)

	var timer *time.Timer
	var idleC <-chan time.Time

	for {
		select {
		case <-w.quit:
			if timer != nil {
				timer.Stop()
			}
			w.unloadIfLoaded()
			return

		case j := <-w.jobs:
			res := w.process(j)
			w.mu.Lock()
			idle := w.idle
			w.mu.Unlock()
			if idle > 0 {
				if timer == nil {
					timer = time.NewTimer(idle)
					idleC = timer.C
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(idle)
				}
			}
			w.deliver(res)

		case <-idleC:
			w.unloadIfLoaded()
		}
	}
}

// process runs one job, loading the engine first when needed.
func (w *Worker) process(j job) Result {
	ctx := context.Background()

	w.mu.Lock()
	loaded := w.loaded
	w.mu.Unlock()

	if !loaded {
		if err := w.engine.Load(ctx); err != nil {
			if !errors.Is(err, ErrModelLoad) {
				err = fmt.Errorf("%w: %v", ErrModelLoad, err)
			}
			w.mu.Lock()
			first := !w.notified
			w.notified = true
			w.mu.Unlock()
			if first {
				slog.Error("engine load failed", "error", err)
				if w.onDegraded != nil {
					w.onDegraded(err)
				}
			}
			return Result{SessionID: j.session, Err: err}
		}
		w.mu.Lock()
		w.loaded = true
		w.notified = false
		w.mu.Unlock()
	}

	start := time.Now()
	t, err := w.engine.Transcribe(ctx, j.clip)
	elapsed := time.Since(start)
	if err != nil {
		if !errors.Is(err, ErrEmptyTranscript) {
			slog.Warn("transcription failed", "session", j.session, "error", err)
		}
		return Result{SessionID: j.session, Elapsed: elapsed, Err: err}
	}

	slog.Debug("transcription complete",
		"session", j.session, "chars", len(t.Text), "elapsed", elapsed)
	return Result{
		SessionID:  j.session,
		Text:       t.Text,
		Language:   t.Language,
		Confidence: t.Confidence,
		Elapsed:    elapsed,
	}
}

func (w *Worker) unloadIfLoaded() {
	w.mu.Lock()
	loaded := w.loaded
	w.loaded = false
	w.mu.Unlock()
	if loaded {
		w.engine.Unload()
	}
}
