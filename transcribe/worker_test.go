package transcribe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spectralf/speechwave/capture"
)

// fakeEngine counts lifecycle calls and lets tests script load failures.
type fakeEngine struct {
	mu      sync.Mutex
	loads   int
	unloads int
	jobs    int
	failN   int // fail the first N Load calls
	text    string
}

func (f *fakeEngine) Load(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.loads <= f.failN {
		return errors.New("model missing")
	}
	return nil
}

func (f *fakeEngine) Transcribe(ctx context.Context, clip *capture.Clip) (*Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs++
	if f.text == "" {
		return nil, ErrEmptyTranscript
	}
	return &Transcript{Text: f.text, Language: "en"}, nil
}

func (f *fakeEngine) SetModel(size string) {}

func (f *fakeEngine) Unload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unloads++
}

func (f *fakeEngine) counts() (loads, unloads, jobs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads, f.unloads, f.jobs
}

func testClip() *capture.Clip {
	return &capture.Clip{
		Samples:    make([]int16, capture.EngineSampleRate), // one second
		SampleRate: capture.EngineSampleRate,
	}
}

func collectResults(buf int) (func(Result), <-chan Result) {
	ch := make(chan Result, buf)
	return func(r Result) { ch <- r }, ch
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return Result{}
	}
}

func TestWorkerLoadsOnce(t *testing.T) {
	eng := &fakeEngine{text: "hello"}
	deliver, results := collectResults(4)
	w := NewWorker(eng, 0, deliver, nil)
	w.Start()
	defer w.Close()

	for i := uint64(1); i <= 3; i++ {
		if err := w.Submit(i, testClip()); err != nil {
			t.Fatal(err)
		}
		r := waitResult(t, results)
		if r.Err != nil {
			t.Fatalf("session %d: %v", i, r.Err)
		}
		if r.SessionID != i {
			t.Errorf("SessionID = %d, want %d", r.SessionID, i)
		}
		if r.Text != "hello" {
			t.Errorf("Text = %q, want hello", r.Text)
		}
	}

	loads, _, jobs := eng.counts()
	if loads != 1 {
		t.Errorf("loads = %d, want 1", loads)
	}
	if jobs != 3 {
		t.Errorf("jobs = %d, want 3", jobs)
	}
}

func TestWorkerLoadFailureNotifiesOnceAndRetries(t *testing.T) {
	eng := &fakeEngine{text: "ok", failN: 2}
	deliver, results := collectResults(4)
	var notices int
	var noticeMu sync.Mutex
	w := NewWorker(eng, 0, deliver, func(err error) {
		noticeMu.Lock()
		notices++
		noticeMu.Unlock()
	})
	w.Start()
	defer w.Close()

	// Two failing sessions, then one that succeeds.
	for i := uint64(1); i <= 2; i++ {
		if err := w.Submit(i, testClip()); err != nil {
			t.Fatal(err)
		}
		r := waitResult(t, results)
		if !errors.Is(r.Err, ErrModelLoad) {
			t.Fatalf("session %d: err = %v, want ErrModelLoad", i, r.Err)
		}
	}

	if err := w.Submit(3, testClip()); err != nil {
		t.Fatal(err)
	}
	r := waitResult(t, results)
	if r.Err != nil {
		t.Fatalf("session 3: %v", r.Err)
	}
	if r.Text != "ok" {
		t.Errorf("Text = %q, want ok", r.Text)
	}

	noticeMu.Lock()
	defer noticeMu.Unlock()
	if notices != 1 {
		t.Errorf("degraded notices = %d, want 1", notices)
	}
}

func TestWorkerIdleUnload(t *testing.T) {
	eng := &fakeEngine{text: "hi"}
	deliver, results := collectResults(4)
	w := NewWorker(eng, 30*time.Millisecond, deliver, nil)
	w.Start()
	defer w.Close()

	if err := w.Submit(1, testClip()); err != nil {
		t.Fatal(err)
	}
	waitResult(t, results)

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, unloads, _ := eng.counts()
		if unloads == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("engine never unloaded after going idle")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A job after the unload triggers a fresh load.
	if err := w.Submit(2, testClip()); err != nil {
		t.Fatal(err)
	}
	if r := waitResult(t, results); r.Err != nil {
		t.Fatal(r.Err)
	}
	loads, _, _ := eng.counts()
	if loads != 2 {
		t.Errorf("loads = %d, want 2", loads)
	}
}

// slowEngine stretches Transcribe past the idle timeout and records
// whether Unload ever overlapped a transcription in flight.
type slowEngine struct {
	mu         sync.Mutex
	delay      time.Duration
	loads      int
	unloads    int
	inFlight   bool
	overlapped bool
}

func (e *slowEngine) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loads++
	return nil
}

func (e *slowEngine) Transcribe(ctx context.Context, clip *capture.Clip) (*Transcript, error) {
	e.mu.Lock()
	e.inFlight = true
	e.mu.Unlock()

	time.Sleep(e.delay)

	e.mu.Lock()
	e.inFlight = false
	e.mu.Unlock()
	return &Transcript{Text: "ok"}, nil
}

func (e *slowEngine) SetModel(size string) {}

func (e *slowEngine) Unload() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight {
		e.overlapped = true
	}
	e.unloads++
}

func TestWorkerIdleUnloadNeverOverlapsTranscription(t *testing.T) {
	// Transcription takes ten times the idle timeout; the unload must
	// still wait until the worker is between jobs.
	eng := &slowEngine{delay: 120 * time.Millisecond}
	deliver, results := collectResults(4)
	w := NewWorker(eng, 10*time.Millisecond, deliver, nil)
	w.Start()
	defer w.Close()

	for i := uint64(1); i <= 2; i++ {
		if err := w.Submit(i, testClip()); err != nil {
			t.Fatal(err)
		}
		if r := waitResult(t, results); r.Err != nil {
			t.Fatalf("session %d: %v", i, r.Err)
		}

		// Wait out the idle unload after each job.
		deadline := time.Now().Add(2 * time.Second)
		for {
			eng.mu.Lock()
			unloads := eng.unloads
			eng.mu.Unlock()
			if unloads == int(i) {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("no idle unload after job %d", i)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	eng.mu.Lock()
	defer eng.mu.Unlock()
	if eng.overlapped {
		t.Fatal("engine unloaded while a transcription was in flight")
	}
	if eng.loads != 2 {
		t.Errorf("loads = %d, want 2 (reload after each idle unload)", eng.loads)
	}
}

func TestWorkerEmptyTranscript(t *testing.T) {
	eng := &fakeEngine{} // empty text yields ErrEmptyTranscript
	deliver, results := collectResults(1)
	w := NewWorker(eng, 0, deliver, nil)
	w.Start()
	defer w.Close()

	if err := w.Submit(1, testClip()); err != nil {
		t.Fatal(err)
	}
	r := waitResult(t, results)
	if !errors.Is(r.Err, ErrEmptyTranscript) {
		t.Errorf("err = %v, want ErrEmptyTranscript", r.Err)
	}
}

func TestWorkerSubmitAfterClose(t *testing.T) {
	eng := &fakeEngine{text: "x"}
	deliver, _ := collectResults(1)
	w := NewWorker(eng, 0, deliver, nil)
	w.Start()
	w.Close()

	if err := w.Submit(1, testClip()); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
	if _, unloads, _ := eng.counts(); unloads != 0 {
		// Never loaded, so Close must not call Unload.
		t.Errorf("unloads = %d, want 0", unloads)
	}
}

func TestWorkerSetModelForcesReload(t *testing.T) {
	eng := &fakeEngine{text: "a"}
	deliver, results := collectResults(2)
	w := NewWorker(eng, 0, deliver, nil)
	w.Start()
	defer w.Close()

	if err := w.Submit(1, testClip()); err != nil {
		t.Fatal(err)
	}
	waitResult(t, results)

	w.SetModel("tiny")

	if err := w.Submit(2, testClip()); err != nil {
		t.Fatal(err)
	}
	waitResult(t, results)

	loads, _, _ := eng.counts()
	if loads != 2 {
		t.Errorf("loads = %d, want 2", loads)
	}
}
