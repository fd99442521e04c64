// Package hotkey turns the global keyboard stream into clean
// press/release edges for a configurable key combination.
package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	hook "github.com/robotn/gohook"
)

// ErrRegistration is returned when the combo cannot be parsed or the
// system-wide keyboard hook cannot be installed.
var ErrRegistration = errors.New("hotkey: registration failed")

// EventKind distinguishes the two edges of a hold.
type EventKind int

const (
	// Press fires once when every key of the combo is down.
	Press EventKind = iota
	// Release fires once when any key of the combo comes up.
	Release
)

func (k EventKind) String() string {
	if k == Press {
		return "press"
	}
	return "release"
}

// Event is a normalized combo edge.
type Event struct {
	Kind EventKind
	At   time.Time
}

// Watcher listens to the OS keyboard hook and emits exactly one Press
// per physical hold regardless of key-repeat, and one matching Release.
type Watcher struct {
	mu      sync.Mutex
	combo   []uint16
	label   string
	pressed map[uint16]bool
	held    bool
	running bool
	done    chan struct{}

	events chan<- Event
}

// New creates a watcher for a combo like "alt+v" or "ctrl+shift+space".
// Events are sent to events without blocking; a full channel drops the
// edge with a warning.
func New(combo string, events chan<- Event) (*Watcher, error) {
	codes, err := parseCombo(combo)
	if err != nil {
		return nil, err
	}
	return &Watcher{
		combo:   codes,
		label:   combo,
		pressed: make(map[uint16]bool),
		events:  events,
	}, nil
}

// parseCombo resolves each "+"-separated key name to its raw keycode.
func parseCombo(combo string) ([]uint16, error) {
	parts := strings.Split(strings.ToLower(combo), "+")
	codes := make([]uint16, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("%w: empty key in %q", ErrRegistration, combo)
		}
		code := hook.KeychartoRawcode(part)
		if code == 0 {
			return nil, fmt.Errorf("%w: unknown key %q", ErrRegistration, part)
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: empty combo", ErrRegistration)
	}
	return codes, nil
}

// Start installs the keyboard hook and begins emitting events.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	ch := hook.Start()
	if ch == nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: keyboard hook unavailable", ErrRegistration)
	}
	w.running = true
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	slog.Info("hotkey registered", "combo", w.label)
	go func() {
		defer close(done)
		for ev := range ch {
			w.process(ev)
		}
	}()
	return nil
}

// Stop removes the keyboard hook and waits for the event goroutine.
func (w *Watcher) Stop() {
	w.mu.Lock()
	running := w.running
	done := w.done
	w.running = false
	w.mu.Unlock()
	if !running {
		return
	}
	hook.End()
	<-done
}

// Update switches to a new combo at runtime. A hold in progress is
// closed out with a Release so the coordinator never sees a dangling
// press.
func (w *Watcher) Update(combo string) error {
	codes, err := parseCombo(combo)
	if err != nil {
		return err
	}

	w.mu.Lock()
	wasHeld := w.held
	w.combo = codes
	w.label = combo
	w.pressed = make(map[uint16]bool)
	w.held = false
	w.mu.Unlock()

	if wasHeld {
		w.send(Event{Kind: Release, At: time.Now()})
	}
	slog.Info("hotkey updated", "combo", combo)
	return nil
}

// process folds one raw keyboard event into the held state, emitting an
// edge when the combo becomes fully down or stops being so.
func (w *Watcher) process(ev hook.Event) {
	w.mu.Lock()
	switch ev.Kind {
	case hook.KeyDown, hook.KeyHold:
		w.pressed[ev.Rawcode] = true
	case hook.KeyUp:
		delete(w.pressed, ev.Rawcode)
	default:
		w.mu.Unlock()
		return
	}

	all := true
	for _, code := range w.combo {
		if !w.pressed[code] {
			all = false
			break
		}
	}

	var out *Event
	switch {
	case all && !w.held:
		w.held = true
		out = &Event{Kind: Press, At: time.Now()}
	case !all && w.held:
		w.held = false
		out = &Event{Kind: Release, At: time.Now()}
	}
	w.mu.Unlock()

	if out != nil {
		w.send(*out)
	}
}

func (w *Watcher) send(ev Event) {
	select {
	case w.events <- ev:
	default:
		slog.Warn("hotkey event dropped", "kind", ev.Kind)
	}
}
