// Package insert delivers transcribed text into the focused application
// by emitting synthetic keystrokes, falling back to a clipboard paste for
// characters that have no portable key mapping.
package insert

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"
)

// ErrRejected is returned when the focused application would not accept
// the synthetic input.
var ErrRejected = errors.New("insert: target rejected input")

// Options controls how text is delivered.
type Options struct {
	// AppendSpace adds a trailing space so consecutive dictations
	// read naturally.
	AppendSpace bool
	// Delay is how long to wait before typing, giving focus a moment
	// to settle after the hotkey release.
	Delay time.Duration
}

// Driver types text at the current cursor position. Safe for concurrent
// use; inserts are serialized so interleaved sessions cannot shuffle
// keystrokes.
type Driver struct {
	mu   sync.Mutex
	opts Options

	// Overridable in tests.
	typeKeys func(string) error
	paste    func(string) error
}

// NewDriver creates a driver with the given options.
func NewDriver(opts Options) *Driver {
	return &Driver{
		opts:     opts,
		typeKeys: typeKeystrokes,
		paste:    pasteClipboard,
	}
}

// SetOptions replaces the delivery options.
func (d *Driver) SetOptions(opts Options) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opts = opts
}

// Insert delivers text to the focused application. Empty text is a
// no-op. Failures wrap ErrRejected; the text is dropped, never retried.
func (d *Driver) Insert(text string) error {
	if text == "" {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	text = norm.NFC.String(text)
	if d.opts.AppendSpace {
		text += " "
	}
	if d.opts.Delay > 0 {
		time.Sleep(d.opts.Delay)
	}

	var err error
	if typeable(text) {
		err = d.typeKeys(text)
	} else {
		err = d.paste(text)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return nil
}
