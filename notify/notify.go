// Package notify shows desktop notifications for status changes that
// need the user's attention, like a missing microphone or a failed
// model load.
package notify

import (
	"log/slog"
	"sync/atomic"

	"github.com/gen2brain/beeep"
)

const appTitle = "SpeechWave"

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

// SetEnabled toggles notifications globally.
func SetEnabled(on bool) {
	enabled.Store(on)
}

// Show displays a notification. Failures are logged and otherwise
// ignored; notifications are best effort.
func Show(title, message string) {
	if !enabled.Load() {
		return
	}
	if title == "" {
		title = appTitle
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		slog.Debug("notification failed", "title", title, "error", err)
	}
}
