package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/wailsapp/wails/v3/pkg/application"

	"github.com/spectralf/speechwave/capture"
	"github.com/spectralf/speechwave/config"
	"github.com/spectralf/speechwave/dictate"
	"github.com/spectralf/speechwave/hotkey"
	"github.com/spectralf/speechwave/insert"
	"github.com/spectralf/speechwave/notify"
	"github.com/spectralf/speechwave/transcribe"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var modelSizes = []string{"tiny", "base", "small", "medium", "large"}

// trayStatus surfaces coordinator state in the tray and forwards
// notices as desktop notifications.
type trayStatus struct {
	mu   sync.Mutex
	item *application.MenuItem
}

func (t *trayStatus) setItem(item *application.MenuItem) {
	t.mu.Lock()
	t.item = item
	t.mu.Unlock()
}

func (t *trayStatus) StateChanged(s dictate.State) {
	t.mu.Lock()
	item := t.item
	t.mu.Unlock()
	if item == nil {
		return
	}
	switch s {
	case dictate.StateCapturing:
		item.SetLabel("Status: recording")
	case dictate.StateTranscribing:
		item.SetLabel("Status: transcribing")
	default:
		item.SetLabel("Status: idle")
	}
}

func (t *trayStatus) Notice(title, message string) {
	notify.Show(title, message)
}

// lateRebinder lets the coordinator rebind the hotkey even though the
// watcher is created after the coordinator.
type lateRebinder struct {
	mu sync.Mutex
	w  *hotkey.Watcher
}

func (r *lateRebinder) set(w *hotkey.Watcher) {
	r.mu.Lock()
	r.w = w
	r.mu.Unlock()
}

func (r *lateRebinder) Update(combo string) error {
	r.mu.Lock()
	w := r.w
	r.mu.Unlock()
	if w == nil {
		return fmt.Errorf("%w: no active watcher", hotkey.ErrRegistration)
	}
	return w.Update(combo)
}

func main() {
	slog.Info("starting speechwave", "version", version, "commit", commit, "date", date)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = config.Default()
	}
	store := config.NewStore(cfg)
	notify.SetEnabled(cfg.Notifications)

	engine, err := transcribe.NewWhisperCPP(transcribe.WhisperCPPConfig{
		ModelSize: cfg.Transcription.Model,
		Language:  cfg.Transcription.Language,
		BeamSize:  cfg.Transcription.BeamSize,
	})
	if err != nil {
		slog.Error("init transcription engine", "error", err)
		os.Exit(1)
	}

	driver := insert.NewDriver(insert.Options{
		AppendSpace: cfg.Insertion.AddSpaceAfter,
		Delay:       time.Duration(cfg.Insertion.DelayMs) * time.Millisecond,
	})

	status := &trayStatus{}
	rebind := &lateRebinder{}

	var coord *dictate.Coordinator
	worker := transcribe.NewWorker(engine,
		time.Duration(cfg.Transcription.IdleUnloadSec)*time.Second,
		func(r transcribe.Result) { coord.DeliverResult(r) },
		func(err error) {
			notify.Show("Model unavailable", "The transcription model failed to load. Dictation will retry on the next hold.")
		},
	)
	worker.Start()

	coord = dictate.New(dictate.Options{
		NewRecorder: func() dictate.Recorder {
			c := store.Get()
			return capture.NewSession(capture.Config{
				Device:     c.Audio.Device,
				SampleRate: c.Audio.SampleRate,
				Channels:   c.Audio.Channels,
			})
		},
		Worker:   worker,
		Inserter: driver,
		Rebinder: rebind,
		Observer: status,
		MinHold:  time.Duration(cfg.Audio.MinHoldMs) * time.Millisecond,
	})
	coord.Start()

	hotkeyDegraded := false
	watcher, err := hotkey.New(cfg.Hotkey.Record, coord.Hotkeys())
	if err != nil {
		slog.Error("hotkey registration failed", "combo", cfg.Hotkey.Record, "error", err)
		notify.Show("Hotkey unavailable", "Dictation shortcut could not be registered. Fix the combo in the config file.")
		hotkeyDegraded = true
	} else {
		rebind.set(watcher)
		if cfg.Hotkey.Enabled {
			if err := watcher.Start(); err != nil {
				slog.Error("hotkey start failed", "error", err)
				notify.Show("Hotkey unavailable", "The system keyboard hook could not be installed.")
				hotkeyDegraded = true
			}
		}
	}

	store.Subscribe(func(c config.Config) {
		notify.SetEnabled(c.Notifications)
		driver.SetOptions(insert.Options{
			AppendSpace: c.Insertion.AddSpaceAfter,
			Delay:       time.Duration(c.Insertion.DelayMs) * time.Millisecond,
		})
		worker.SetIdleTimeout(time.Duration(c.Transcription.IdleUnloadSec) * time.Second)
		coord.ApplySettings(dictate.Settings{
			Combo:   c.Hotkey.Record,
			Model:   c.Transcription.Model,
			MinHold: time.Duration(c.Audio.MinHoldMs) * time.Millisecond,
		})
	})

	app := application.New(application.Options{
		Name:        "SpeechWave",
		Description: "Offline push-to-talk dictation",
		Mac: application.MacOptions{
			// Tray-only app, nothing to terminate with.
			ApplicationShouldTerminateAfterLastWindowClosed: false,
		},
	})

	systemTray := app.SystemTray.New()
	systemTray.SetLabel("SpeechWave")

	trayMenu := app.NewMenu()
	statusItem := trayMenu.Add("Status: idle")
	statusItem.SetEnabled(false)
	if hotkeyDegraded {
		statusItem.SetLabel("Status: hotkey unavailable")
	} else {
		status.setItem(statusItem)
	}

	trayMenu.AddSeparator()

	modelMenu := trayMenu.AddSubmenu("Model")
	for _, size := range modelSizes {
		size := size
		modelMenu.AddRadio(size, size == cfg.Transcription.Model).OnClick(func(ctx *application.Context) {
			if err := store.Update(func(c *config.Config) {
				c.Transcription.Model = size
			}); err != nil {
				slog.Error("save model selection", "error", err)
			}
		})
	}

	deviceMenu := trayMenu.AddSubmenu("Microphone")
	deviceMenu.AddRadio("System default", cfg.Audio.Device == "").OnClick(func(ctx *application.Context) {
		if err := store.Update(func(c *config.Config) {
			c.Audio.Device = ""
		}); err != nil {
			slog.Error("save device selection", "error", err)
		}
	})
	if devices, err := capture.Devices(); err != nil {
		slog.Warn("enumerate input devices", "error", err)
	} else {
		for _, dev := range devices {
			name := dev.Name
			deviceMenu.AddRadio(name, name == cfg.Audio.Device).OnClick(func(ctx *application.Context) {
				if err := store.Update(func(c *config.Config) {
					c.Audio.Device = name
				}); err != nil {
					slog.Error("save device selection", "error", err)
				}
			})
		}
	}

	trayMenu.AddCheckbox("Notifications", cfg.Notifications).OnClick(func(ctx *application.Context) {
		if err := store.Update(func(c *config.Config) {
			c.Notifications = !c.Notifications
		}); err != nil {
			slog.Error("save notification toggle", "error", err)
		}
	})

	trayMenu.AddSeparator()
	trayMenu.Add("Quit").
		SetAccelerator("CmdOrCtrl+Q").
		OnClick(func(ctx *application.Context) {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := coord.Close(shutdownCtx); err != nil {
				slog.Warn("coordinator shutdown", "error", err)
			}
			if watcher != nil {
				watcher.Stop()
			}
			app.Quit()
		})

	systemTray.SetMenu(trayMenu)

	if !hotkeyDegraded {
		notify.Show("", fmt.Sprintf("SpeechWave is running. Hold %s to dictate.", cfg.Hotkey.Record))
	}

	if err := app.Run(); err != nil {
		slog.Error("run app", "error", err)
	}
}
