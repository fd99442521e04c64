// Package config handles application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	appName        = "speechwave"
	configFileName = "config.json"
)

// Config represents the application configuration.
type Config struct {
	Hotkey        HotkeyConfig        `json:"hotkey"`
	Audio         AudioConfig         `json:"audio"`
	Transcription TranscriptionConfig `json:"transcription"`
	Insertion     InsertionConfig     `json:"insertion"`
	Notifications bool                `json:"notifications"`
}

// HotkeyConfig describes the push-to-talk key combination.
type HotkeyConfig struct {
	Record  string `json:"record"`
	Enabled bool   `json:"enabled"`
}

// AudioConfig describes microphone capture parameters.
type AudioConfig struct {
	// Device is the input device name; empty selects the system default.
	Device     string `json:"device"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	// MinHoldMs is the minimum hold duration before a clip is transcribed.
	MinHoldMs int `json:"min_hold_ms"`
}

// TranscriptionConfig describes the speech-to-text engine preferences.
type TranscriptionConfig struct {
	// Model is the whisper model size: tiny, base, small, medium, large.
	Model string `json:"model"`
	// Language is the source language code; empty enables auto-detect.
	Language string `json:"language"`
	BeamSize int    `json:"beam_size"`
	// IdleUnloadSec releases the loaded model after this many seconds
	// without a transcription. Zero disables idle unload.
	IdleUnloadSec int `json:"idle_unload_sec"`
}

// InsertionConfig describes how transcripts are typed at the cursor.
type InsertionConfig struct {
	AddSpaceAfter bool `json:"add_space_after"`
	DelayMs       int  `json:"delay_ms"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Hotkey: HotkeyConfig{
			Record:  "alt+v",
			Enabled: true,
		},
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
			MinHoldMs:  200,
		},
		Transcription: TranscriptionConfig{
			Model:         "small",
			BeamSize:      5,
			IdleUnloadSec: 300,
		},
		Insertion: InsertionConfig{
			AddSpaceAfter: true,
			DelayMs:       100,
		},
		Notifications: true,
	}
}

// Load loads configuration from the config file.
// Returns default config if the file doesn't exist.
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, fmt.Errorf("get config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	return cfg, nil
}

// Save persists the configuration to disk.
func (c *Config) Save() error {
	path, err := configPath()
	if err != nil {
		return fmt.Errorf("get config path: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// normalize fills zero-valued fields that have no sensible zero meaning.
func (c *Config) normalize() {
	def := Default()
	if c.Hotkey.Record == "" {
		c.Hotkey.Record = def.Hotkey.Record
	}
	if c.Audio.SampleRate <= 0 {
		c.Audio.SampleRate = def.Audio.SampleRate
	}
	if c.Audio.Channels <= 0 {
		c.Audio.Channels = def.Audio.Channels
	}
	if c.Audio.MinHoldMs <= 0 {
		c.Audio.MinHoldMs = def.Audio.MinHoldMs
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = def.Transcription.Model
	}
	if c.Transcription.BeamSize <= 0 {
		c.Transcription.BeamSize = def.Transcription.BeamSize
	}
}

func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get user config dir: %w", err)
	}
	return filepath.Join(dir, appName, configFileName), nil
}

// Store holds the live configuration and notifies subscribers on change,
// so components can re-apply settings without a restart.
type Store struct {
	mu   sync.Mutex
	cfg  Config
	subs []func(Config)
}

// NewStore creates a store around an initial configuration.
func NewStore(cfg *Config) *Store {
	return &Store{cfg: *cfg}
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Subscribe registers a callback invoked with each updated snapshot.
// Callbacks run on the updating goroutine and must not block.
func (s *Store) Subscribe(fn func(Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

// Update applies mutate to the configuration, persists it, and notifies
// subscribers. Subscribers are notified even when persisting fails, so
// live components always track the in-memory configuration; the save
// error is still returned.
func (s *Store) Update(mutate func(*Config)) error {
	s.mu.Lock()
	mutate(&s.cfg)
	s.cfg.normalize()
	snapshot := s.cfg
	subs := make([]func(Config), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	err := snapshot.Save()
	for _, fn := range subs {
		fn(snapshot)
	}
	return err
}
