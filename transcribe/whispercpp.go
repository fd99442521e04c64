package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spectralf/speechwave/capture"
)

// WhisperCPP runs transcription through a local whisper.cpp CLI binary.
// Load resolves the binary and the ggml model file, downloading the model
// on first use; nothing ever leaves the machine except that download.
type WhisperCPP struct {
	mu        sync.Mutex
	modelSize string
	modelDir  string
	binPath   string
	modelPath string
	language  string
	beamSize  int
	loaded    bool

	// Progress receives model download percentages (0-100) when set.
	Progress func(percent int)
}

// WhisperCPPConfig holds engine construction parameters.
type WhisperCPPConfig struct {
	ModelSize string // tiny, base, small, medium, large
	ModelDir  string // directory for ggml model files
	BinPath   string // whisper.cpp binary; located automatically when empty
	Language  string // source language code; empty auto-detects
	BeamSize  int
}

// models maps size names to download URLs and approximate sizes.
var models = map[string]struct {
	URL  string
	Size int64
}{
	"tiny":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin", 75 * 1024 * 1024},
	"base":   {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin", 150 * 1024 * 1024},
	"small":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin", 500 * 1024 * 1024},
	"medium": {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin", 1500 * 1024 * 1024},
	"large":  {"https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin", 3000 * 1024 * 1024},
}

// NewWhisperCPP creates the engine without loading anything.
func NewWhisperCPP(cfg WhisperCPPConfig) (*WhisperCPP, error) {
	if cfg.ModelSize == "" {
		cfg.ModelSize = "small"
	}
	if _, ok := models[cfg.ModelSize]; !ok {
		return nil, fmt.Errorf("invalid model size: %s", cfg.ModelSize)
	}
	if cfg.ModelDir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("get cache dir: %w", err)
		}
		cfg.ModelDir = filepath.Join(cacheDir, "speechwave", "models")
	}
	if cfg.BeamSize <= 0 {
		cfg.BeamSize = 5
	}
	return &WhisperCPP{
		modelSize: cfg.ModelSize,
		modelDir:  cfg.ModelDir,
		binPath:   cfg.BinPath,
		language:  cfg.Language,
		beamSize:  cfg.BeamSize,
	}, nil
}

// SetModel changes the preferred model size. Takes effect on next Load.
func (w *WhisperCPP) SetModel(size string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := models[size]; !ok || size == w.modelSize {
		return
	}
	w.modelSize = size
	w.loaded = false
	w.modelPath = ""
}

// SetLanguage changes the source language. Empty auto-detects.
func (w *WhisperCPP) SetLanguage(lang string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.language = lang
}

// Load resolves the whisper.cpp binary and ensures the model file exists,
// downloading it on first use.
func (w *WhisperCPP) Load(ctx context.Context) error {
	w.mu.Lock()
	if w.loaded {
		w.mu.Unlock()
		return nil
	}
	size := w.modelSize
	bin := w.binPath
	progress := w.Progress
	w.mu.Unlock()

	if bin == "" {
		bin = findWhisperBinary()
		if bin == "" {
			return fmt.Errorf("%w: whisper.cpp binary not found", ErrModelLoad)
		}
	}

	modelPath := filepath.Join(w.modelDir, fmt.Sprintf("ggml-%s.bin", size))
	if _, err := os.Stat(modelPath); err != nil {
		slog.Info("downloading whisper model", "size", size)
		if err := w.downloadModel(ctx, size, modelPath, progress); err != nil {
			return fmt.Errorf("%w: %v", ErrModelLoad, err)
		}
	}

	w.mu.Lock()
	w.binPath = bin
	w.modelPath = modelPath
	w.loaded = true
	w.mu.Unlock()

	slog.Info("whisper engine loaded", "model", size)
	return nil
}

// Unload drops the resolved engine state. The model file stays cached on
// disk; the next Load is cheap unless the preferred size changed.
func (w *WhisperCPP) Unload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.loaded {
		return
	}
	w.loaded = false
	w.modelPath = ""
	slog.Info("whisper engine unloaded", "model", w.modelSize)
}

// Transcribe writes the clip to a temp WAV, runs the CLI, and parses its
// JSON output. The temp file is removed on every path.
func (w *WhisperCPP) Transcribe(ctx context.Context, clip *capture.Clip) (*Transcript, error) {
	w.mu.Lock()
	bin := w.binPath
	model := w.modelPath
	lang := w.language
	beam := w.beamSize
	loaded := w.loaded
	w.mu.Unlock()

	if !loaded {
		return nil, ErrModelLoad
	}

	wavPath, err := writeTempWAV(clip)
	if err != nil {
		return nil, fmt.Errorf("write temp wav: %w", err)
	}
	defer func() {
		_ = os.Remove(wavPath)
	}()

	args := []string{
		"-m", model,
		"-f", wavPath,
		"-bs", strconv.Itoa(beam),
		"-oj",
		"--no-prints",
	}
	if lang != "" {
		args = append(args, "-l", lang)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("whisper.cpp: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseWhisperOutput(stdout.Bytes())
}

// writeTempWAV writes the clip to a uniquely-named file in the temp dir.
// The file is owner-only; the audio must not be readable by other users
// for the window it exists.
func writeTempWAV(clip *capture.Clip) (string, error) {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	path := filepath.Join(os.TempDir(), fmt.Sprintf("speechwave_%s.wav", id))

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if err := clip.EncodeWAV(f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// whisperOutput is the JSON shape whisper.cpp emits with -oj.
type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Text    string `json:"text"`
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
	} `json:"transcription"`
}

func parseWhisperOutput(data []byte) (*Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		// Older builds print plain text despite -oj.
		text := cleanText(string(data))
		if text == "" {
			return nil, ErrEmptyTranscript
		}
		return &Transcript{Text: text, Confidence: 0.8}, nil
	}

	var sb strings.Builder
	for _, seg := range out.Transcription {
		sb.WriteString(seg.Text)
	}
	text := cleanText(sb.String())
	if text == "" {
		return nil, ErrEmptyTranscript
	}
	return &Transcript{
		Text:       text,
		Language:   out.Result.Language,
		Confidence: 0.9,
	}, nil
}

func findWhisperBinary() string {
	names := []string{"whisper-cli", "whisper-cpp", "whisper", "main"}

	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	homeDir, _ := os.UserHomeDir()
	locations := []string{
		"/opt/homebrew/bin",
		"/usr/local/bin",
		filepath.Join(homeDir, ".local", "bin"),
		filepath.Join(homeDir, "whisper.cpp"),
	}
	for _, loc := range locations {
		for _, name := range names {
			path := filepath.Join(loc, name)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// downloadModel fetches the ggml model to path via a temp file rename.
func (w *WhisperCPP) downloadModel(ctx context.Context, size, path string, progress func(int)) error {
	info := models[size]

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, info.URL, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}()

	expected := resp.ContentLength
	if expected <= 0 {
		expected = info.Size
	}

	var downloaded int64
	buf := make([]byte, 32*1024)
	lastPct := 0
	start := time.Now()

	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write file: %w", werr)
			}
			downloaded += int64(n)
			if expected > 0 && progress != nil {
				pct := int(downloaded * 100 / expected)
				if pct > lastPct {
					lastPct = pct
					progress(pct)
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename file: %w", err)
	}

	slog.Info("model downloaded", "size", size, "elapsed", time.Since(start))
	return nil
}
