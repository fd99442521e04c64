package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
)

func TestClipDuration(t *testing.T) {
	tests := []struct {
		name    string
		samples int
		rate    int
		want    time.Duration
	}{
		{"one_second", 16000, 16000, time.Second},
		{"half_second", 8000, 16000, 500 * time.Millisecond},
		{"empty", 0, 16000, 0},
		{"zero_rate", 100, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Clip{Samples: make([]int16, tt.samples), SampleRate: tt.rate}
			if got := c.Duration(); got != tt.want {
				t.Fatalf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClipEmpty(t *testing.T) {
	min := 200 * time.Millisecond

	var nilClip *Clip
	if !nilClip.Empty(min) {
		t.Fatal("nil clip should be empty")
	}

	short := &Clip{Samples: make([]int16, 1600), SampleRate: 16000} // 100ms
	if !short.Empty(min) {
		t.Fatal("100ms clip should be below 200ms threshold")
	}

	long := &Clip{Samples: make([]int16, 16000), SampleRate: 16000} // 1s
	if long.Empty(min) {
		t.Fatal("1s clip should not be empty")
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name     string
		in       []int16
		from, to int
		wantLen  int
	}{
		{"same_rate", []int16{1, 2, 3}, 16000, 16000, 3},
		{"downsample_halves", make([]int16, 48000), 48000, 16000, 16000},
		{"upsample_doubles", make([]int16, 8000), 8000, 16000, 16000},
		{"empty_input", nil, 48000, 16000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Resample(tt.in, tt.from, tt.to)
			if len(out) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(out), tt.wantLen)
			}
		})
	}
}

func TestResampleEndpoints(t *testing.T) {
	in := []int16{0, 100, 200, 300}
	out := Resample(in, 32000, 16000)

	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0] != 0 {
		t.Fatalf("first sample = %d, want 0", out[0])
	}
}

func TestEncodeWAV(t *testing.T) {
	clip := &Clip{
		Samples:    []int16{0, 1000, -1000, 32767, -32768},
		SampleRate: EngineSampleRate,
	}

	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := clip.EncodeWAV(f); err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	dec := wav.NewDecoder(r)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.SampleRate != EngineSampleRate {
		t.Fatalf("sample rate = %d, want %d", dec.SampleRate, EngineSampleRate)
	}
	if dec.NumChans != 1 {
		t.Fatalf("channels = %d, want 1", dec.NumChans)
	}
	if len(buf.Data) != len(clip.Samples) {
		t.Fatalf("samples = %d, want %d", len(buf.Data), len(clip.Samples))
	}
	for i, want := range clip.Samples {
		if int16(buf.Data[i]) != want {
			t.Fatalf("sample %d = %d, want %d", i, buf.Data[i], want)
		}
	}
}

func TestStopWithoutStart(t *testing.T) {
	s := NewSession(Config{})
	if _, err := s.Stop(); err != ErrNotStarted {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
}
