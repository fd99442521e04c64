package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrStopped is returned by Stop after the session has already stopped.
var ErrStopped = errors.New("capture: session already stopped")

// Config holds capture parameters for one session.
type Config struct {
	// Device is the input device name; empty selects the system default.
	Device     string
	SampleRate int
	Channels   int
	FrameSize  int
}

// Session owns the microphone stream for the duration of one hold gesture.
// A session is single-use: Start once, then Stop once to obtain the clip.
// The device is released on every exit path, including read failures.
type Session struct {
	cfg Config

	mu        sync.Mutex
	started   bool
	stopped   bool
	frames    []int16
	truncated bool

	streamRate int
	stop       chan struct{}
	done       chan struct{}
}

// NewSession creates a capture session. Zero config fields get defaults
// matching the engine contract (16kHz mono).
func NewSession(cfg Config) *Session {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = EngineSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.FrameSize <= 0 {
		cfg.FrameSize = 1024
	}
	return &Session{
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start opens the input device and begins buffering samples.
// A device that cannot be opened yields ErrDeviceUnavailable.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	buf := make([]int16, s.cfg.FrameSize*s.cfg.Channels)
	stream, rate, err := s.openStream(buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	s.mu.Lock()
	s.started = true
	s.streamRate = rate
	s.mu.Unlock()

	go s.readLoop(stream, buf)
	return nil
}

// Stop closes the device and returns the accumulated clip, resampled to
// the engine rate when the device could not open at it.
func (s *Session) Stop() (*Clip, error) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil, ErrNotStarted
	}
	if s.stopped {
		s.mu.Unlock()
		return nil, ErrStopped
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done

	s.mu.Lock()
	samples := s.frames
	s.frames = nil
	truncated := s.truncated
	rate := s.streamRate
	s.mu.Unlock()

	if rate != EngineSampleRate {
		samples = Resample(samples, rate, EngineSampleRate)
	}
	return &Clip{
		Samples:    samples,
		SampleRate: EngineSampleRate,
		Truncated:  truncated,
	}, nil
}

// openStream opens the configured device at the requested rate, falling
// back to the device's default rate when the requested one is rejected.
// Resampling to the engine rate then happens on Stop.
func (s *Session) openStream(buf []int16) (*portaudio.Stream, int, error) {
	dev, err := s.inputDevice()
	if err != nil {
		return nil, 0, err
	}

	stream, err := s.openAt(dev, s.cfg.SampleRate, buf)
	if err == nil {
		return stream, s.cfg.SampleRate, nil
	}

	fallback := int(dev.DefaultSampleRate)
	if fallback <= 0 || fallback == s.cfg.SampleRate {
		return nil, 0, err
	}
	slog.Warn("capture: device rejected requested rate, using default",
		"requested", s.cfg.SampleRate, "fallback", fallback)
	stream, err = s.openAt(dev, fallback, buf)
	if err != nil {
		return nil, 0, err
	}
	return stream, fallback, nil
}

func (s *Session) inputDevice() (*portaudio.DeviceInfo, error) {
	if s.cfg.Device == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return dev, nil
	}
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == s.cfg.Device && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device %q not found", s.cfg.Device)
}

func (s *Session) openAt(dev *portaudio.DeviceInfo, rate int, buf []int16) (*portaudio.Stream, error) {
	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = s.cfg.Channels
	params.SampleRate = float64(rate)
	params.FramesPerBuffer = s.cfg.FrameSize
	return portaudio.OpenStream(params, buf)
}

// readLoop buffers samples until stop. It owns the stream and the
// portaudio handle and releases both before returning.
func (s *Session) readLoop(stream *portaudio.Stream, buf []int16) {
	defer close(s.done)
	defer func() {
		_ = portaudio.Terminate()
	}()
	defer func() {
		_ = stream.Close()
	}()

	for {
		select {
		case <-s.stop:
			_ = stream.Stop()
			return
		default:
		}

		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.mu.Lock()
				s.truncated = true
				s.mu.Unlock()
			} else {
				slog.Warn("capture: stream read", "error", err)
				continue
			}
		}
		s.appendFrames(buf)
	}
}

// appendFrames downmixes interleaved frames to mono and buffers them.
func (s *Session) appendFrames(buf []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := s.cfg.Channels
	if ch == 1 {
		s.frames = append(s.frames, buf...)
		return
	}
	for i := 0; i+ch <= len(buf); i += ch {
		var sum int
		for j := 0; j < ch; j++ {
			sum += int(buf[i+j])
		}
		s.frames = append(s.frames, int16(sum/ch))
	}
}
