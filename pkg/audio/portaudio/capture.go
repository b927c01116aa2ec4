package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/zentra/pkg/audio"
)

var _ audio.Source = (*Capture)(nil)

// Capture is an [audio.Source] reading mono float32 blocks from a PortAudio
// input device using the blocking read API.
type Capture struct {
	device string

	mu       sync.Mutex
	stream   *pa.Stream
	buf      []float32
	acquired bool
	stopped  bool
}

// CaptureOption is a functional option for [NewCapture].
type CaptureOption func(*Capture)

// WithDevice selects the input device whose name contains name
// (case-insensitive). An empty name selects the system default.
func WithDevice(name string) CaptureOption {
	return func(c *Capture) {
		c.device = name
	}
}

// NewCapture creates an unopened microphone source.
func NewCapture(opts ...CaptureOption) *Capture {
	c := &Capture{}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open implements [audio.Source]. The stream runs at the device's default
// sample rate with one input channel.
func (c *Capture) Open(_ context.Context, blockSize int) (int, error) {
	if blockSize <= 0 {
		return 0, fmt.Errorf("portaudio: invalid block size %d", blockSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return 0, errors.New("portaudio: capture already open")
	}

	if err := acquire(); err != nil {
		return 0, err
	}
	c.acquired = true

	dev, err := c.inputDevice()
	if err != nil {
		return 0, fmt.Errorf("portaudio: %w: %w", audio.ErrNoDevice, err)
	}

	params := pa.LowLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.FramesPerBuffer = blockSize

	c.buf = make([]float32, blockSize)
	stream, err := pa.OpenStream(params, c.buf)
	if err != nil {
		return 0, fmt.Errorf("portaudio: open input stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return 0, fmt.Errorf("portaudio: start input stream: %w", err)
	}
	c.stream = stream
	c.stopped = false

	slog.Info("portaudio: capture opened",
		"device", dev.Name,
		"sample_rate", params.SampleRate,
		"block_size", blockSize,
	)
	return int(params.SampleRate), nil
}

// inputDevice resolves the configured device name, falling back to the
// system default input.
func (c *Capture) inputDevice() (*pa.DeviceInfo, error) {
	if c.device == "" {
		return pa.DefaultInputDevice()
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	want := strings.ToLower(c.device)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", c.device)
}

// Read implements [audio.Source]. Input overflows are logged and tolerated;
// the block is still delivered.
func (c *Capture) Read(buf []float32) error {
	c.mu.Lock()
	stream, stopped := c.stream, c.stopped
	c.mu.Unlock()
	if stream == nil || stopped {
		return io.EOF
	}

	err := stream.Read()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return io.EOF
	}
	if err != nil && !errors.Is(err, pa.InputOverflowed) {
		return fmt.Errorf("portaudio: read: %w", err)
	}
	if err != nil {
		slog.Debug("portaudio: input overflowed")
	}
	n := copy(buf, c.buf)
	clear(buf[n:])
	return nil
}

// Stop implements [audio.Source].
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil || c.stopped {
		return nil
	}
	c.stopped = true
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("portaudio: stop input stream: %w", err)
	}
	return nil
}

// Close implements [audio.Source].
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.stream != nil {
		if err := c.stream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("portaudio: close input stream: %w", err))
		}
		c.stream = nil
	}
	c.stopped = true
	if c.acquired {
		c.acquired = false
		if err := release(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
