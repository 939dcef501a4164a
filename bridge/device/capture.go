// Package device treats capture and playback as external collaborators
// (spec.md §1, §6): a blocking byte-oriented capture reader and a blocking
// float32 playback writer. PortAudio implementations are grounded on
// richinsley/goshadertoy's Initialize/DefaultHostApi/OpenStream sequencing,
// using portaudio's blocking-buffer stream mode (stream.Read/stream.Write
// against a fixed buffer) rather than its callback mode, since capture and
// playback here are themselves defined as blocking calls.
// FileCapture/NullPlayback are deterministic test doubles with no
// hardware dependency.
package device

import (
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// initOnce guards the single process-wide portaudio.Initialize/Terminate
// pair; every sink and capture device shares it (spec.md §5 device
// lifecycle).
var (
	initOnce  sync.Once
	initErr   error
	liveUsers int
	lifecycle sync.Mutex
)

func acquirePortAudio() error {
	lifecycle.Lock()
	defer lifecycle.Unlock()
	initOnce.Do(func() { initErr = portaudio.Initialize() })
	if initErr != nil {
		return initErr
	}
	liveUsers++
	return nil
}

func releasePortAudio() {
	lifecycle.Lock()
	defer lifecycle.Unlock()
	liveUsers--
	if liveUsers <= 0 {
		_ = portaudio.Terminate()
		initOnce = sync.Once{}
	}
}

// Capture is a blocking reader of fixed-size chunks from the capture
// source (spec.md §6 "Capture source").
type Capture interface {
	// ReadChunk fills buf completely or returns an error; a short read is
	// always an error (the main loop treats capture read failure as
	// fatal, spec.md §7).
	ReadChunk(buf []byte) error
	Close() error
}

// PortAudioCapture reads 48 kHz S16LE stereo samples from the configured
// input device using a blocking stream.
type PortAudioCapture struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenPortAudioCapture opens the named input device (or the default, if
// deviceName is empty) at sampleRate, 2 channels, S16LE frames,
// framesPerRead frames per blocking Read call.
func OpenPortAudioCapture(deviceName string, sampleRate, framesPerRead int) (*PortAudioCapture, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, fmt.Errorf("device: portaudio init failed: %w", err)
	}

	device, err := resolveInputDevice(deviceName)
	if err != nil {
		releasePortAudio()
		return nil, err
	}

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 2
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = framesPerRead

	c := &PortAudioCapture{buf: make([]int16, framesPerRead*2)}

	stream, err := portaudio.OpenStream(params, c.buf)
	if err != nil {
		releasePortAudio()
		return nil, fmt.Errorf("device: opening capture stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		releasePortAudio()
		return nil, fmt.Errorf("device: starting capture stream failed: %w", err)
	}
	c.stream = stream
	return c, nil
}

// ReadChunk blocks until one framesPerRead*2-channel block is captured and
// copies it into buf as S16LE bytes. len(buf) must equal len(c.buf)*2.
func (c *PortAudioCapture) ReadChunk(buf []byte) error {
	if len(buf) != len(c.buf)*2 {
		return fmt.Errorf("device: ReadChunk buffer size %d does not match configured chunk size %d", len(buf), len(c.buf)*2)
	}
	if err := c.stream.Read(); err != nil {
		return fmt.Errorf("device: capture read failed: %w", err)
	}
	for i, s := range c.buf {
		buf[2*i] = byte(uint16(s))
		buf[2*i+1] = byte(uint16(s) >> 8)
	}
	return nil
}

// Close stops and closes the stream and releases the shared portaudio
// runtime if this was the last live user.
func (c *PortAudioCapture) Close() error {
	if c.stream == nil {
		return nil
	}
	err := c.stream.Close()
	c.stream = nil
	releasePortAudio()
	return err
}

func resolveInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		host, err := portaudio.DefaultHostApi()
		if err != nil {
			return nil, fmt.Errorf("device: querying default host api failed: %w", err)
		}
		return host.DefaultInputDevice, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: enumerating devices failed: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device: no input device named %q", name)
}

// FileCapture replays chunks from an io.Reader, used by deterministic
// scenario tests in place of real hardware (spec.md §8 end-to-end
// scenarios).
type FileCapture struct {
	r io.Reader
}

// NewFileCapture wraps r as a Capture source.
func NewFileCapture(r io.Reader) *FileCapture {
	return &FileCapture{r: r}
}

func (f *FileCapture) ReadChunk(buf []byte) error {
	_, err := io.ReadFull(f.r, buf)
	return err
}

func (f *FileCapture) Close() error { return nil }
