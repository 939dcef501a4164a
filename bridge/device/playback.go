package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// Playback is a blocking writer of float32 interleaved frames (spec.md §6
// "Playback sink").
type Playback interface {
	WriteBlock(samples []float32) error
	Close() error
}

// PortAudioPlayback writes to the configured output device using a
// blocking stream, with a device buffer size derived from the requested
// latency (spec.md §4.7).
type PortAudioPlayback struct {
	stream *portaudio.Stream
	buf    []float32
}

// OpenPortAudioPlayback opens an output stream at sampleRate with the
// given channel count and requested per-buffer latency in seconds.
// blockFrames is the fixed frame count every WriteBlock call must supply
// (the sink's consumer block size).
func OpenPortAudioPlayback(deviceName string, sampleRate, channels, blockFrames int, latencySeconds float64) (*PortAudioPlayback, error) {
	if err := acquirePortAudio(); err != nil {
		return nil, fmt.Errorf("device: portaudio init failed: %w", err)
	}

	device, err := resolveOutputDevice(deviceName)
	if err != nil {
		releasePortAudio()
		return nil, err
	}

	params := portaudio.HighLatencyParameters(nil, device)
	params.Output.Channels = channels
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = blockFrames
	if latencySeconds > 0 {
		params.Output.Latency = latencySeconds
	}

	buf := make([]float32, blockFrames*channels)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		releasePortAudio()
		return nil, fmt.Errorf("device: opening playback stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		releasePortAudio()
		return nil, fmt.Errorf("device: starting playback stream failed: %w", err)
	}
	return &PortAudioPlayback{stream: stream, buf: buf}, nil
}

// WriteBlock copies samples into the stream's output buffer and blocks
// until the device accepts it. len(samples) must equal the configured
// block size.
func (p *PortAudioPlayback) WriteBlock(samples []float32) error {
	if len(samples) != len(p.buf) {
		return fmt.Errorf("device: WriteBlock size %d does not match configured block size %d", len(samples), len(p.buf))
	}
	copy(p.buf, samples)
	if err := p.stream.Write(); err != nil {
		return fmt.Errorf("device: playback write failed: %w", err)
	}
	return nil
}

// Close flushes and closes the stream, releasing the shared portaudio
// runtime if this was the last live user (spec.md §5 "flush and close the
// playback device").
func (p *PortAudioPlayback) Close() error {
	if p.stream == nil {
		return nil
	}
	err := p.stream.Close()
	p.stream = nil
	releasePortAudio()
	return err
}

func resolveOutputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		host, err := portaudio.DefaultHostApi()
		if err != nil {
			return nil, fmt.Errorf("device: querying default host api failed: %w", err)
		}
		return host.DefaultOutputDevice, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("device: enumerating devices failed: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxOutputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device: no output device named %q", name)
}

// NullPlayback records every block in Written instead of playing it; used
// by deterministic scenario tests (spec.md §8) that don't need real audio
// output.
type NullPlayback struct {
	Written [][]float32
}

// NewNullPlayback constructs a discarding playback sink that records every
// block it receives, for test assertions.
func NewNullPlayback() *NullPlayback {
	return &NullPlayback{}
}

func (n *NullPlayback) WriteBlock(samples []float32) error {
	cp := make([]float32, len(samples))
	copy(cp, samples)
	n.Written = append(n.Written, cp)
	return nil
}

func (n *NullPlayback) Close() error { return nil }
