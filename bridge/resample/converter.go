// Package resample wraps github.com/keereets/go-libsamplerate's sinc-best
// -quality converter behind the shape the PCM and AC-3 sinks need: a
// fixed-channel-count instance that is fed with a fresh ratio on every
// call and keeps its filter state across calls.
package resample

import (
	"fmt"

	libsamplerate "github.com/keereets/go-libsamplerate"
)

// Converter wraps one libsamplerate instance. The PCM sink owns a single
// 2-channel Converter operating on interleaved frames; the AC-3 sink owns
// six 1-channel Converters operating on planar per-channel buffers (spec.md
// §6 "Sample-rate converter").
type Converter struct {
	state    libsamplerate.Converter
	channels int
}

// New opens a sinc-best-quality converter for the given channel count.
// Construction failure is an initialization warning per spec.md §7 — the
// caller decides whether that is fatal to the sink open.
func New(channels int) (*Converter, error) {
	state, err := libsamplerate.New(libsamplerate.SincBestQuality, channels)
	if err != nil {
		return nil, fmt.Errorf("resample: src_new failed: %w", err)
	}
	return &Converter{state: state, channels: channels}, nil
}

// Process resamples inFrames frames (channels interleaved, or mono for a
// single-channel instance) from in at the given ratio, writing generated
// frames into out. It returns the number of frames generated and consumed.
// out must have capacity for at least outCapacityFrames*channels floats.
func (c *Converter) Process(in []float32, inFrames int, out []float32, outCapacityFrames int, ratio float64) (framesGen int, framesUsed int, err error) {
	data := libsamplerate.SrcData{
		DataIn:       in,
		InputFrames:  int64(inFrames),
		DataOut:      out,
		OutputFrames: int64(outCapacityFrames),
		SrcRatio:     ratio,
		EndOfInput:   false,
	}
	if err := c.state.Process(&data); err != nil {
		return 0, 0, fmt.Errorf("resample: src_process failed: %w", err)
	}
	return int(data.OutputFramesGen), int(data.InputFramesUsed), nil
}

// Channels returns the converter's fixed channel count.
func (c *Converter) Channels() int { return c.channels }

// Close releases the underlying libsamplerate state. Safe to call once per
// Converter; per spec.md §9 "Sample-rate converter ownership" every SRC
// instance must be destroyed on sink close, including all six in the AC-3
// sink.
func (c *Converter) Close() error {
	if c.state == nil {
		return nil
	}
	c.state.Close()
	c.state = nil
	return nil
}
