package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"spdifbridge/bridge/ac3codec"
	"spdifbridge/bridge/device"
	"spdifbridge/bridge/mode"
	"spdifbridge/bridge/sink"
)

// Bridge owns the capture device and the mode arbiter and runs the main
// loop (spec.md §2 "Main loop": blocking read of a fixed-size chunk from
// the capture device, hand-off to the arbiter).
type Bridge struct {
	log     *slog.Logger
	cfg     Config
	capture device.Capture
	arbiter *mode.Arbiter
}

// Options bundles the constructed device/decoder collaborators a Bridge
// needs, so callers (the CLI, or tests) can substitute real hardware or
// doubles without the Bridge caring which.
type Options struct {
	Capture device.Capture

	OpenPCMPlayback func() (device.Playback, error)
	OpenAC3Playback func() (device.Playback, error)
	OpenDecoder     func() (ac3codec.Decoder, error)
}

// New constructs a Bridge in the arbiter's initial Unknown state.
func New(log *slog.Logger, cfg Config, opts Options) *Bridge {
	if log == nil {
		log = slog.Default()
	}

	b := &Bridge{log: log, cfg: cfg, capture: opts.Capture}

	openPCM := func() (mode.PCMSink, error) {
		playback, err := opts.OpenPCMPlayback()
		if err != nil {
			return nil, fmt.Errorf("bridge: opening pcm playback device: %w", err)
		}
		s, err := sink.OpenPCMSink(log, cfg.PCMRingCapacity, cfg.PCMTargetFill, cfg.PCMLoopGain, cfg.HistorySize, cfg.PCMConsumerBlock, cfg.ChunkBytes, playback)
		if err != nil {
			_ = playback.Close()
			return nil, err
		}
		return s, nil
	}

	openAC3 := func() (mode.AC3Sink, error) {
		playback, err := opts.OpenAC3Playback()
		if err != nil {
			return nil, fmt.Errorf("bridge: opening ac3 playback device: %w", err)
		}
		decoder, err := opts.OpenDecoder()
		if err != nil {
			_ = playback.Close()
			return nil, fmt.Errorf("bridge: opening ac3 decoder: %w", err)
		}
		s, err := sink.OpenAC3Sink(log, cfg.AC3RingCapacity, cfg.AC3TargetFill, cfg.AC3LoopGain, cfg.HistorySize, cfg.AC3ConsumerBlock, decoder, playback)
		if err != nil {
			_ = decoder.Close(context.Background())
			_ = playback.Close()
			return nil, err
		}
		return s, nil
	}

	b.arbiter = mode.New(log, cfg.DetectionWindow, openPCM, openAC3)
	return b
}

// Run blocks, reading chunks from the capture device and feeding them to
// the arbiter, until ctx is cancelled or a fatal capture error occurs
// (spec.md §7 "capture read failure... fatal").
func (b *Bridge) Run(ctx context.Context) error {
	defer func() {
		if err := b.arbiter.Close(); err != nil {
			b.log.Warn("closing arbiter sink on shutdown failed", "error", err)
		}
		if err := b.capture.Close(); err != nil {
			b.log.Warn("closing capture device failed", "error", err)
		}
	}()

	chunk := make([]byte, b.cfg.ChunkBytes)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := b.capture.ReadChunk(chunk); err != nil {
			return fmt.Errorf("bridge: capture read failed: %w", err)
		}
		if err := b.arbiter.Step(chunk); err != nil {
			return fmt.Errorf("bridge: mode switch failed: %w", err)
		}
	}
}
