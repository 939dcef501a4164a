package sink

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"spdifbridge/bridge/ac3codec"
	"spdifbridge/bridge/device"
	"spdifbridge/bridge/resample"
	"spdifbridge/bridge/ring"
)

const ac3Channels = ac3codec.Channels

// AC3Sink implements spec.md §4.6: decodes complete AC-3 frames, resamples
// each of the six planar channels at a shared control-loop-driven ratio,
// interleaves into the 5.1 order {FL, FR, FC, LFE, RL, RR}, and hands
// fixed blocks to the playback device from a dedicated consumer goroutine.
type AC3Sink struct {
	log *slog.Logger

	mu      sync.Mutex
	rb      *ring.Buffer
	control *ring.ControlLoop
	src     [ac3Channels]*resample.Converter
	ratio   float64

	decoder      ac3codec.Decoder
	playback     device.Playback
	consumerSize int

	scratchOut   [ac3Channels][]float32
	interleaved  []float32

	wg sync.WaitGroup
}

// OpenAC3Sink allocates the ring buffer and six mono SRC instances, takes
// ownership of the already-opened decoder and playback device, and spawns
// the consumer worker (spec.md §4.6 "Open").
func OpenAC3Sink(log *slog.Logger, ringCapacity, targetFill int, gain float64, historySize int, consumerBlock int, decoder ac3codec.Decoder, playback device.Playback) (*AC3Sink, error) {
	if log == nil {
		log = slog.Default()
	}
	if consumerBlock%ac3Channels != 0 {
		return nil, fmt.Errorf("sink: ac3 consumer block size must be a multiple of %d, got %d", ac3Channels, consumerBlock)
	}
	if targetFill%ac3Channels != 0 {
		return nil, fmt.Errorf("sink: ac3 target fill must be a multiple of %d, got %d", ac3Channels, targetFill)
	}

	s := &AC3Sink{
		log:          log,
		rb:           ring.New(ringCapacity, targetFill),
		control:      ring.NewControlLoop(gain, targetFill, historySize),
		ratio:        1.0,
		decoder:      decoder,
		playback:     playback,
		consumerSize: consumerBlock,
		interleaved:  make([]float32, ac3codec.SamplesPerFrame*2*ac3Channels),
	}

	for ch := 0; ch < ac3Channels; ch++ {
		src, err := resample.New(1)
		if err != nil {
			s.closeSRCs()
			return nil, fmt.Errorf("sink: ac3 src open failed for channel %d: %w", ch, err)
		}
		s.src[ch] = src
		s.scratchOut[ch] = make([]float32, ac3codec.SamplesPerFrame*2)
	}

	s.wg.Add(1)
	go s.consume()
	return s, nil
}

func (s *AC3Sink) closeSRCs() {
	for _, src := range s.src {
		if src != nil {
			_ = src.Close()
		}
	}
}

// Process implements spec.md §4.6 "Process". payload is one complete
// AC-3 frame as extracted by the IEC 61937 FSM.
func (s *AC3Sink) Process(payload []byte) error {
	ctx := context.Background()

	frame, err := s.decoder.Decode(ctx, payload)
	if err != nil {
		if err == ac3codec.ErrInputRefused {
			if _, drainErr := s.decoder.Drain(ctx); drainErr != nil && drainErr != ac3codec.ErrNoOutput {
				s.log.Warn("ac3 decoder drain failed", "error", drainErr)
			}
			return nil
		}
		s.log.Warn("ac3 decode failed, dropping frame", "error", err)
		return nil
	}

	if len(frame.Channels) != ac3Channels {
		s.log.Warn("ac3 decoded frame has unsupported channel count", "channels", len(frame.Channels))
		return nil
	}

	s.mu.Lock()
	ratio := s.ratio
	s.mu.Unlock()

	gen := 0
	for ch := 0; ch < ac3Channels; ch++ {
		g, _, err := s.src[ch].Process(frame.Channels[ch], frame.Samples, s.scratchOut[ch], frame.Samples*2, ratio)
		if err != nil {
			s.log.Warn("ac3 src process failed, keeping ratio stable", "channel", ch, "error", err)
			return nil
		}
		if ch == 0 {
			gen = g
		} else if g != gen {
			// All six SRCs share one ratio and should agree on frame
			// count; clamp to the minimum to stay channel-aligned.
			if g < gen {
				gen = g
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newRatio := s.control.Step(s.rb.Fill())
	s.ratio = newRatio

	canQueue := s.rb.Free()
	wantQueue := gen * ac3Channels
	if wantQueue > canQueue {
		// Partial queuing would desynchronize channel order; drop the
		// whole frame instead (spec.md §4.6 step 4).
		return nil
	}

	for i := 0; i < gen; i++ {
		for ch := 0; ch < ac3Channels; ch++ {
			s.interleaved[i*ac3Channels+ch] = s.scratchOut[ch][i]
		}
	}
	s.rb.Push(s.interleaved[:wantQueue])
	return nil
}

func (s *AC3Sink) consume() {
	defer s.wg.Done()
	block := make([]float32, s.consumerSize)
	for {
		if !s.rb.PopBlock(block) {
			return
		}
		if err := s.playback.WriteBlock(block); err != nil {
			s.log.Warn("ac3 playback write failed", "error", err)
		}
	}
}

// Close stops the consumer, joins it, then tears down the six SRC
// instances, the decoder, and the playback device (spec.md §5
// "Cancellation / shutdown").
func (s *AC3Sink) Close() error {
	s.rb.Stop()
	s.wg.Wait()

	s.closeSRCs()

	ctx := context.Background()
	if err := s.decoder.Close(ctx); err != nil {
		s.log.Warn("ac3 decoder close failed", "error", err)
	}
	return s.playback.Close()
}
