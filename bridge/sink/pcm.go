package sink

import (
	"fmt"
	"log/slog"
	"sync"

	"spdifbridge/bridge/device"
	"spdifbridge/bridge/resample"
	"spdifbridge/bridge/ring"
)

const pcmChannels = 2

// PCMSink implements spec.md §4.5: converts incoming S16LE stereo chunks
// to float, resamples at a control-loop-driven ratio, and hands fixed
// blocks to the playback device from a dedicated consumer goroutine.
type PCMSink struct {
	log *slog.Logger

	mu      sync.Mutex
	rb      *ring.Buffer
	control *ring.ControlLoop
	src     *resample.Converter
	ratio   float64

	playback     device.Playback
	consumerSize int

	scratchFloat []float32
	scratchOut   []float32

	wg sync.WaitGroup
}

// OpenPCMSink allocates the ring buffer and SRC instance, takes ownership
// of the already-opened playback device, and spawns the consumer worker
// (spec.md §4.5 "Open").
func OpenPCMSink(log *slog.Logger, ringCapacity, targetFill int, gain float64, historySize int, consumerBlock, chunkBytes int, playback device.Playback) (*PCMSink, error) {
	if log == nil {
		log = slog.Default()
	}
	if consumerBlock%2 != 0 {
		return nil, fmt.Errorf("sink: pcm consumer block size must be even, got %d", consumerBlock)
	}

	src, err := resample.New(pcmChannels)
	if err != nil {
		return nil, fmt.Errorf("sink: pcm src open failed: %w", err)
	}

	frames := chunkBytes / 2 / pcmChannels
	s := &PCMSink{
		log:          log,
		rb:           ring.New(ringCapacity, targetFill),
		control:      ring.NewControlLoop(gain, targetFill, historySize),
		src:          src,
		ratio:        1.0,
		playback:     playback,
		consumerSize: consumerBlock,
		scratchFloat: make([]float32, frames*pcmChannels),
		scratchOut:   make([]float32, frames*pcmChannels*2),
	}

	s.wg.Add(1)
	go s.consume()
	return s, nil
}

// Process implements spec.md §4.5 "Process". chunk is one 512-byte
// interleaved S16LE stereo block.
func (s *PCMSink) Process(chunk []byte) error {
	frames := len(chunk) / 2 / pcmChannels
	if frames*2*pcmChannels != len(chunk) {
		return fmt.Errorf("sink: pcm chunk size %d is not a whole number of stereo frames", len(chunk))
	}

	for i := 0; i < frames*pcmChannels; i++ {
		lo := chunk[2*i]
		hi := chunk[2*i+1]
		v := int16(uint16(lo) | uint16(hi)<<8)
		s.scratchFloat[i] = float32(v) * (1.0 / 32768.0)
	}

	s.mu.Lock()
	ratio := s.ratio
	s.mu.Unlock()

	gen, _, err := s.src.Process(s.scratchFloat[:frames*pcmChannels], frames, s.scratchOut, frames*2, ratio)
	if err != nil {
		s.log.Warn("pcm src process failed, keeping ratio stable", "error", err)
		return nil
	}

	s.mu.Lock()
	newRatio := s.control.Step(s.rb.Fill())
	s.ratio = newRatio

	canQueue := s.rb.Free()
	wantQueue := gen * pcmChannels
	willQueue := wantQueue
	if willQueue > canQueue {
		willQueue = canQueue
		// Truncate to an even sample count to preserve L/R alignment.
		willQueue -= willQueue % pcmChannels
	}
	s.rb.Push(s.scratchOut[:willQueue])
	s.mu.Unlock()

	return nil
}

func (s *PCMSink) consume() {
	defer s.wg.Done()
	block := make([]float32, s.consumerSize)
	for {
		if !s.rb.PopBlock(block) {
			return
		}
		if err := s.playback.WriteBlock(block); err != nil {
			s.log.Warn("pcm playback write failed", "error", err)
		}
	}
}

// Close stops the consumer, joins it, then tears down the SRC instance
// and playback device (spec.md §5 "Cancellation / shutdown").
func (s *PCMSink) Close() error {
	s.rb.Stop()
	s.wg.Wait()

	if err := s.src.Close(); err != nil {
		s.log.Warn("pcm src close failed", "error", err)
	}
	return s.playback.Close()
}
