package sink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spdifbridge/bridge/ac3codec"
	"spdifbridge/bridge/device"
)

type fakeDecoder struct {
	frame PCMFrameFixture
}

// PCMFrameFixture lets tests build a fixed decoded frame without depending
// on a real WASM codec module.
type PCMFrameFixture struct {
	samples int
}

func (f *fakeDecoder) Decode(ctx context.Context, frame []byte) (ac3codec.PCMFrame, error) {
	samples := f.frame.samples
	chans := make([][]float32, ac3codec.Channels)
	for ch := range chans {
		chans[ch] = make([]float32, samples)
	}
	return ac3codec.PCMFrame{Channels: chans, Samples: samples}, nil
}

func (f *fakeDecoder) Drain(ctx context.Context) (ac3codec.PCMFrame, error) {
	return ac3codec.PCMFrame{}, ac3codec.ErrNoOutput
}

func (f *fakeDecoder) Close(ctx context.Context) error { return nil }

func TestAC3SinkDecodesAndQueuesInterleavedFrame(t *testing.T) {
	playback := device.NewNullPlayback()
	decoder := &fakeDecoder{frame: PCMFrameFixture{samples: 64}}
	s, err := OpenAC3Sink(nil, 32768, 384, 1.33e-6, 16, 96, decoder, playback)
	require.NoError(t, err)

	require.NoError(t, s.Process([]byte{0x00, 0x01, 0x02}))

	deadline := time.After(time.Second)
	for len(playback.Written) == 0 {
		select {
		case <-deadline:
			t.Fatal("consumer never wrote a block")
		case <-time.After(time.Millisecond):
		}
	}

	require.NoError(t, s.Close())
	for _, block := range playback.Written {
		assert.Len(t, block, 96)
	}
}

func TestAC3SinkRejectsNonMultipleOfSixConsumerBlock(t *testing.T) {
	playback := device.NewNullPlayback()
	decoder := &fakeDecoder{}
	_, err := OpenAC3Sink(nil, 32768, 384, 1.33e-6, 16, 97, decoder, playback)
	assert.Error(t, err)
}

func TestAC3SinkRejectsTargetFillNotMultipleOfSix(t *testing.T) {
	playback := device.NewNullPlayback()
	decoder := &fakeDecoder{}
	_, err := OpenAC3Sink(nil, 32768, 385, 1.33e-6, 16, 96, decoder, playback)
	assert.Error(t, err)
}
