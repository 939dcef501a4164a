package bridge

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"spdifbridge/bridge/ac3codec"
	"spdifbridge/bridge/device"
	"spdifbridge/bridge/mode"
)

type countingDecoderOpener struct {
	opens int
}

func (c *countingDecoderOpener) open() (ac3codec.Decoder, error) {
	c.opens++
	return nil, assertNever{}
}

// assertNever is returned as an error only if the test's silence-only
// scenario ever tries to open an AC-3 sink, which it must not.
type assertNever struct{}

func (assertNever) Error() string { return "ac3 sink should never open during pure-silence scenario" }

func TestPureSilenceAtBootNeverOpensAC3Sink(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkBytes = 512

	silentChunks := make([]byte, cfg.ChunkBytes*cfg.DetectionWindow)
	capture := device.NewFileCapture(bytes.NewReader(silentChunks))

	decoderOpener := &countingDecoderOpener{}
	pcmPlayback := device.NewNullPlayback()

	b := New(nil, cfg, Options{
		Capture: capture,
		OpenPCMPlayback: func() (device.Playback, error) {
			return pcmPlayback, nil
		},
		OpenAC3Playback: func() (device.Playback, error) {
			return device.NewNullPlayback(), nil
		},
		OpenDecoder: decoderOpener.open,
	})

	ctx := context.Background()

	// The capture source is exhausted after exactly DetectionWindow
	// silent chunks, so Run returns the resulting (fatal) read error once
	// the arbiter has already settled into PCM mode.
	err := b.Run(ctx)
	assert.Error(t, err)
	assert.Equal(t, 0, decoderOpener.opens)
	assert.Equal(t, mode.PCM, b.arbiter.State())
}
