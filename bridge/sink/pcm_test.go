package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spdifbridge/bridge/device"
)

func TestPCMSinkProcessesSilentChunkWithoutError(t *testing.T) {
	playback := device.NewNullPlayback()
	s, err := OpenPCMSink(nil, 2048, 128, 4e-6, 16, 32, 512, playback)
	require.NoError(t, err)

	chunk := make([]byte, 512)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Process(chunk))
	}

	// Give the consumer goroutine a chance to drain queued silence.
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
		assert.Len(t, block, 32)
	}
}

func TestPCMSinkRejectsOddConsumerBlock(t *testing.T) {
	playback := device.NewNullPlayback()
	_, err := OpenPCMSink(nil, 2048, 128, 4e-6, 16, 33, 512, playback)
	assert.Error(t, err)
}

func TestPCMSinkCloseIsIdempotentWithRespectToConsumerShutdown(t *testing.T) {
	playback := device.NewNullPlayback()
	s, err := OpenPCMSink(nil, 2048, 128, 4e-6, 16, 32, 512, playback)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
