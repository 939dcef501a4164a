package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferBytesFallsBackToDefaultOnZeroLatency(t *testing.T) {
	assert.Equal(t, 2048, BufferBytes(0, 2, 2048))
}

func TestBufferBytesFallsBackToDefaultWhenDerivedIsSmaller(t *testing.T) {
	// A tiny latency derives a buffer smaller than the default.
	assert.Equal(t, 6144, BufferBytes(10, 6, 6144))
}

func TestBufferBytesComputesFromLatency(t *testing.T) {
	// 10 ms @ 48kHz, stereo, 4 bytes/sample: 0.010 * 48000 * 4 * 2 = 3840.
	got := BufferBytes(10_000, 2, 2048)
	assert.Equal(t, 3840, got)
}

func TestBufferFramesDivides(t *testing.T) {
	assert.Equal(t, 480, BufferFrames(3840, 2))
}

func TestBufferFramesNeverZero(t *testing.T) {
	assert.Equal(t, 1, BufferFrames(1, 2))
}
