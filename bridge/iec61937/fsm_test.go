package iec61937

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recorder struct {
	calls []struct {
		dataType int
		payload  []byte
	}
}

func (r *recorder) OnBurst(dataType int, payload []byte) {
	cp := append([]byte(nil), payload...)
	r.calls = append(r.calls, struct {
		dataType int
		payload  []byte
	}{dataType, cp})
}

// synthesizeAC3Burst returns the wire-order (post-swap, i.e. big-endian
// logical) 16-bit words of one valid AC-3 burst carrying payload, matching
// the literal scenario in spec.md §8 scenario 2.
func synthesizeAC3Burst(payload []byte) []uint16 {
	words := []uint16{0, 0, 0, 0, preambleSyncA, preambleSyncB, dataTypeAC3, uint16(len(payload) * 8)}
	for i := 0; i < len(payload); i += 2 {
		if i+1 < len(payload) {
			words = append(words, uint16(payload[i])<<8|uint16(payload[i+1]))
		} else {
			words = append(words, uint16(payload[i])<<8)
		}
	}
	return words
}

// feed steps m through words, which are already expressed in the wire
// (post-swap) order synthesizeAC3Burst produces.
func feed(m *FSM, words []uint16) (lockedAt int) {
	lockedAt = -1
	for i, w := range words {
		if m.Step(w) && lockedAt == -1 {
			lockedAt = i
		}
	}
	return
}

func TestRoundTripSingleBurst(t *testing.T) {
	rec := &recorder{}
	m := New(rec)

	payload := []byte{0xAB, 0xCD, 0xEF, 0x01}
	words := synthesizeAC3Burst(payload)
	feed(m, words)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, AC3, rec.calls[0].dataType)
	assert.Equal(t, payload, rec.calls[0].payload)
	assert.Equal(t, First0, m.State())
}

func TestRoundTripNBursts(t *testing.T) {
	rec := &recorder{}
	m := New(rec)

	const n = 5
	var words []uint16
	for i := 0; i < n; i++ {
		words = append(words, synthesizeAC3Burst([]byte{byte(i), byte(i + 1)})...)
	}
	feed(m, words)

	require.Len(t, rec.calls, n)
	for i := 0; i < n; i++ {
		assert.Equal(t, []byte{byte(i), byte(i + 1)}, rec.calls[i].payload)
	}
}

func TestExtendedDataTypeResetsWithoutCallback(t *testing.T) {
	rec := &recorder{}
	m := New(rec)

	words := []uint16{0, 0, 0, 0, preambleSyncA, preambleSyncB, dataTypeExtended}
	feed(m, words)

	assert.Empty(t, rec.calls)
	assert.Equal(t, First0, m.State())
}

func TestOddPayloadLenDiscardsLastPadByte(t *testing.T) {
	rec := &recorder{}
	m := New(rec)

	// 3-byte payload: odd length exercises the single-byte-of-room path.
	payload := []byte{0x11, 0x22, 0x33}
	words := synthesizeAC3Burst(payload)
	feed(m, words)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, payload, rec.calls[0].payload)
}

func TestNonAC3DataTypeResetsAtLength(t *testing.T) {
	rec := &recorder{}
	m := New(rec)

	words := []uint16{0, 0, 0, 0, preambleSyncA, preambleSyncB, 0x02, 64}
	feed(m, words)

	assert.Empty(t, rec.calls)
	assert.Equal(t, First0, m.State())
}

func TestLongRunOfZerosBeforeSyncTolerated(t *testing.T) {
	rec := &recorder{}
	m := New(rec)

	words := []uint16{0, 0, 0, 0, 0, 0, 0, 0, 0, preambleSyncA, preambleSyncB, dataTypeAC3, 8, 0xABCD}
	feed(m, words)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, []byte{0xAB}, rec.calls[0].payload)
}

func TestLockedSignalFiresPastSync1(t *testing.T) {
	m := New(HandlerFunc(func(int, []byte) {}))
	words := []uint16{0, 0, 0, 0, preambleSyncA, preambleSyncB}
	locked := feed(m, words)
	assert.Equal(t, 5, locked) // locked becomes true once DataType state is entered
}

func TestBytesReceivedNeverExceedsPayloadLen(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		payloadLen := rapid.IntRange(0, 512).Draw(t, "payloadLen")
		payload := make([]byte, payloadLen)
		for i := range payload {
			payload[i] = byte(rapid.IntRange(0, 255).Draw(t, "b"))
		}
		rec := &recorder{}
		m := New(rec)
		words := synthesizeAC3Burst(payload)
		for _, w := range words {
			m.Step(w)
			assert.LessOrEqual(t, m.bytesReceived, m.payloadLen)
			assert.LessOrEqual(t, m.payloadLen, maxPayloadBytes)
		}
	})
}
