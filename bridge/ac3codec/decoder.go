// Package ac3codec defines the push/pull boundary to an external AC-3
// decoder (spec.md §1 "out of scope... the AC-3 decoder (treated as a
// push/pull codec)"). Decode internals are not this package's concern;
// only the frame-in/frame-out contract and its WASM-hosted implementation
// are.
package ac3codec

import "context"

// Channels is the fixed output channel count the AC-3 sink requires
// (front-left, front-right, center, LFE, rear-left, rear-right).
const Channels = 6

// SamplesPerFrame is the nominal AC-3 frame size at 48 kHz (spec.md
// GLOSSARY "AC-3").
const SamplesPerFrame = 1536

// PCMFrame is one decoded AC-3 frame: planar float32 samples, one slice
// per channel, each holding Samples entries.
type PCMFrame struct {
	Channels [][]float32
	Samples  int
}

// Decoder consumes complete AC-3 frames and emits decoded planar PCM.
// Implementations may push back: Decode can return ErrInputRefused when
// pending output must be drained first (spec.md §4.6 step 1).
type Decoder interface {
	// Decode submits one complete AC-3 frame. On success it returns the
	// decoded frame. On ErrInputRefused the caller must call Drain and
	// then drop the offending input frame (AC-3 resynchronizes per-frame).
	Decode(ctx context.Context, frame []byte) (PCMFrame, error)

	// Drain returns any output the decoder produced without having been
	// given new input, or ErrNoOutput if none is pending.
	Drain(ctx context.Context) (PCMFrame, error)

	Close(ctx context.Context) error
}

var (
	// ErrInputRefused signals the decoder's push-back condition.
	ErrInputRefused = decodeErr("ac3codec: decoder refused input, drain pending output first")
	// ErrNoOutput signals Drain found nothing pending.
	ErrNoOutput = decodeErr("ac3codec: no pending output")
	// ErrUnsupportedChannels signals a decoded frame with a channel count
	// other than Channels; the sink drops such frames per spec.md §4.6.
	ErrUnsupportedChannels = decodeErr("ac3codec: decoded frame channel count unsupported")
)

type decodeErr string

func (e decodeErr) Error() string { return string(e) }
