// Package sink implements the PCM and AC-3 adaptive sinks: producer-side
// resampling and control-loop-driven ratio adjustment feeding a ring
// buffer, and a consumer worker goroutine draining fixed-size blocks to
// the playback device (spec.md §4.5, §4.6).
package sink

// BufferBytes implements spec.md §4.7: given a requested latency in
// microseconds, channel count, and the per-sink default byte count, it
// returns the device buffer size to request. A zero or too-small latency
// falls back to defaultBytes.
func BufferBytes(latencyMicros, channels, defaultBytes int) int {
	const sampleRate = 48000.0
	const bytesPerSample = 4.0

	if latencyMicros <= 0 {
		return defaultBytes
	}
	b := int((float64(latencyMicros) / 1e6) * sampleRate * bytesPerSample * float64(channels))
	if b < defaultBytes {
		return defaultBytes
	}
	return b
}

// BufferFrames converts a byte buffer size to a frame count for the given
// channel count (float32 samples, 4 bytes each).
func BufferFrames(bufferBytes, channels int) int {
	if channels <= 0 {
		return 0
	}
	frames := bufferBytes / (4 * channels)
	if frames <= 0 {
		frames = 1
	}
	return frames
}
