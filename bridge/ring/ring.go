// Package ring implements the fixed-capacity float ring buffer shared by
// the PCM and AC-3 sinks, and the proportional control loop that derives
// a sample-rate-converter ratio from its fill level.
package ring

import "sync"

// Buffer is a power-of-two capacity float ring buffer with masked
// free-running read/write indices, guarded by a mutex and a condition
// variable. Exactly one producer calls Push and one consumer calls
// PopBlock; both advance their own index only, both under the mutex.
//
// One slot is always left vacant so a full buffer (fill == capacity-1)
// can be distinguished from an empty one (fill == 0) using only the two
// indices.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	data []float32
	mask uint32

	writeIdx uint32
	readIdx  uint32

	running bool
}

// New allocates a ring buffer of the given power-of-two capacity, with
// write_idx pre-set to target and read_idx to 0 so the buffer starts near
// its control-loop equilibrium point instead of empty (spec.md §4.1).
// Panics if capacity is not a power of two — this is a programmer error,
// caught at construction rather than on every push.
func New(capacity int, target int) *Buffer {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	b := &Buffer{
		data:     make([]float32, capacity),
		mask:     uint32(capacity - 1),
		writeIdx: uint32(target),
		running:  true,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// fill returns the number of queued samples. Caller must hold mu.
func (b *Buffer) fill() uint32 {
	return (b.writeIdx - b.readIdx) & b.mask
}

// free returns the number of samples that can still be pushed without
// overrunning the reader. Caller must hold mu.
func (b *Buffer) free() uint32 {
	return b.mask - b.fill()
}

// Fill returns the current queued-sample count.
func (b *Buffer) Fill() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.fill())
}

// Free returns the current free-slot count.
func (b *Buffer) Free() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int(b.free())
}

// Push appends as many of values as fit, truncating the tail when the
// buffer does not have room for all of them. It returns the number of
// samples actually queued and wakes the consumer. Callers that must never
// partially queue (the AC-3 sink, to preserve channel alignment) should
// check Free() first and skip the call entirely rather than rely on the
// truncation.
func (b *Buffer) Push(values []float32) int {
	b.mu.Lock()
	n := uint32(len(values))
	if free := b.free(); n > free {
		n = free
	}
	for i := uint32(0); i < n; i++ {
		b.data[(b.writeIdx+i)&b.mask] = values[i]
	}
	b.writeIdx += n
	b.mu.Unlock()
	b.cond.Broadcast()
	return int(n)
}

// PopBlock waits until at least len(dst) samples are available or the
// buffer is stopped, then copies exactly len(dst) samples into dst and
// advances read_idx. ok is false only when Stop was called and fewer than
// len(dst) samples are currently queued — dst is left untouched in that
// case.
func (b *Buffer) PopBlock(dst []float32) (ok bool) {
	n := uint32(len(dst))
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.fill() < n && b.running {
		b.cond.Wait()
	}
	if !b.running && b.fill() < n {
		return false
	}
	for i := uint32(0); i < n; i++ {
		dst[i] = b.data[(b.readIdx+i)&b.mask]
	}
	b.readIdx += n
	return true
}

// Stop clears the running flag and wakes any consumer blocked in
// PopBlock so it can observe the stop and return. It is idempotent.
func (b *Buffer) Stop() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
	b.cond.Broadcast()
}
