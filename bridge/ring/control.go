package ring

// ControlLoop computes the instantaneous sample-rate-converter ratio from
// a ring buffer's fill level, using a clamped proportional term averaged
// over a power-of-two history window (spec.md §4.2). It is owned and
// called only by a sink's producer goroutine, so it needs no locking of
// its own — the ring buffer it reads fill() from already has one.
type ControlLoop struct {
	gain   float64
	target int

	history []int32
	histIdx int
	mask    int
}

// NewControlLoop constructs a control loop with the given proportional
// gain, target fill, and history window size. historySize must be a
// power of two; this is checked once at construction so every Step call
// can use a cheap mask instead of a modulo.
func NewControlLoop(gain float64, target int, historySize int) *ControlLoop {
	if historySize <= 0 || historySize&(historySize-1) != 0 {
		panic("ring: control loop history size must be a power of two")
	}
	return &ControlLoop{
		gain:    gain,
		target:  target,
		history: make([]int32, historySize),
		mask:    historySize - 1,
	}
}

// Step computes offset = target - fill, clamps it to [-target, +target],
// records it in the history ring, and returns ratio = 1 + gain*average,
// where average is the mean of the full history window. Per spec.md
// §4.2/§8, |ratio-1| is bounded by gain*target for every possible
// history.
func (c *ControlLoop) Step(fill int) float64 {
	offset := int32(c.target - fill)
	if offset > int32(c.target) {
		offset = int32(c.target)
	} else if offset < -int32(c.target) {
		offset = -int32(c.target)
	}

	c.history[c.histIdx] = offset
	c.histIdx = (c.histIdx + 1) & c.mask

	var sum int64
	for _, v := range c.history {
		sum += int64(v)
	}
	average := float64(sum) / float64(len(c.history))

	return 1 + c.gain*average
}

// Target returns the configured equilibrium fill level.
func (c *ControlLoop) Target() int { return c.target }
