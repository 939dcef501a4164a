package ring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestControlLoopConvergesAtEquilibrium(t *testing.T) {
	cl := NewControlLoop(4e-6, 128, 16)
	var ratio float64
	for i := 0; i < 20; i++ {
		ratio = cl.Step(128) // fill always at target -> offset always 0
	}
	assert.InDelta(t, 1.0, ratio, 1e-12)
}

func TestControlLoopRatioBounded(t *testing.T) {
	const gain = 4e-6
	const target = 128
	rapid.Check(t, func(t *rapid.T) {
		cl := NewControlLoop(gain, target, 16)
		fills := rapid.SliceOfN(rapid.IntRange(-1000, 2000), 1, 64).Draw(t, "fills")
		for _, f := range fills {
			ratio := cl.Step(f)
			assert.LessOrEqual(t, math.Abs(ratio-1), gain*target+1e-15)
		}
	})
}

func TestControlLoopHistorySizeMustBePowerOfTwo(t *testing.T) {
	assert.Panics(t, func() {
		NewControlLoop(1e-6, 128, 15)
	})
}
