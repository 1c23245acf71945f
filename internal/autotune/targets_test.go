package autotune

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_BuildTargetTable_V1(t *testing.T) {
	got := BuildTargetTable(100, V1)
	want := TargetTable{12.5, 25, 50, 100, 200, 400, 800, 1600, 3200, 6400, 12800}
	for i := range want {
		assert.InEpsilonf(t, want[i], got[i], 1e-9, "index %d", i)
	}
}

func Test_BuildTargetTable_V2_halvesTheExponent(t *testing.T) {
	got := BuildTargetTable(100, V2)
	// 2V/oct means +1V only gets you a half-octave: sqrt(2)*f0
	assert.InEpsilon(t, 100*math.Sqrt2, got[BaselineStep+1], 1e-9)
}

func Test_BuildTargetTable_V1_2_withinOneCentAtTopOctave(t *testing.T) {
	got := BuildTargetTable(100, V1_2)
	want := 100 * math.Pow(2, 7/1.2)
	ratio := got[len(got)-1] / want
	cents := 1200 * math.Log2(ratio)
	assert.Less(t, math.Abs(cents), 1.0)
}

func Test_BuildTargetTable_baselineIsUnscaled(t *testing.T) {
	for _, s := range []Scaling{V1, V1_2, V2} {
		got := BuildTargetTable(440, s)
		assert.InEpsilon(t, 440.0, got[BaselineStep], 1e-9)
	}
}
