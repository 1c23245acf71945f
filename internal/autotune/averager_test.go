package autotune

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_Averager_fairness(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		period := rapid.Uint32Range(1, 1<<20).Draw(t, "period")
		k := rapid.Float64Range(1, 1e9).Draw(t, "k")

		a := NewAverager(k)
		var got float64
		var emitted bool
		// Feed enough constant samples to guarantee at least one emission.
		for i := 0; i < int(FreqMeasureTimeout)*2; i++ {
			f, ok := a.Tick(period, true, false)
			if ok {
				got = f
				emitted = true
				break
			}
		}

		assert.True(t, emitted, "expected an emission for constant input")
		want := k / float64(period)
		assert.InEpsilonf(t, want, got, 1e-9, "period=%d k=%v", period, k)
	})
}

func Test_Averager_fineWindowIsWider(t *testing.T) {
	a := NewAverager(1000)
	assert.Equal(t, uint32(FreqMeasureTimeout>>2), a.window(false))
	assert.Equal(t, uint32(FreqMeasureTimeout<<2), a.window(true))
}

func Test_Averager_timesOutWithoutSamples(t *testing.T) {
	a := NewAverager(1000)
	for i := 0; i < ErrorTimeout+1; i++ {
		assert.False(t, a.TimedOut())
		_, ok := a.Tick(0, false, false)
		assert.False(t, ok)
	}
	assert.True(t, a.TimedOut())
}

func Test_Averager_historyFullAfterHistoryDepthEmits(t *testing.T) {
	a := NewAverager(1000)
	for i := 0; i < HistoryDepth; i++ {
		assert.False(t, a.HistoryFull())
		for {
			_, ok := a.Tick(100, true, false)
			if ok {
				break
			}
		}
	}
	assert.True(t, a.HistoryFull())
	assert.InEpsilon(t, 10.0, a.HistoryMean(), 1e-9)
}

func Test_Averager_resetClearsHistory(t *testing.T) {
	a := NewAverager(1000)
	for {
		_, ok := a.Tick(100, true, false)
		if ok {
			break
		}
	}
	assert.NotEqual(t, 0.0, a.HistoryMean())
	a.Reset()
	assert.Equal(t, 0.0, a.HistoryMean())
	assert.False(t, a.HistoryFull())
}
