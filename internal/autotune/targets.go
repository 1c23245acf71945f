package autotune

import "math"

// Octaves is the number of octave steps above/below the 0V baseline that
// this engine tunes; together with the baseline there are Octaves+1
// entries in a target table.
const Octaves = 10

// voltageOfStep lists the CV steps, in volts, that target index k refers
// to: -3V .. +7V, 11 points including both endpoints.
var voltageOfStep = [Octaves + 1]float64{-3, -2, -1, 0, 1, 2, 3, 4, 5, 6, 7}

// BaselineStep is the index of the 0V entry in a target table. The
// doubling check in channel.go only fires once octave >= 1: the very
// first voltage step (octave 0) has nothing but the baseline reading to
// compare against, several octaves away by construction, so it is
// skipped rather than compared.
const BaselineStep = 3

// Scaling is a volt-per-octave convention.
type Scaling int

const (
	// V1 is the 1V/octave convention: one volt doubles the frequency.
	V1 Scaling = iota
	// V1_2 is the 1.2V/octave convention used by some historical modular
	// synthesizer pitch standards.
	V1_2
	// V2 is the 2V/octave convention.
	V2
)

// scaleVolts returns the number of volts that constitute one octave for a
// given Scaling.
func (s Scaling) scaleVolts() float64 {
	switch s {
	case V1_2:
		return 1.2
	case V2:
		return 2.0
	default:
		return 1.0
	}
}

// TargetTable holds the 11 target frequencies for -3V..+7V built from a
// measured 0V reference frequency and a voltage scaling.
type TargetTable [Octaves + 1]float64

// BuildTargetTable fills a TargetTable from f0, the measured 0V frequency,
// under the given scaling: target[k] = f0 * 2^(voltageOfStep[k]/scaleVolts).
//
// The source this engine is modeled on unrolls the exponent into
// precomputed per-octave multipliers to avoid a pow() call in the ISR; this
// implementation uses math.Pow directly since it runs once per BASELINE
// completion, not once per tick, and the accuracy requirement (<= 1 cent at
// the top octave) is comfortably met by float64 math.Pow.
func BuildTargetTable(f0 float64, scaling Scaling) TargetTable {
	var t TargetTable
	sv := scaling.scaleVolts()
	for k, v := range voltageOfStep {
		t[k] = f0 * math.Pow(2, v/sv)
	}
	return t
}
