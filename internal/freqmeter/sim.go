// Package freqmeter provides daq.FreqMeter implementations: a deterministic
// simulated VCO for tests and a serial-backed real device.
package freqmeter

import (
	"math"
)

// Sim is a deterministic VCO model: it reports a period count derived from
// the last raw code written to Sim's DAC, with configurable gain, center
// code, and per-octave drift, used to drive the end-to-end scenarios the
// autotune package's own tests exercise against a simpler fake.
type Sim struct {
	// LastCode is read directly by tests/hosts driving Sim without a real
	// DAC in the loop; production wiring instead calls Observe from the
	// host's SetRaw path.
	LastCode int32

	F0             float64 // frequency at CenterCode
	CenterCode     int32
	CodesPerOctave float64
	TicksToHz      float64

	// DriftPerOctave models a DAC whose gain is not quite linear: added to
	// CodesPerOctave proportionally to the octave distance from center,
	// letting tests reproduce the linear-DAC-error scenario end to end.
	DriftPerOctave float64

	available bool
	lastPeriod uint32
}

// Observe records a new raw code as having been written to the DAC this
// meter is listening to. Call it from the same place the real hardware's
// DAC output changes, then Available/Read report the resulting period on
// the next poll.
func (s *Sim) Observe(code int32) {
	s.LastCode = code
	s.available = true
}

func (s *Sim) codesPerOctaveAt(code int32) float64 {
	dist := float64(code-s.CenterCode) / s.CodesPerOctave
	return s.CodesPerOctave + s.DriftPerOctave*dist
}

// Available reports whether a sample is ready; Sim always has one once
// Observe has been called at least once.
func (s *Sim) Available() bool { return s.available }

// Read computes the period, in ticks, implied by the last observed code.
func (s *Sim) Read() uint32 {
	cpo := s.codesPerOctaveAt(s.LastCode)
	octaves := float64(s.LastCode-s.CenterCode) / cpo
	freq := s.F0 * math.Pow(2, octaves)
	period := s.TicksToHz / freq
	s.lastPeriod = uint32(period + 0.5)
	return s.lastPeriod
}
