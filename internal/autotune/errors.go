package autotune

import "errors"

// ErrNoSignal means the Averager has gone ErrorTimeout ticks without
// emitting a frequency. The channel latches, the user must Reset.
var ErrNoSignal = errors.New("autotune: no signal from frequency meter")

// ErrNonTrackingVCO means the doubling check failed when advancing from
// an octave step after the first: the measured frequency did not roughly double (or
// halve) between octave targets, so the connected VCO is not tracking CV
// at all. The channel latches, the user must Reset.
var ErrNonTrackingVCO = errors.New("autotune: VCO frequency does not track CV, doubling check failed")

// IsLatchingError reports whether err is one of the two error kinds that
// freeze a channel (NoSignal, NonTrackingVCO). Exhausting MaxNumPasses
// without converging is deliberately NOT a latching error: the engine
// stores best-effort progress and keeps going, see Converger.Update.
func IsLatchingError(err error) bool {
	return err == ErrNoSignal || err == ErrNonTrackingVCO
}
