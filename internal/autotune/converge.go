package autotune

// MaxNumPasses is the per-step convergence-loop cap. A step that has not
// converged after this many averager emits is force-advanced with
// whatever offset was last seen (best-effort; see IsLatchingError in
// errors.go for the propagation policy).
const MaxNumPasses = 1500

// ConvergePasses is the number of fine-grained (F==1) corrections in each
// direction that a step must exceed before it is considered converged:
// proof that the result straddles the target rather than overshooting it
// monotonically. The counts accumulate over the whole step; they need not
// be consecutive.
const ConvergePasses = 5

// initialHalvingFactor is F's starting value: 8-bit all-ones.
const initialHalvingFactor = 0xFF

// Converger runs the per-step closed loop described in the calibration
// engine's design: compare the latest averaged frequency to a target,
// correct a signed DAC offset via a halving-step binary search (a classic
// SAR -- successive-approximation register), and detect convergence.
type Converger struct {
	offsetError int32
	f           uint8
	direction   bool
	dirValid    bool
	posCount    int
	negCount    int
	passCount   int
}

// NewConverger returns a Converger primed with the initial halving factor.
func NewConverger() *Converger {
	return &Converger{f: initialHalvingFactor}
}

// Reset clears all scratch state for the next step. Used between octave
// targets; the correction table and target table are untouched.
func (c *Converger) Reset() {
	*c = Converger{f: initialHalvingFactor}
}

// primeForArm sets F to 1 so the averager's window widens immediately once
// RUN begins, per the ARM state's priming behavior.
func (c *Converger) primeForArm() {
	c.f = 1
}

// OffsetError is the current signed DAC correction for this step.
func (c *Converger) OffsetError() int32 { return c.offsetError }

// Fine reports whether the halving factor has reached its floor of 1,
// which is also the Averager's cue to widen its window.
func (c *Converger) Fine() bool { return c.f == 1 }

// Converged reports whether this step has seen more than ConvergePasses
// fine corrections in both directions.
func (c *Converger) Converged() bool {
	return c.posCount > ConvergePasses && c.negCount > ConvergePasses
}

// outcome describes what happened on an Update call. The same advance
// path is taken whether the step genuinely settled (ConvergePasses hit in
// both directions) or MaxNumPasses was exhausted without settling -- the
// forced-advance trick in Update collapses both into one code path, the
// same way the calibration engine's design does. The caller (Channel)
// cannot tell the two apart and does not need to: it runs the doubling
// check on every advance from octave 1 onward, whatever the cause.
type outcome int

const (
	// stillRunning means keep calling Update for this step.
	stillRunning outcome = iota
	// advance means the step is done; the caller should run the doubling
	// check, store OffsetError into the correction table, and move to the
	// next step.
	advance
)

// Update runs one per-emit correction given the latest averaged frequency f
// against the step's target t. It mutates the controller's scratch state
// and returns what the caller should do next.
func (c *Converger) Update(f, t float64) outcome {
	if c.passCount > MaxNumPasses {
		return advance
	}

	switch {
	case f < t:
		if !c.dirValid || !c.direction {
			c.f = (c.f >> 1) | 1
		}
		c.direction = true
		c.dirValid = true
		c.offsetError += int32(c.f)
		if c.f == 1 {
			c.posCount++
		}
	case f > t:
		if !c.dirValid || c.direction {
			c.f = (c.f >> 1) | 1
		}
		c.direction = false
		c.dirValid = true
		c.offsetError -= int32(c.f)
		if c.f == 1 {
			c.negCount++
		}
	}

	// Keep |offsetError| within 2*initialHalvingFactor-1, which a run of
	// same-signed corrections would otherwise exceed.
	const maxOffset = 2*initialHalvingFactor - 1
	if c.offsetError > maxOffset {
		c.offsetError = maxOffset
	} else if c.offsetError < -maxOffset {
		c.offsetError = -maxOffset
	}

	c.passCount++
	if c.Converged() {
		c.passCount = MaxNumPasses + 1
	}
	return stillRunning
}

