package autotune

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newIdleHost(n int) (*Host, []*fakeDAC) {
	channels := make([]*Channel, n)
	dacs := make([]*fakeDAC, n)
	for i := 0; i < n; i++ {
		dac := newFakeDAC()
		for k := range dac.defaultCode {
			dac.defaultCode[k] = idealCode(1000, k)
		}
		dacs[i] = dac
		vco := &fakeVCO{dac: dac, f0: 110, codesPerOctave: codesPerVolt, center: 1000, ticksToHz: 1e6}
		channels[i] = NewChannel(i, dac, vco, V1, 1e6)
	}
	return NewHost(channels...), dacs
}

func Test_Host_armRunTick(t *testing.T) {
	h, _ := newIdleHost(2)

	assert.NoError(t, h.Arm(0))
	st, err := h.Status(0)
	assert.NoError(t, err)
	assert.Equal(t, StateArm, st.State)

	assert.NoError(t, h.Run(0))
	h.Tick()
	st, _ = h.Status(0)
	assert.Equal(t, StateBaseline, st.State)

	// The other channel never advances: Host only ticks the active one.
	st1, _ := h.Status(1)
	assert.Equal(t, StateIdle, st1.State)
}

func Test_Host_singleActiveAutotunerInvariant(t *testing.T) {
	h, _ := newIdleHost(2)

	assert.NoError(t, h.Arm(0))
	err := h.Arm(1)
	assert.ErrorIs(t, err, ErrChannelBusy)

	assert.NoError(t, h.Abort(0))
	st, _ := h.Status(0)
	assert.Equal(t, StateIdle, st.State)

	// Now channel 1 is free to arm.
	assert.NoError(t, h.Arm(1))
}

func Test_Host_abortIsAlwaysSafe(t *testing.T) {
	h, _ := newIdleHost(1)
	assert.NoError(t, h.Abort(0))

	assert.NoError(t, h.Arm(0))
	assert.NoError(t, h.Run(0))
	for i := 0; i < 100; i++ {
		h.Tick()
	}
	assert.NoError(t, h.Abort(0))
	st, _ := h.Status(0)
	assert.Equal(t, StateIdle, st.State)
}

func Test_Host_noSuchChannel(t *testing.T) {
	h, _ := newIdleHost(1)
	assert.ErrorIs(t, h.Arm(7), ErrNoSuchChannel)
	assert.ErrorIs(t, h.Run(7), ErrNoSuchChannel)
	assert.ErrorIs(t, h.Abort(7), ErrNoSuchChannel)
	_, err := h.Status(7)
	assert.ErrorIs(t, err, ErrNoSuchChannel)
}

func Test_Host_runWithoutArmFails(t *testing.T) {
	h, _ := newIdleHost(1)
	assert.Error(t, h.Run(0))
}
