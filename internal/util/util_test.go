package util_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/benchtop-modular/cvcal/internal/util"
)

func ExampleSetBit_msb() {
	out := util.SetBit(0, 7, true)
	fmt.Printf("%08b\n", out)
	// Output: 10000000
}

func ExampleSetBit_lsb() {
	out := util.SetBit(255, 0, false)
	fmt.Printf("%08b\n", out)
	// Output: 11111110
}

func TestGetBit(t *testing.T) {
	b := util.SetBit(0, 3, true)
	if !util.GetBit(b, 3) {
		t.Errorf("expected bit 3 of %08b to be set", b)
	}
	if util.GetBit(b, 2) {
		t.Errorf("expected bit 2 of %08b to be clear", b)
	}
}

func TestInt32SliceToCSV(t *testing.T) {
	inp := []int32{1, -2, 3}
	expected := "1,-2,3"
	out := util.Int32SliceToCSV(inp)
	if expected != out {
		t.Errorf("expected %s got %s", expected, out)
	}
}

func TestFloat64SliceToCSV(t *testing.T) {
	inp := []float64{110, 220.5}
	expected := "110,220.5"
	out := util.Float64SliceToCSV(inp, 'g', -1)
	if expected != out {
		t.Errorf("expected %s got %s", expected, out)
	}
}

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f, got %f", input, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f, got %f", input, low, clamped)
	}
}

func TestMergeErrorsNil(t *testing.T) {
	if err := util.MergeErrors([]error{nil, nil}); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestMergeErrorsJoins(t *testing.T) {
	err := util.MergeErrors([]error{errors.New("a"), nil, errors.New("b")})
	if err == nil {
		t.Fatal("expected non-nil error")
	}
	expected := "a\nb"
	if err.Error() != expected {
		t.Errorf("expected %q got %q", expected, err.Error())
	}
}
