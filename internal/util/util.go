// Package util contains small helpers shared by the calibration engine and
// its hardware-facing packages.
package util

import (
	"fmt"
	"strconv"
	"strings"
)

// GetBit returns the value of a given bit in a byte.
func GetBit(b byte, bitIndex uint) bool {
	return (b>>bitIndex)&1 == 1
}

// SetBit sets a single bit in a byte.
func SetBit(in byte, bitIndex uint, high bool) byte {
	if high {
		in |= 1 << bitIndex
	} else {
		in &= ^(1 << bitIndex)
	}
	return in
}

// Int32SliceToCSV converts a slice of int32 DAC codes to CSV formatted data,
// e.g. []int32{1,-2,3} => "1,-2,3".
func Int32SliceToCSV(is []int32) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.FormatInt(int64(v), 10)
	}
	return strings.Join(s, ",")
}

// Float64SliceToCSV converts a slice of f64s to CSV formatted data.
// Sensible defaults for format and prec are 'g' and 6, for the target
// frequency tables this package deals in.
func Float64SliceToCSV(fs []float64, format byte, prec int) string {
	s := make([]string, len(fs))
	for i, v := range fs {
		s[i] = strconv.FormatFloat(v, format, prec, 64)
	}
	return strings.Join(s, ",")
}

// Clamp limits min <= input <= max.
func Clamp(input, min, max float64) float64 {
	if input < min {
		return min
	}
	if input > max {
		return max
	}
	return input
}

// MergeErrors converts many errors into a single one, newline separated.
// A nil slice, or a slice of all-nil errors, yields a nil error.
func MergeErrors(errs []error) error {
	var strs []string
	for _, err := range errs {
		if err != nil {
			strs = append(strs, err.Error())
		}
	}
	if len(strs) == 0 {
		return nil
	}
	return fmt.Errorf(strings.Join(strs, "\n"))
}
