// Package dacboard drives the quad-channel CV output board this module
// calibrates: a cgo wrapper around the vendor SDK for the DAC hardware,
// plus a CRC-guarded on-disk calibration table. The wrapper shape (a
// mutex-guarded struct around a vendor config block, one SDK call per
// setter, integer status codes translated through enrich) mirrors
// acromag/ap235.go and acromag/ap236.go in the reference stack this was
// built against.
package dacboard

/*
#cgo LDFLAGS: -lcvdac
#include "cvdac.h"
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/benchtop-modular/cvcal/internal/autotune"
	"github.com/benchtop-modular/cvcal/internal/daq"
	"github.com/benchtop-modular/cvcal/internal/util"
)

// Channels is the number of CV outputs on the board.
const Channels = 4

// statusText maps the vendor SDK's integer return codes to messages, the
// same table-driven translation acromag/ap236.go's enrich uses for its own
// SDK's APSTATUS codes.
var statusText = map[C.int]string{
	C.CVDAC_ERR_RANGE:   "requested code out of range",
	C.CVDAC_ERR_CHANNEL: "invalid channel index",
	C.CVDAC_ERR_IO:      "board I/O failure",
}

func enrich(errC C.int, procedure string) error {
	if errC == C.CVDAC_OK {
		return nil
	}
	msg, ok := statusText[errC]
	if !ok {
		msg = fmt.Sprintf("unknown status %d", int(errC))
	}
	return fmt.Errorf("dacboard: %s: %s", procedure, msg)
}

// CVDAC is a hardware-backed daq.CalibratedDAC. It satisfies autotune.DAC
// too, with no adapter, since the two interfaces share the same method
// set by construction.
type CVDAC struct {
	mu         sync.Mutex
	cfg        *C.struct_cvdac_cfg
	cal        *Table
	enableMask byte
}

var (
	_ daq.CalibratedDAC = (*CVDAC)(nil)
	_ autotune.DAC      = (*CVDAC)(nil)
)

// Open initializes the board at deviceIndex and loads (or creates) its
// persisted calibration table at tablePath.
func Open(deviceIndex int, tablePath string) (*CVDAC, error) {
	d := &CVDAC{}
	d.cfg = (*C.struct_cvdac_cfg)(C.malloc(C.sizeof_struct_cvdac_cfg))

	errC := C.cvdac_open(C.int(deviceIndex), &d.cfg.handle)
	if err := enrich(errC, "cvdac_open"); err != nil {
		return nil, err
	}

	// Every channel on the board ships enabled; the mask is built bit by
	// bit rather than as a literal so the board-bringup code reads the
	// same way acromag's own per-channel enable masks are assembled.
	var mask byte
	for ch := 0; ch < Channels; ch++ {
		mask = util.SetBit(mask, uint(ch), true)
	}
	d.enableMask = mask

	errC = C.cvdac_initialize(d.cfg.handle, C.uint8_t(d.enableMask))
	if err := enrich(errC, "cvdac_initialize"); err != nil {
		return nil, err
	}

	table, err := LoadTable(tablePath)
	if err != nil {
		table = NewTable()
		table.path = tablePath
	}
	d.cal = table
	return d, nil
}

// SetRaw writes a raw code to a channel, unbuffered. A call to this issues
// an immediate transfer of the code to the board, the same one-write-per-
// call convention the ap235/ap236 setters use.
func (d *CVDAC) SetRaw(channel int, code int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if channel < 0 || channel >= Channels {
		return fmt.Errorf("dacboard: channel %d out of range", channel)
	}
	errC := C.cvdac_write(d.cfg.handle, C.int(channel), C.int32_t(code))
	return enrich(errC, "cvdac_write")
}

// DefaultCalibratedCode returns the factory table entry for a channel and
// octave index.
func (d *CVDAC) DefaultCalibratedCode(channel, octaveIndex int) int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal.Get(channel, autotune.SourceDefault, octaveIndex)
}

// SetDefaultCalibration marks the factory table live for a channel. The
// board itself has no notion of "which table is live"; that bookkeeping is
// purely a host-side concern the calibration engine consults through
// CalibrationSource.
func (d *CVDAC) SetDefaultCalibration(channel int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cal.SetSource(channel, autotune.SourceDefault)
	return nil
}

// SetAutoCalibration marks the learned table live for a channel.
func (d *CVDAC) SetAutoCalibration(channel int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cal.SetSource(channel, autotune.SourceAuto)
	return nil
}

// ChannelEnabled reports whether a channel was enabled at Open.
func (d *CVDAC) ChannelEnabled(channel int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return util.GetBit(d.enableMask, uint(channel))
}

// UpdateAutoCalibration writes one learned entry for a channel/octave and
// persists the table to disk, CRC-guarded, so a crash mid-COMMIT is
// detected rather than silently trusted on the next load.
func (d *CVDAC) UpdateAutoCalibration(channel, octaveIndex int, code int32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cal.Set(channel, autotune.SourceAuto, octaveIndex, code)
	if d.cal.path == "" {
		return nil
	}
	return d.cal.Save(d.cal.path)
}

// CalibrationSource reports which table is live for a channel.
func (d *CVDAC) CalibrationSource(channel int) daq.CalibrationSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal.Source(channel)
}

// CalibrationCSV dumps one channel's calibration row as CSV, for the
// diagnostic endpoint cmd/cvcalsrv exposes when it detects a CalibratedDAC
// implementation that supports it.
func (d *CVDAC) CalibrationCSV(channel int, source daq.CalibrationSource) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cal.CSV(channel, source)
}

// Close releases the board handle.
func (d *CVDAC) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	errC := C.cvdac_close(d.cfg.handle)
	C.free(unsafe.Pointer(d.cfg))
	return enrich(errC, "cvdac_close")
}
