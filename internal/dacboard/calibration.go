package dacboard

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/snksoft/crc"

	"github.com/benchtop-modular/cvcal/internal/autotune"
	"github.com/benchtop-modular/cvcal/internal/util"
)

// crcTable is the XMODEM CRC used to guard the persisted calibration blob,
// the same construction nkt/telegram.go uses for its own wire frames.
var crcTable = crc.NewTable(crc.XMODEM)

// entriesPerChannel is one entry per octave target, baseline included.
const entriesPerChannel = autotune.Octaves + 1

// Table is the on-disk dual calibration table: a factory-set Default row
// and a learned Auto row per channel, plus which row is live.
type Table struct {
	path    string
	def     [Channels][entriesPerChannel]int32
	auto    [Channels][entriesPerChannel]int32
	live    [Channels]autotune.CalibrationSource
}

// NewTable returns an empty table with every channel defaulted to the
// Default source.
func NewTable() *Table {
	return &Table{}
}

// Get returns one source's entry for a channel/octave.
func (t *Table) Get(channel int, source autotune.CalibrationSource, octaveIndex int) int32 {
	if source == autotune.SourceAuto {
		return t.auto[channel][octaveIndex]
	}
	return t.def[channel][octaveIndex]
}

// Set writes one source's entry for a channel/octave. Only Auto is ever
// written post-manufacture; Default is treated as read-only by the
// calibration engine but settable here for factory provisioning.
func (t *Table) Set(channel int, source autotune.CalibrationSource, octaveIndex int, code int32) {
	if source == autotune.SourceAuto {
		t.auto[channel][octaveIndex] = code
	} else {
		t.def[channel][octaveIndex] = code
	}
}

// SetSource marks which row is live for a channel.
func (t *Table) SetSource(channel int, source autotune.CalibrationSource) {
	t.live[channel] = source
}

// Source reports which row is live for a channel.
func (t *Table) Source(channel int) autotune.CalibrationSource {
	return t.live[channel]
}

// CSV renders one channel's row of a source table as comma-separated DAC
// codes, baseline included, for diagnostic dumps.
func (t *Table) CSV(channel int, source autotune.CalibrationSource) string {
	row := t.def[channel]
	if source == autotune.SourceAuto {
		row = t.auto[channel]
	}
	return util.Int32SliceToCSV(row[:])
}

// blobSize is the serialized size: one byte per channel for the live
// source, plus def and auto arrays as little-endian int32, plus a
// trailing uint16 CRC.
const blobSize = Channels + 2*Channels*entriesPerChannel*4 + 2

// Save writes the table to path as a flat binary blob guarded by an
// XMODEM CRC over everything preceding it, so a torn write during COMMIT
// is detected on the next Load rather than silently trusted.
func (t *Table) Save(path string) error {
	buf := make([]byte, blobSize)
	off := 0
	for ch := 0; ch < Channels; ch++ {
		buf[off] = byte(t.live[ch])
		off++
	}
	for ch := 0; ch < Channels; ch++ {
		for _, v := range t.def[ch] {
			binary.LittleEndian.PutUint32(buf[off:], uint32(v))
			off += 4
		}
	}
	for ch := 0; ch < Channels; ch++ {
		for _, v := range t.auto[ch] {
			binary.LittleEndian.PutUint32(buf[off:], uint32(v))
			off += 4
		}
	}

	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, buf[:off])
	binary.LittleEndian.PutUint16(buf[off:], crcTable.CRC16(crcUint))

	t.path = path
	return os.WriteFile(path, buf, 0o644)
}

// LoadTable reads a table previously written by Save, verifying its CRC.
func LoadTable(path string) (*Table, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(buf) != blobSize {
		return nil, fmt.Errorf("dacboard: calibration file %s has wrong size %d, want %d", path, len(buf), blobSize)
	}

	body := buf[:blobSize-2]
	wantCRC := binary.LittleEndian.Uint16(buf[blobSize-2:])
	crcUint := crcTable.InitCrc()
	crcUint = crcTable.UpdateCrc(crcUint, body)
	if crcTable.CRC16(crcUint) != wantCRC {
		return nil, fmt.Errorf("dacboard: calibration file %s failed CRC check, torn write or corruption", path)
	}

	t := &Table{path: path}
	off := 0
	for ch := 0; ch < Channels; ch++ {
		t.live[ch] = autotune.CalibrationSource(buf[off])
		off++
	}
	for ch := 0; ch < Channels; ch++ {
		for i := range t.def[ch] {
			t.def[ch][i] = int32(binary.LittleEndian.Uint32(buf[off:]))
			off += 4
		}
	}
	for ch := 0; ch < Channels; ch++ {
		for i := range t.auto[ch] {
			t.auto[ch][i] = int32(binary.LittleEndian.Uint32(buf[off:]))
			off += 4
		}
	}
	return t, nil
}
