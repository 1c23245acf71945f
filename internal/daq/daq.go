// Package daq defines the DAC and frequency-meter contracts the
// calibration engine is driven through, and the HTTP bindings that expose
// a concrete implementation of either one as a route table. The interfaces
// here are the superset autotune.DAC/autotune.FreqMeter narrow from: a
// hardware driver that satisfies CalibratedDAC also satisfies autotune.DAC
// with no adapter, since the method sets match exactly.
package daq

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"github.com/benchtop-modular/cvcal/internal/autotune"
	"github.com/benchtop-modular/cvcal/internal/server"
)

// DAC is the minimal raw-output contract: write one channel to one code,
// unbuffered, taking effect immediately. This is the SetRaw part of the
// wider interface internal/autotune defines for itself, split out here so a
// hardware driver can be written once and handed to both the calibration
// engine and the HTTP layer.
type DAC interface {
	SetRaw(channel int, code int32) error
}

// CalibrationSource is an alias of autotune.CalibrationSource, not a
// parallel type: a hardware driver's CalibrationSource method then has one
// concrete return type satisfying both autotune.DAC and daq.CalibratedDAC
// with no wrapper method needed.
type CalibrationSource = autotune.CalibrationSource

const (
	SourceDefault = autotune.SourceDefault
	SourceAuto    = autotune.SourceAuto
)

func calibrationSourceString(s CalibrationSource) string {
	if s == SourceAuto {
		return "auto"
	}
	return "default"
}

// CalibratedDAC widens DAC with the dual-table calibration operations the
// autotuner needs: a read-only factory table, a writable learned table,
// and a selector between the two.
type CalibratedDAC interface {
	DAC
	DefaultCalibratedCode(channel, octaveIndex int) int32
	SetDefaultCalibration(channel int) error
	SetAutoCalibration(channel int) error
	UpdateAutoCalibration(channel, octaveIndex int, code int32) error
	CalibrationSource(channel int) CalibrationSource
}

// FreqMeter is the poll-style frequency meter contract shared with
// internal/autotune: Available reports a new period sample is ready, Read
// consumes it.
type FreqMeter interface {
	Available() bool
	Read() uint32
}

// MethodPath and RouteTable2 re-export the server package's route-table
// shape so HTTP binding functions in this package return something chi can
// bind directly without importing server at every call site.
type MethodPath = server.MethodPath
type RouteTable2 = server.RouteTable

func mp(method, path string) MethodPath { return MethodPath{Method: method, Path: path} }

func channelParam(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "ch"))
}

type rawCodeInput struct {
	Code int32 `json:"code"`
}

// HTTPBasicDAC exposes DAC's single operation as a route table mounted
// under a stem containing a {ch} chi URL parameter, e.g. "/dac".
func HTTPBasicDAC(d DAC) RouteTable2 {
	rt := RouteTable2{}
	rt[mp(http.MethodPost, "/{ch}/raw")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var in rawCodeInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := d.SetRaw(ch, in.Code); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
	return rt
}

type updateAutoInput struct {
	Octave int   `json:"octave"`
	Code   int32 `json:"code"`
}

// HTTPCalibratedDAC exposes every CalibratedDAC operation as a route
// table, the calibrated-table analog of HTTPBasicDAC plus HTTPBasicDAC's
// own routes.
func HTTPCalibratedDAC(d CalibratedDAC) RouteTable2 {
	rt := HTTPBasicDAC(d)

	rt[mp(http.MethodGet, "/{ch}/calibration/default/{octave}")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		octave, err := strconv.Atoi(chi.URLParam(r, "octave"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		code := d.DefaultCalibratedCode(ch, octave)
		server.HumanPayload{Kind: server.KindInt, Int: int(code)}.EncodeAndRespond(w, r)
	}

	rt[mp(http.MethodPost, "/{ch}/calibration/source/default")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := d.SetDefaultCalibration(ch); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}

	rt[mp(http.MethodPost, "/{ch}/calibration/source/auto")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := d.SetAutoCalibration(ch); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}

	rt[mp(http.MethodPost, "/{ch}/calibration/auto")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var in updateAutoInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := d.UpdateAutoCalibration(ch, in.Octave, in.Code); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}

	rt[mp(http.MethodGet, "/{ch}/calibration/source")] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelParam(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		server.HumanPayload{Kind: server.KindString, String: calibrationSourceString(d.CalibrationSource(ch))}.EncodeAndRespond(w, r)
	}

	return rt
}

// HTTPFreqMeter exposes a read-only FreqMeter as a route table; the
// calibration engine itself polls FreqMeter in-process, this exists purely
// for diagnostics/UI.
func HTTPFreqMeter(f FreqMeter) RouteTable2 {
	rt := RouteTable2{}
	rt[mp(http.MethodGet, "/available")] = func(w http.ResponseWriter, r *http.Request) {
		server.HumanPayload{Kind: server.KindBool, Bool: f.Available()}.EncodeAndRespond(w, r)
	}
	rt[mp(http.MethodGet, "/read")] = func(w http.ResponseWriter, r *http.Request) {
		server.HumanPayload{Kind: server.KindUint32, Uint32: f.Read()}.EncodeAndRespond(w, r)
	}
	return rt
}
