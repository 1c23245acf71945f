// Command cvcalsrv is the host process for the four-channel CV reference
// generator's auto-calibration engine: it wires a DAC/frequency-meter pair
// (simulated or hardware-backed) to an autotune.Host, drives the host's
// tick on a fixed-rate goroutine standing in for the real ISR, and exposes
// arm/run/reset/status over HTTP, the same shape cmd/dacsrv/main.go wires
// an acromag DAC to its own HTTP surface with, plus a diagnostics mainframe
// exposing the same DAC/meter pair's raw operations directly.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"

	"github.com/benchtop-modular/cvcal/internal/autotune"
	"github.com/benchtop-modular/cvcal/internal/config"
	"github.com/benchtop-modular/cvcal/internal/dacboard"
	"github.com/benchtop-modular/cvcal/internal/daq"
	"github.com/benchtop-modular/cvcal/internal/freqmeter"
	"github.com/benchtop-modular/cvcal/internal/server"
	"github.com/benchtop-modular/cvcal/internal/server/locker"
	"github.com/benchtop-modular/cvcal/internal/util"
)

const numChannels = 4

// simDAC is the DAC half of buildHardware's sim backend: a tiny in-memory
// DAC that hands every raw code straight to that channel's Sim meter via
// Observe, so the whole engine runs end-to-end with no real board attached.
type simDAC struct {
	def, auto [numChannels][autotune.Octaves + 1]int32
	live      [numChannels]autotune.CalibrationSource
	meters    [numChannels]*freqmeter.Sim
}

// idealCode is the factory-table entry that would land exactly on octave
// step k's target given a driftless DAC at center/codesPerOctave
// resolution, the same construction internal/autotune's own tests use
// (voltageOfStep[k] == k-BaselineStep, so this needs no access to that
// unexported table).
func idealCode(center int32, codesPerOctave float64, k int) int32 {
	return center + int32(codesPerOctave*float64(k-autotune.BaselineStep))
}

// driftPerOctave matches the linear-DAC-error scenario internal/autotune's
// own tests converge against: the factory table drifts a few codes further
// from ideal every octave away from baseline, giving the shipped demo real
// (small, reachable) error to correct instead of either a perfect table or
// one the controller's offset range can't span.
const driftPerOctave = 3

func newSimDAC(meters [numChannels]*freqmeter.Sim) *simDAC {
	d := &simDAC{meters: meters}
	for ch := 0; ch < numChannels; ch++ {
		center := meters[ch].CenterCode
		cpo := meters[ch].CodesPerOctave
		for k := range d.def[ch] {
			d.def[ch][k] = idealCode(center, cpo, k) + int32(k-autotune.BaselineStep)*driftPerOctave
		}
	}
	return d
}

func (d *simDAC) SetRaw(channel int, code int32) error {
	d.meters[channel].Observe(code)
	return nil
}
func (d *simDAC) DefaultCalibratedCode(channel, octaveIndex int) int32 {
	return d.def[channel][octaveIndex]
}
func (d *simDAC) SetDefaultCalibration(channel int) error {
	d.live[channel] = autotune.SourceDefault
	return nil
}
func (d *simDAC) SetAutoCalibration(channel int) error {
	d.live[channel] = autotune.SourceAuto
	return nil
}
func (d *simDAC) UpdateAutoCalibration(channel, octaveIndex int, code int32) error {
	d.auto[channel][octaveIndex] = code
	return nil
}
func (d *simDAC) CalibrationSource(channel int) autotune.CalibrationSource {
	return d.live[channel]
}

func buildHardware(cfg config.Config) (daq.CalibratedDAC, [numChannels]daq.FreqMeter, error) {
	var meters [numChannels]daq.FreqMeter

	switch cfg.Backend {
	case config.BackendAcromag:
		board, err := dacboard.Open(cfg.DeviceIndex, cfg.TablePath)
		if err != nil {
			return nil, meters, err
		}
		for ch := 0; ch < numChannels; ch++ {
			meters[ch] = freqmeter.NewSerial(cfg.SerialPort, cfg.SerialBaud, 3*time.Second)
		}
		return board, meters, nil
	default:
		var sims [numChannels]*freqmeter.Sim
		for ch := range sims {
			sims[ch] = &freqmeter.Sim{
				F0:             110,
				CenterCode:     1000,
				CodesPerOctave: 100,
				TicksToHz:      cfg.TickHz,
			}
			meters[ch] = sims[ch]
		}
		d := newSimDAC(sims)
		return d, meters, nil
	}
}

// calibrationDumper is an optional capability: dacboard.CVDAC implements
// it, the in-memory sim DAC does not.
type calibrationDumper interface {
	CalibrationCSV(channel int, source autotune.CalibrationSource) string
}

// arm/run/reset/status handlers share one Host; statusResponse mirrors the
// fields a UI's Draw() would render per the spec's own §6 stub.
type statusResponse struct {
	State     string  `json:"state"`
	Octave    int     `json:"octave"`
	Frequency float64 `json:"frequency"`
	Target    float64 `json:"target"`
	Completed bool    `json:"completed"`
	Error     string  `json:"error,omitempty"`
}

func hostErrorStatus(err error) int {
	switch err {
	case autotune.ErrChannelBusy:
		return http.StatusLocked
	case autotune.ErrNoSuchChannel:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func channelIndex(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "n"))
}

// closer is the optional capability dacboard.CVDAC and freqmeter.Serial
// implement and the sim backend doesn't; closeHardware releases whichever
// of the DAC and per-channel meters support it, merging every error into
// one so a failure closing one channel's meter doesn't hide another's.
type closer interface {
	Close() error
}

func closeHardware(dac daq.CalibratedDAC, meters [numChannels]daq.FreqMeter) error {
	var errs []error
	if c, ok := dac.(closer); ok {
		errs = append(errs, c.Close())
	}
	for ch := 0; ch < numChannels; ch++ {
		if c, ok := meters[ch].(closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return util.MergeErrors(errs)
}

func buildControlRoutes(h *autotune.Host, lock *locker.Locker) server.RouteTable {
	rt := server.RouteTable{}
	rt[server.MethodPath{Method: http.MethodPost, Path: "/{n}/arm"}] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelIndex(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.Arm(ch); err != nil {
			http.Error(w, err.Error(), hostErrorStatus(err))
			return
		}
		lock.Lock()
		w.WriteHeader(http.StatusOK)
	}
	rt[server.MethodPath{Method: http.MethodPost, Path: "/{n}/run"}] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelIndex(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.Run(ch); err != nil {
			http.Error(w, err.Error(), hostErrorStatus(err))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
	rt[server.MethodPath{Method: http.MethodPost, Path: "/{n}/reset"}] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelIndex(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := h.Abort(ch); err != nil {
			http.Error(w, err.Error(), hostErrorStatus(err))
			return
		}
		for i := 0; i < numChannels; i++ {
			if st, err := h.Status(i); err == nil && st.State != autotune.StateIdle {
				w.WriteHeader(http.StatusOK)
				return
			}
		}
		lock.Unlock()
		w.WriteHeader(http.StatusOK)
	}
	rt[server.MethodPath{Method: http.MethodGet, Path: "/{n}/status"}] = func(w http.ResponseWriter, r *http.Request) {
		ch, err := channelIndex(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		st, err := h.Status(ch)
		if err != nil {
			http.Error(w, err.Error(), hostErrorStatus(err))
			return
		}
		resp := statusResponse{
			State:     st.State.String(),
			Octave:    st.Octave,
			Frequency: st.Frequency,
			Target:    st.Target,
			Completed: st.Completed,
		}
		if st.Error != nil {
			resp.Error = st.Error.Error()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
	return rt
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error loading config: %v", err)
	}

	dac, meters, err := buildHardware(cfg)
	if err != nil {
		log.Fatalf("error bringing up DAC hardware: %v", err)
	}

	channels := make([]*autotune.Channel, numChannels)
	for ch := 0; ch < numChannels; ch++ {
		scale := autotune.V1
		if ch < len(cfg.ChannelScale) {
			scale = cfg.ChannelScale[ch].Autotune()
		}
		channels[ch] = autotune.NewChannel(ch, dac, meters[ch], scale, cfg.TickHz)
	}
	host := autotune.NewHost(channels...)

	lock := locker.New()
	lock.DoNotProtect = []string{"/ch/endpoints"}
	for ch := 0; ch < numChannels; ch++ {
		// run and reset stay reachable so the armed channel can be driven
		// and aborted; the Host itself rejects them for any other channel.
		for _, route := range []string{"status", "run", "reset"} {
			lock.DoNotProtect = append(lock.DoNotProtect, "/ch/"+strconv.Itoa(ch)+"/"+route)
		}
	}

	root := chi.NewRouter()
	root.Use(middleware.Logger)

	ctrl := chi.NewRouter()
	ctrl.Use(lock.Check)
	buildControlRoutes(host, lock).Bind(ctrl)

	// Hardware-backed DACs can dump their calibration rows as CSV; sim
	// backends can't, so this route is wired only when the concrete DAC
	// supports it, the same optional-capability type assertion
	// generichttp/daq's NewHTTPDAC uses to wire Extended/Waveform routes.
	if dumper, ok := dac.(calibrationDumper); ok {
		ctrl.Get("/{n}/calibration/{source}/csv", func(w http.ResponseWriter, r *http.Request) {
			ch, err := channelIndex(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			source := autotune.SourceDefault
			if chi.URLParam(r, "source") == "auto" {
				source = autotune.SourceAuto
			}
			w.Header().Set("Content-Type", "text/csv")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(dumper.CalibrationCSV(ch, source)))
		})
	}
	root.Mount("/ch", ctrl)

	// The control routes above are the only ones an operator needs for
	// normal use; daq.HTTPCalibratedDAC and daq.HTTPFreqMeter expose the
	// same DAC/meter pair's raw operations for bench diagnostics, mounted
	// at distinct stems the same way server.go's Mainframe mounts several
	// unrelated devices' route tables under one mux.
	var diag server.Mainframe
	diag.Add("/dac", daq.HTTPCalibratedDAC(dac))
	for ch := 0; ch < numChannels; ch++ {
		diag.Add(fmt.Sprintf("/meter/%d", ch), daq.HTTPFreqMeter(meters[ch]))
	}
	diag.Bind(root)

	// Tick drives the one active channel's calibration state machine at a
	// fixed rate, standing in for the hardware ISR the spec assumes; this
	// cooperative goroutine is the userspace analog the ambient-stack
	// section calls for.
	tickInterval := time.Second / time.Duration(cfg.TickHz)
	if tickInterval <= 0 {
		tickInterval = time.Microsecond
	}
	ticker := time.NewTicker(tickInterval)
	go func() {
		for range ticker.C {
			host.Tick()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		ticker.Stop()
		if err := closeHardware(dac, meters); err != nil {
			log.Printf("error closing hardware: %v", err)
		}
		os.Exit(0)
	}()

	log.Printf("cvcalsrv listening on %s (%d channels, backend=%s)", cfg.Addr, numChannels, cfg.Backend)
	log.Fatal(http.ListenAndServe(cfg.Addr, root))
}
