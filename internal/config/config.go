// Package config loads cvcalsrv's configuration the way cmd/andorhttp2
// loads its own: koanf layered defaults-then-file, tolerant of a missing
// config file, struct tags for the yaml parser.
package config

import (
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	"github.com/benchtop-modular/cvcal/internal/autotune"
	"github.com/benchtop-modular/cvcal/internal/util"
)

// minTickHz and maxTickHz bound the configured ISR tick rate: below the
// floor the engine's fixed tick-count thresholds (FreqMeasureTimeout,
// ErrorTimeout) stretch to unusable wall-clock durations, and a
// misconfigured zero or negative value would make cvcalsrv's
// time.Second/TickHz tick interval panic outright.
const (
	minTickHz = 100
	maxTickHz = 1_000_000
)

// FileName is the config file looked for in the working directory.
const FileName = "cvcal.yml"

// Backend selects which daq.CalibratedDAC implementation cmd/cvcalsrv
// wires up.
type Backend string

const (
	BackendSim     Backend = "sim"
	BackendAcromag Backend = "acromag"
)

// Scaling mirrors autotune.Scaling's three conventions as a config-layer
// string, decoupling the wire/file format from the internal enum.
type Scaling string

const (
	ScalingV1   Scaling = "1V"
	ScalingV1_2 Scaling = "1.2V"
	ScalingV2   Scaling = "2V"
)

// Autotune converts a config-layer Scaling string into autotune.Scaling,
// defaulting to V1 for an unrecognized value.
func (s Scaling) Autotune() autotune.Scaling {
	switch s {
	case ScalingV1_2:
		return autotune.V1_2
	case ScalingV2:
		return autotune.V2
	default:
		return autotune.V1
	}
}

// Config is cvcalsrv's full runtime configuration.
type Config struct {
	Addr string `yaml:"Addr"`

	Backend     Backend `yaml:"Backend"`
	DeviceIndex int     `yaml:"DeviceIndex"`
	TablePath   string  `yaml:"TablePath"`

	SerialPort string `yaml:"SerialPort"`
	SerialBaud int     `yaml:"SerialBaud"`

	TickHz       float64    `yaml:"TickHz"`
	ChannelScale [4]Scaling `yaml:"ChannelScale"`
}

// defaults mirrors cmd/andorhttp2/main.go's setupconfig: a compiled-in
// config value handed to koanf as a struct, not a yaml blob, so code and
// config-file reference the same field names.
func defaults() Config {
	return Config{
		Addr:        ":8080",
		Backend:     BackendSim,
		DeviceIndex: 0,
		TablePath:   "cvcal-calibration.bin",
		SerialPort:  "/dev/ttyUSB0",
		SerialBaud:  115200,
		TickHz:      8_000,
		ChannelScale: [4]Scaling{
			ScalingV1, ScalingV1, ScalingV1, ScalingV1,
		},
	}
}

// Load reads FileName from the working directory over compiled-in
// defaults, exactly the layering cmd/andorhttp2/main.go uses. A missing
// file is not an error, matching that function's "no such" tolerance.
func Load() (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(defaults(), "yaml"), nil); err != nil {
		return Config{}, err
	}
	if err := k.Load(file.Provider(FileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") {
			return Config{}, err
		}
	}
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.TickHz = util.Clamp(cfg.TickHz, minTickHz, maxTickHz)
	return cfg, nil
}
