package main

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/deskwire/internal/qos"
	"github.com/danmuck/deskwire/internal/tunnel"
)

// tuningFile is the [tunnel] and [qos] part of the client config. Keys left
// out keep their package defaults.
type tuningFile struct {
	Tunnel struct {
		RequestTimeout   string `toml:"request_timeout"`
		DataAckThreshold uint32 `toml:"data_ack_threshold"`
		DecodeTimeout    string `toml:"decode_timeout"`
		DecodeWorkers    int    `toml:"decode_workers"`
	} `toml:"tunnel"`
	QoS struct {
		Adaptive  bool   `toml:"adaptive"`
		HighWater int    `toml:"high_water"`
		LowWater  int    `toml:"low_water"`
		Sustain   int    `toml:"sustain"`
		Recover   int    `toml:"recover"`
		MaxIndex  uint32 `toml:"max_index"`
		Initial   uint32 `toml:"initial"`
	} `toml:"qos"`
}

type tuning struct {
	Tunnel        tunnel.Config
	DecodeWorkers int
	Adaptive      bool
	QoS           qos.AdaptiveConfig
}

func defaultTuning() tuning {
	return tuning{
		Tunnel:        tunnel.DefaultConfig(),
		DecodeWorkers: runtime.NumCPU(),
		QoS:           qos.DefaultAdaptiveConfig(),
	}
}

func loadTuning(path string) (tuning, error) {
	cfg := defaultTuning()

	var raw tuningFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return tuning{}, fmt.Errorf("load deskctl tuning: %w", err)
	}

	if meta.IsDefined("tunnel", "request_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Tunnel.RequestTimeout))
		if err != nil {
			return tuning{}, fmt.Errorf("parse tunnel.request_timeout: %w", err)
		}
		cfg.Tunnel.RequestTimeout = d
	}

	if meta.IsDefined("tunnel", "data_ack_threshold") {
		cfg.Tunnel.DataAckThreshold = raw.Tunnel.DataAckThreshold
	}

	if meta.IsDefined("tunnel", "decode_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Tunnel.DecodeTimeout))
		if err != nil {
			return tuning{}, fmt.Errorf("parse tunnel.decode_timeout: %w", err)
		}
		cfg.Tunnel.DecodeTimeout = d
	}

	if meta.IsDefined("tunnel", "decode_workers") && raw.Tunnel.DecodeWorkers > 0 {
		cfg.DecodeWorkers = raw.Tunnel.DecodeWorkers
	}

	if meta.IsDefined("qos", "adaptive") {
		cfg.Adaptive = raw.QoS.Adaptive
	}
	if meta.IsDefined("qos", "high_water") {
		cfg.QoS.HighWater = raw.QoS.HighWater
	}
	if meta.IsDefined("qos", "low_water") {
		cfg.QoS.LowWater = raw.QoS.LowWater
	}
	if meta.IsDefined("qos", "sustain") {
		cfg.QoS.Sustain = raw.QoS.Sustain
	}
	if meta.IsDefined("qos", "recover") {
		cfg.QoS.Recover = raw.QoS.Recover
	}
	if meta.IsDefined("qos", "max_index") {
		cfg.QoS.MaxIndex = raw.QoS.MaxIndex
	}
	if meta.IsDefined("qos", "initial") {
		cfg.QoS.Initial = raw.QoS.Initial
	}

	cfg.Tunnel = cfg.Tunnel.WithDefaults()
	cfg.QoS = cfg.QoS.WithDefaults()
	return cfg, nil
}
