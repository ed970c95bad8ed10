// Package config loads the TOML configuration for a jnetemu process: the
// emulator's bound address, its two peers, and the impairment
// parameters applied to traffic relayed between them.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/mucaho/jnetemu/impair"
	"github.com/mucaho/jnetemu/netem"
)

// Impairment mirrors impair.Params in a form the TOML decoder can
// populate directly.
type Impairment struct {
	Loss        float64 `toml:"loss"`
	Duplication float64 `toml:"duplication"`
	DelayMs     int64   `toml:"delay_ms"`
	JitterMs    int64   `toml:"jitter_ms"`
}

// Instance describes one [[instance]] table in the config file.
type Instance struct {
	Name          string     `toml:"name"`
	EmulatorAddr  string     `toml:"emulator_addr"`
	PeerAAddr     string     `toml:"peer_a_addr"`
	PeerBAddr     string     `toml:"peer_b_addr"`
	MaxPacketSize int        `toml:"max_packet_size"`
	Impairment    Impairment `toml:"impairment"`
	RandomSeed    *uint64    `toml:"random_seed"`
}

// File is the root document shape.
type File struct {
	LogLevel  string     `toml:"log_level"`
	Instances []Instance `toml:"instance"`
}

// Load decodes the TOML configuration at path.
func Load(path string) (*File, error) {
	var f File
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if len(f.Instances) == 0 {
		return nil, fmt.Errorf("config: %s declares no [[instance]] tables", path)
	}
	for i := range f.Instances {
		if f.Instances[i].EmulatorAddr == "" {
			return nil, fmt.Errorf("config: instance %d missing emulator_addr", i)
		}
	}
	return &f, nil
}

// BuildInstance resolves one config Instance into a ready-to-Start
// netem.Instance paired with its impair.Params, so callers can still
// tune Loss/Duplication/Delay/Jitter live after Start.
func BuildInstance(inst Instance, logger netem.Logger) (*netem.Instance, *impair.Params, error) {
	emulator, err := netem.ResolveEndpoint(inst.EmulatorAddr)
	if err != nil {
		return nil, nil, err
	}
	peerA, err := netem.ResolveEndpoint(inst.PeerAAddr)
	if err != nil {
		return nil, nil, err
	}
	peerB, err := netem.ResolveEndpoint(inst.PeerBAddr)
	if err != nil {
		return nil, nil, err
	}

	params := impair.NewParams()
	if inst.Impairment.Loss != 0 {
		params.SetLoss(inst.Impairment.Loss)
	}
	if inst.Impairment.Duplication != 0 {
		params.SetDuplication(inst.Impairment.Duplication)
	}
	if inst.Impairment.DelayMs != 0 {
		params.SetDelayMs(inst.Impairment.DelayMs)
	}
	if inst.Impairment.JitterMs != 0 {
		params.SetJitterMs(inst.Impairment.JitterMs)
	}

	var policy netem.Policy
	if inst.RandomSeed != nil {
		policy = impair.NewSeeded(params, *inst.RandomSeed, *inst.RandomSeed>>1|1)
	} else {
		policy = impair.New(params)
	}

	ni, err := netem.New(netem.Config{
		Emulator:      emulator,
		PeerA:         peerA,
		PeerB:         peerB,
		MaxPacketSize: inst.MaxPacketSize,
		Logger:        logger,
	}, policy)
	if err != nil {
		return nil, nil, err
	}
	return ni, params, nil
}
