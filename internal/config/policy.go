package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Limit is an absolute [min,max] envelope with an optional per-minute rate
// limit, as configured for each actuator setpoint in policy.yaml.
type Limit struct {
	Min            float64 `yaml:"min"`
	Max            float64 `yaml:"max"`
	MaxDeltaPerMin float64 `yaml:"max_delta_per_min"`
}

// Range is a plain [min,max] band with no rate limit (humidity alarm band).
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Weights are the proposal-scoring weights read from policy.yaml. The
// reference MPC (spec §4.4) does not use them, and they are not copied into
// Action.explain.
type Weights struct {
	ThermalRisk float64 `yaml:"thermal_risk"`
	Energy      float64 `yaml:"energy"`
	Wear        float64 `yaml:"wear"`
}

// Limits bundles the two actuator envelopes named in spec §4.4.
type Limits struct {
	TempC   Limit `yaml:"temp_c"`
	FanRPM  Limit `yaml:"fan_rpm"`
}

// Policy is the parsed form of policy.yaml (spec §6 "Config").
type Policy struct {
	Site        string  `yaml:"site"`
	Limits      Limits  `yaml:"limits"`
	Weights     Weights `yaml:"weights"`
	PowerAlarm  float64 `yaml:"power_alarm_kw"`
	Humidity    Range   `yaml:"humidity"`
}

// DefaultPolicy mirrors the reference values from spec §4.4 so the engine
// has sane behavior even with an empty or partial policy.yaml.
func DefaultPolicy() Policy {
	return Policy{
		Limits: Limits{
			TempC:  Limit{Min: 16, Max: 27, MaxDeltaPerMin: 1.0},
			FanRPM: Limit{Min: 800, Max: 2200, MaxDeltaPerMin: 200},
		},
		Weights:    Weights{ThermalRisk: 1.0, Energy: 0.35, Wear: 0.15},
		PowerAlarm: 5.5,
		Humidity:   Range{Min: 20, Max: 60},
	}
}

// LoadPolicy reads policy.yaml at path, overlaying onto DefaultPolicy so
// missing keys fall back to the reference values rather than zeroing out.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read policy %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse policy %q: %w", path, err)
	}
	return p, nil
}
