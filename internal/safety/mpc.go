// Package safety implements C4: the MPC proposal step and the safety
// envelope that clamps it to absolute and per-minute rate limits
// (spec §4.4). Safety never rejects a proposal on its own -- it coerces
// into the envelope; only a malformed policy (§7 "Policy errors") causes
// the caller to refuse emitting an Action at all.
package safety

import "github.com/coolgrid/sentinel/internal/config"

// Target is the reference supply-air setpoint the MPC steers toward.
const Target = 23.0

// Setpoints is a commanded actuator pair, mirroring pkg/models.Setpoints
// without importing it, keeping this package leaf-level and dependency-free
// beyond config.Limits.
type Setpoints struct {
	SupplyTempC float64
	FanRPM      int
}

// MPC picks a lookahead forecast sample and proposes a setpoint delta
// against the fixed target temperature.
type MPC struct {
	limits config.Limits
}

// NewMPC creates an MPC bound to the given actuator limits.
func NewMPC(limits config.Limits) *MPC {
	return &MPC{limits: limits}
}

// Propose computes a new Setpoints pair from a forecast and the current
// actuator state (spec §4.4 "MPC.propose"). The lookahead index is
// min(5, len(forecast)-1); an empty forecast returns current unchanged.
func (m *MPC) Propose(forecast []float64, current Setpoints) Setpoints {
	if len(forecast) == 0 {
		return current
	}
	idx := 5
	if idx > len(forecast)-1 {
		idx = len(forecast) - 1
	}
	f := forecast[idx]
	err := f - Target

	deltaFan := -100.0
	deltaTemp := 0.2
	if err > 0 {
		deltaFan = 150
		deltaTemp = -0.3
	}

	temp := current.SupplyTempC + deltaTemp
	fan := current.FanRPM + int(deltaFan)

	temp = clampFloat(temp, m.limits.TempC.Min, m.limits.TempC.Max)
	fan = clampInt(fan, int(m.limits.FanRPM.Min), int(m.limits.FanRPM.Max))

	return Setpoints{
		SupplyTempC: round1(temp),
		FanRPM:      fan,
	}
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func round1(v float64) float64 {
	return float64(int(v*10+sign(v)*0.5)) / 10
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
