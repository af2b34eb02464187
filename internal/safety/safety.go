package safety

import (
	"fmt"

	"github.com/coolgrid/sentinel/internal/config"
)

// summary is the fixed safety_summary string attached to every coerced
// Action (spec §8 scenario 1's worked example: "limits, rate limits
// applied"), unconditionally, not just when a rule actually fired --
// matching the reference's out["safety_summary"] assignment.
const summary = "limits, rate limits applied"

// Result is what Safety.enforce returns: the coerced setpoints plus the
// fixed human-readable summary attached to the eventual Action's
// safety_summary field.
type Result struct {
	Setpoints Setpoints
	Summary   string
}

// Safety applies the absolute and per-minute rate envelopes to a proposed
// Setpoints pair (spec §4.4 "Safety.enforce"). It is the last stage before
// an Action is emitted and is idempotent: enforcing twice in a row with the
// same current/proposed pair yields the same result.
//
// Safety itself never rejects a proposal -- it coerces into the envelope.
// A malformed policy (zero-width or inverted limits) is the caller's
// responsibility to detect via Validate before calling Enforce; per spec §7
// that case is a reject-and-log, not a coercion.
type Safety struct {
	limits config.Limits
}

// NewSafety creates a Safety bound to the given actuator limits.
func NewSafety(limits config.Limits) *Safety {
	return &Safety{limits: limits}
}

// Validate reports whether the bound limits form a usable envelope
// (min < max for both setpoints). Callers should refuse to emit an Action
// rather than call Enforce when this returns an error (spec §7).
func (s *Safety) Validate() error {
	if s.limits.TempC.Min >= s.limits.TempC.Max {
		return fmt.Errorf("safety: invalid temp_c limits [%v,%v]", s.limits.TempC.Min, s.limits.TempC.Max)
	}
	if s.limits.FanRPM.Min >= s.limits.FanRPM.Max {
		return fmt.Errorf("safety: invalid fan_rpm limits [%v,%v]", s.limits.FanRPM.Min, s.limits.FanRPM.Max)
	}
	return nil
}

// Enforce clamps proposed to the absolute envelope, then to the per-minute
// rate limit measured against current, and rounds to the reference
// precision (temp to 1 decimal, fan to an integer).
func (s *Safety) Enforce(current, proposed Setpoints) Result {
	temp := clampFloat(proposed.SupplyTempC, s.limits.TempC.Min, s.limits.TempC.Max)
	fan := clampInt(proposed.FanRPM, int(s.limits.FanRPM.Min), int(s.limits.FanRPM.Max))

	if d := temp - current.SupplyTempC; s.limits.TempC.MaxDeltaPerMin > 0 && abs(d) > s.limits.TempC.MaxDeltaPerMin {
		if d > 0 {
			temp = current.SupplyTempC + s.limits.TempC.MaxDeltaPerMin
		} else {
			temp = current.SupplyTempC - s.limits.TempC.MaxDeltaPerMin
		}
	}

	if d := fan - current.FanRPM; s.limits.FanRPM.MaxDeltaPerMin > 0 && abs(float64(d)) > s.limits.FanRPM.MaxDeltaPerMin {
		step := int(s.limits.FanRPM.MaxDeltaPerMin)
		if d > 0 {
			fan = current.FanRPM + step
		} else {
			fan = current.FanRPM - step
		}
	}

	// The rate limit is measured against current, which may itself sit
	// outside the absolute envelope (a stale or zero-value reading); the
	// absolute envelope always wins.
	temp = clampFloat(temp, s.limits.TempC.Min, s.limits.TempC.Max)
	fan = clampInt(fan, int(s.limits.FanRPM.Min), int(s.limits.FanRPM.Max))

	temp = round1(temp)

	return Result{
		Setpoints: Setpoints{SupplyTempC: temp, FanRPM: fan},
		Summary:   summary,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
