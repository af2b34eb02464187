package engine

import "github.com/coolgrid/sentinel/internal/config"

// evalCtx bundles the inputs a trigger predicate needs (spec §4.5 table).
type evalCtx struct {
	policy    config.Policy
	tempC     (func() (float64, bool))
	powerKW   (func() (float64, bool))
	humidity  (func() (float64, bool))
	window    []float64 // dense temp_c window, length N
	preds     []float64 // forecast point predictions, length H
	alarm     bool
}

// trigger is one named predicate in priority order (spec §4.5).
type trigger struct {
	name      string
	condition func(evalCtx) bool
}

// triggers is the ordered, fixed trigger table. Priority is positional:
// the first matching entry is the reason recorded on the Action.
var triggers = []trigger{
	{
		name: "temperature_limit",
		condition: func(e evalCtx) bool {
			v, ok := e.tempC()
			return ok && v >= e.policy.Limits.TempC.Max
		},
	},
	{
		name: "temperature_trend",
		condition: func(e evalCtx) bool {
			n := len(e.window)
			if n < 6 {
				return false
			}
			return e.window[n-1]-e.window[n-6] >= 0.8
		},
	},
	{
		name: "power_spike",
		condition: func(e evalCtx) bool {
			v, ok := e.powerKW()
			return ok && v >= e.policy.PowerAlarm
		},
	},
	{
		name: "humidity_out_of_range",
		condition: func(e evalCtx) bool {
			v, ok := e.humidity()
			if !ok {
				return false
			}
			return v < e.policy.Humidity.Min || v > e.policy.Humidity.Max
		},
	},
	{
		name: "forecast_risk_high",
		condition: func(e evalCtx) bool {
			if len(e.preds) == 0 {
				return false
			}
			idx := 5
			if idx > len(e.preds)-1 {
				idx = len(e.preds) - 1
			}
			return e.preds[idx] >= e.policy.Limits.TempC.Max
		},
	},
	{
		name: "anomaly",
		condition: func(e evalCtx) bool {
			return e.alarm
		},
	},
}

// evaluateTriggers runs every trigger (so the full list can be recorded)
// and returns the names that fired, in priority order. The caller picks
// fired[0] as the Action's reason.
func evaluateTriggers(e evalCtx) []string {
	var fired []string
	for _, t := range triggers {
		if t.condition(e) {
			fired = append(fired, t.name)
		}
	}
	return fired
}
