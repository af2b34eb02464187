package models

import "time"

// Forecast is the C2 output persisted once per telemetry event per rack.
type Forecast struct {
	TS        time.Time `json:"ts"`
	HorizonS  int       `json:"horizon_s"`
	Rack      string    `json:"rack"`
	TempPred  []float64 `json:"temp_pred"`
	TempLo    []float64 `json:"temp_lo"`
	TempHi    []float64 `json:"temp_hi"`
	PowerPred *float64  `json:"power_pred,omitempty"`
}

// AnomalyRecord is the C3 output persisted once per telemetry event per rack.
type AnomalyRecord struct {
	TS        time.Time `json:"ts"`
	Rack      string    `json:"rack"`
	Score     float64   `json:"score"`
	Threshold float64   `json:"threshold"`
	IsAlarm   bool      `json:"is_alarm"`
}
