package models

import (
	"encoding/json"
	"time"
)

// ActionStatus is the lifecycle state of an Action. Transitions form the
// DAG documented in spec invariant I3: queued->sent, queued->pending_manual
// ->sent, sent->applied|rejected. Any other transition is rejected by the
// ledger.
type ActionStatus string

const (
	ActionQueued        ActionStatus = "queued"
	ActionPendingManual ActionStatus = "pending_manual"
	ActionSent          ActionStatus = "sent"
	ActionApplied       ActionStatus = "applied"
	ActionRejected      ActionStatus = "rejected"
)

// ValidActionTransition reports whether moving an Action from `from` to
// `to` is one of the edges in the status DAG.
func ValidActionTransition(from, to ActionStatus) bool {
	switch from {
	case ActionQueued:
		return to == ActionSent || to == ActionPendingManual
	case ActionPendingManual:
		return to == ActionSent
	case ActionSent:
		return to == ActionApplied || to == ActionRejected
	default:
		return false
	}
}

// Setpoints is a commanded pair of actuator values.
type Setpoints struct {
	SupplyTempC float64 `json:"supply_temp_c"`
	FanRPM      int     `json:"fan_rpm"`
}

// Explain carries the human-auditable reasoning behind an Action.
type Explain struct {
	Rack         string   `json:"rack"`
	ForecastTemp float64  `json:"forecast_temp"`
	RiskScore    float64  `json:"risk_score"`
	Triggers     []string `json:"triggers"`
	Message      string   `json:"message"`
}

// Action is a proposed or sent setpoint command, the unit of record in the
// action ledger. ID is assigned on insert and is the stable handle used by
// receipts, approvals, and dedup.
type Action struct {
	ID             int64           `json:"id"`
	TS             time.Time       `json:"ts"`
	DeviceID       string          `json:"device_id"`
	Cmd            string          `json:"cmd"`
	Set            Setpoints       `json:"set"`
	Mode           string          `json:"mode"`
	Status         ActionStatus    `json:"status"`
	Reason         string          `json:"reason"`
	ModelVersion   string          `json:"model_version"`
	SafetySummary  string          `json:"safety_summary"`
	Constraints    json.RawMessage `json:"constraints,omitempty"`
	Explain        Explain         `json:"explain"`
}

// Receipt is a field-side acknowledgement correlating an Action with its
// on-device outcome. Joined to an Action by an exact (device_id, ts) match;
// a receipt with no matching Action is still persisted but advances
// nothing.
type Receipt struct {
	TS        time.Time `json:"ts"`
	DeviceID  string    `json:"device_id"`
	Status    string    `json:"status"`
	Applied   bool      `json:"applied"`
	LatencyMS int       `json:"latency_ms"`
	Notes     string    `json:"notes,omitempty"`
}

// AuditEntry is an append-only record of an operator- or system-initiated
// transition.
type AuditEntry struct {
	TS      time.Time       `json:"ts"`
	Actor   string          `json:"actor"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
