package models

import "time"

// Device is a field device surfaced by discovery or registered manually in
// devices.yaml. Proto/Host/Port identify the device on the network; Map
// points at the register/OID map an external protocol shim uses (opaque to
// the core).
type Device struct {
	ID    string `json:"id" yaml:"id"`
	Rack  string `json:"rack" yaml:"rack"`
	Site  string `json:"site" yaml:"site"`
	Proto string `json:"proto" yaml:"proto"`
	Host  string `json:"host" yaml:"host"`
	Port  int    `json:"port" yaml:"port"`
	Map   string `json:"map,omitempty" yaml:"map,omitempty"`
}

// DiscoveryStatus is the state of the discovery FSM.
type DiscoveryStatus string

const (
	DiscoveryIdle    DiscoveryStatus = "idle"
	DiscoveryRunning DiscoveryStatus = "running"
	DiscoveryDone    DiscoveryStatus = "done"
	DiscoveryError   DiscoveryStatus = "error"
)

// DiscoveryHistoryEntry is one row of the capped scan history.
type DiscoveryHistoryEntry struct {
	TS       time.Time `json:"ts"`
	RawCount int       `json:"raw_count"`
}

// DiscoveryState is the single, per-engine discovery FSM instance
// (spec invariant I4: Deadline is non-nil iff Status==running).
type DiscoveryState struct {
	Status      DiscoveryStatus         `json:"status"`
	Subnet      string                  `json:"subnet"`
	Actor       string                  `json:"actor"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Deadline    *time.Time              `json:"deadline,omitempty"`
	Message     string                  `json:"message,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Results     []Device                `json:"results"`
	History     []DiscoveryHistoryEntry `json:"history"`
}

// MaxDiscoveryHistory is the capped length of DiscoveryState.History.
const MaxDiscoveryHistory = 50

// AppendHistory appends an entry, keeping only the most recent
// MaxDiscoveryHistory entries (tail kept, per spec §4.5).
func (d *DiscoveryState) AppendHistory(e DiscoveryHistoryEntry) {
	d.History = append(d.History, e)
	if len(d.History) > MaxDiscoveryHistory {
		d.History = d.History[len(d.History)-MaxDiscoveryHistory:]
	}
}
