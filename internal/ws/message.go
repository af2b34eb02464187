package ws

import (
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

// Snapshot is the envelope pushed to every connected client once per second
// (spec §6 "WS /ws"): the latest per-rack tiles, the discovery state, and
// tails of the actions/anomalies ledgers, plus the same status block served
// by GET /status.
type Snapshot struct {
	TS        time.Time              `json:"ts"`
	Tiles     map[string]models.Tile `json:"tiles"`
	Discover  models.DiscoveryState  `json:"discover"`
	Actions   []models.Action        `json:"actions"`
	Anomalies []models.AnomalyRecord `json:"anomalies"`
	Status    models.Status          `json:"status"`
}

// SnapshotFunc produces the current Snapshot on demand; supplied by the
// engine so this package has no dependency on engine internals beyond the
// models it already shares.
type SnapshotFunc func() Snapshot
