package models

import "time"

// Status is the GET /status payload and the status block of the WS push
// (spec §6).
type Status struct {
	Mode         string    `json:"mode"`
	AutoEnabled  bool      `json:"auto_enabled"`
	Site         string    `json:"site"`
	IngestCount  int64     `json:"ingest_count"`
	LastIngestTS time.Time `json:"last_ingest_ts"`
	TrackedRacks int       `json:"tracked_racks"`
	UptimeS      float64   `json:"uptime_s"`
}
