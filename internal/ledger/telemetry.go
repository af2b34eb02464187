package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

// InsertTelemetry appends a raw telemetry point.
func (l *Ledger) InsertTelemetry(ctx context.Context, p models.TelemetryPoint) error {
	metrics, err := json.Marshal(p.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO telemetry (ts, site, rack, device_id, metrics)
		VALUES (?, ?, ?, ?, ?)`,
		p.TS, p.Site, p.Rack, p.DeviceID, string(metrics),
	)
	if err != nil {
		return fmt.Errorf("insert telemetry: %w", err)
	}
	return nil
}

// TelemetryHistory returns up to limit telemetry points for rack, most
// recent first, as consumed by GET /telemetry/history (spec §6).
func (l *Ledger) TelemetryHistory(ctx context.Context, rack string, limit int) ([]models.TelemetryPoint, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT ts, site, rack, device_id, metrics
		FROM telemetry WHERE rack = ? ORDER BY ts DESC LIMIT ?`,
		rack, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query telemetry history: %w", err)
	}
	defer rows.Close()

	var points []models.TelemetryPoint
	for rows.Next() {
		var p models.TelemetryPoint
		var metrics string
		var ts time.Time
		if err := rows.Scan(&ts, &p.Site, &p.Rack, &p.DeviceID, &metrics); err != nil {
			return nil, fmt.Errorf("scan telemetry row: %w", err)
		}
		p.TS = ts
		if err := json.Unmarshal([]byte(metrics), &p.Metrics); err != nil {
			return nil, fmt.Errorf("unmarshal metrics: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
