package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

// InsertAnomaly persists one C3 output.
func (l *Ledger) InsertAnomaly(ctx context.Context, a models.AnomalyRecord) error {
	alarm := 0
	if a.IsAlarm {
		alarm = 1
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO anomalies (ts, rack, score, threshold, is_alarm)
		VALUES (?, ?, ?, ?, ?)`,
		a.TS, a.Rack, a.Score, a.Threshold, alarm,
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

// ListAnomalies returns up to limit anomaly records, most recent first, as
// consumed by GET /anomalies?limit=N (spec §6).
func (l *Ledger) ListAnomalies(ctx context.Context, limit int) ([]models.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT ts, rack, score, threshold, is_alarm
		FROM anomalies ORDER BY ts DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	defer rows.Close()

	var out []models.AnomalyRecord
	for rows.Next() {
		var a models.AnomalyRecord
		var ts time.Time
		var alarm int
		if err := rows.Scan(&ts, &a.Rack, &a.Score, &a.Threshold, &alarm); err != nil {
			return nil, fmt.Errorf("scan anomaly row: %w", err)
		}
		a.TS = ts
		a.IsAlarm = alarm != 0
		out = append(out, a)
	}
	return out, rows.Err()
}
