package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

// InsertForecast persists one C2 output.
func (l *Ledger) InsertForecast(ctx context.Context, f models.Forecast) error {
	pred, err := json.Marshal(f.TempPred)
	if err != nil {
		return fmt.Errorf("marshal temp_pred: %w", err)
	}
	lo, err := json.Marshal(f.TempLo)
	if err != nil {
		return fmt.Errorf("marshal temp_lo: %w", err)
	}
	hi, err := json.Marshal(f.TempHi)
	if err != nil {
		return fmt.Errorf("marshal temp_hi: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO forecasts (ts, rack, horizon_s, temp_pred, temp_lo, temp_hi, power_pred)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.TS, f.Rack, f.HorizonS, string(pred), string(lo), string(hi), f.PowerPred,
	)
	if err != nil {
		return fmt.Errorf("insert forecast: %w", err)
	}
	return nil
}

// LatestForecast returns the most recent forecast for rack, if any.
func (l *Ledger) LatestForecast(ctx context.Context, rack string) (*models.Forecast, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT ts, rack, horizon_s, temp_pred, temp_lo, temp_hi, power_pred
		FROM forecasts WHERE rack = ? ORDER BY ts DESC LIMIT 1`,
		rack,
	)

	var f models.Forecast
	var ts time.Time
	var pred, lo, hi string
	var power sql.NullFloat64
	if err := row.Scan(&ts, &f.Rack, &f.HorizonS, &pred, &lo, &hi, &power); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan forecast: %w", err)
	}
	f.TS = ts
	if err := json.Unmarshal([]byte(pred), &f.TempPred); err != nil {
		return nil, fmt.Errorf("unmarshal temp_pred: %w", err)
	}
	if err := json.Unmarshal([]byte(lo), &f.TempLo); err != nil {
		return nil, fmt.Errorf("unmarshal temp_lo: %w", err)
	}
	if err := json.Unmarshal([]byte(hi), &f.TempHi); err != nil {
		return nil, fmt.Errorf("unmarshal temp_hi: %w", err)
	}
	if power.Valid {
		f.PowerPred = &power.Float64
	}
	return &f, nil
}
