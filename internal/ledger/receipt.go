package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

// InsertReceipt persists a field-side acknowledgement and correlates it to
// the sent Action for the same device whose ts exactly matches the
// receipt's timestamp (spec §4.5: "no state transition unless an exact
// (device_id, ts) match exists"). The receipt is always persisted, even
// with no match; Returns the correlated action ID, or 0 if none was found.
func (l *Ledger) InsertReceipt(ctx context.Context, r models.Receipt) (int64, error) {
	var actionID sql.NullInt64
	err := l.db.QueryRowContext(ctx, `
		SELECT id FROM actions
		WHERE device_id = ? AND ts = ? AND status = 'sent'
		LIMIT 1`,
		r.DeviceID, r.TS,
	).Scan(&actionID)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("correlate receipt: %w", err)
	}

	applied := 0
	if r.Applied {
		applied = 1
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO receipts (action_id, ts, device_id, status, applied, latency_ms, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		actionID, r.TS, r.DeviceID, r.Status, applied, r.LatencyMS, r.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("insert receipt: %w", err)
	}

	if actionID.Valid {
		to := models.ActionApplied
		if !r.Applied {
			to = models.ActionRejected
		}
		if err := l.UpdateActionStatus(ctx, actionID.Int64, to); err != nil {
			return actionID.Int64, fmt.Errorf("advance action %d on receipt: %w", actionID.Int64, err)
		}
	}

	return actionID.Int64, nil
}

// ReceiptsForAction returns all receipts correlated to the given action ID,
// oldest first.
func (l *Ledger) ReceiptsForAction(ctx context.Context, actionID int64) ([]models.Receipt, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT ts, device_id, status, applied, latency_ms, notes
		FROM receipts WHERE action_id = ? ORDER BY ts`, actionID)
	if err != nil {
		return nil, fmt.Errorf("receipts for action: %w", err)
	}
	defer rows.Close()

	var out []models.Receipt
	for rows.Next() {
		var rcpt models.Receipt
		var ts time.Time
		var applied int
		if err := rows.Scan(&ts, &rcpt.DeviceID, &rcpt.Status, &applied, &rcpt.LatencyMS, &rcpt.Notes); err != nil {
			return nil, fmt.Errorf("scan receipt row: %w", err)
		}
		rcpt.TS = ts
		rcpt.Applied = applied != 0
		out = append(out, rcpt)
	}
	return out, rows.Err()
}
