package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

// InsertAudit records an append-only audit entry for an operator- or
// system-initiated transition (spec §5).
func (l *Ledger) InsertAudit(ctx context.Context, a models.AuditEntry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audits (ts, actor, action, payload)
		VALUES (?, ?, ?, ?)`,
		a.TS, a.Actor, a.Action, nullableJSON(a.Payload),
	)
	if err != nil {
		return fmt.Errorf("insert audit: %w", err)
	}
	return nil
}

// ListAudits returns up to limit audit entries, most recent first.
func (l *Ledger) ListAudits(ctx context.Context, limit int) ([]models.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT ts, actor, action, payload
		FROM audits ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var out []models.AuditEntry
	for rows.Next() {
		var a models.AuditEntry
		var ts time.Time
		var payload *string
		if err := rows.Scan(&ts, &a.Actor, &a.Action, &payload); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		a.TS = ts
		if payload != nil {
			a.Payload = json.RawMessage(*payload)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
