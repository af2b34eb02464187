package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

// ErrInvalidTransition is returned by UpdateActionStatus when the requested
// move is not an edge in the status DAG (spec invariant I3).
var ErrInvalidTransition = fmt.Errorf("ledger: invalid action status transition")

// InsertAction inserts a new Action and assigns its ID. Actions are always
// inserted in the "queued" status; callers that need pending_manual gating
// call UpdateActionStatus immediately after.
func (l *Ledger) InsertAction(ctx context.Context, a *models.Action) error {
	explain, err := json.Marshal(a.Explain)
	if err != nil {
		return fmt.Errorf("marshal explain: %w", err)
	}
	a.Status = models.ActionQueued

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO actions (
			ts, device_id, cmd, supply_temp_c, fan_rpm, mode, status,
			reason, model_version, safety_summary, constraints, explain
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.TS, a.DeviceID, a.Cmd, a.Set.SupplyTempC, a.Set.FanRPM, a.Mode, a.Status,
		a.Reason, a.ModelVersion, a.SafetySummary, nullableJSON(a.Constraints), string(explain),
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("action last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// UpdateActionStatus moves an Action's status, enforcing the status DAG
// (spec invariant I3). Returns ErrInvalidTransition if the move isn't a
// valid edge.
func (l *Ledger) UpdateActionStatus(ctx context.Context, id int64, to models.ActionStatus) error {
	return l.tx(ctx, func(tx *sql.Tx) error {
		var from models.ActionStatus
		if err := tx.QueryRowContext(ctx, "SELECT status FROM actions WHERE id = ?", id).Scan(&from); err != nil {
			if err == sql.ErrNoRows {
				return fmt.Errorf("action %d: not found", id)
			}
			return fmt.Errorf("query action status: %w", err)
		}
		if !models.ValidActionTransition(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		_, err := tx.ExecContext(ctx, "UPDATE actions SET status = ? WHERE id = ?", to, id)
		return err
	})
}

// GetAction fetches a single Action by ID.
func (l *Ledger) GetAction(ctx context.Context, id int64) (*models.Action, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT id, ts, device_id, cmd, supply_temp_c, fan_rpm, mode, status,
			reason, model_version, safety_summary, constraints, explain
		FROM actions WHERE id = ?`, id)
	a, err := scanAction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

// ListActions returns up to limit actions, most recent first, as consumed
// by GET /actions?limit=N (spec §6).
func (l *Ledger) ListActions(ctx context.Context, limit int) ([]models.Action, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, ts, device_id, cmd, supply_temp_c, fan_rpm, mode, status,
			reason, model_version, safety_summary, constraints, explain
		FROM actions ORDER BY ts DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()

	var out []models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAction(row scanner) (*models.Action, error) {
	var a models.Action
	var ts time.Time
	var constraints sql.NullString
	var explain string
	if err := row.Scan(
		&a.ID, &ts, &a.DeviceID, &a.Cmd, &a.Set.SupplyTempC, &a.Set.FanRPM, &a.Mode, &a.Status,
		&a.Reason, &a.ModelVersion, &a.SafetySummary, &constraints, &explain,
	); err != nil {
		return nil, fmt.Errorf("scan action row: %w", err)
	}
	a.TS = ts
	if constraints.Valid {
		a.Constraints = json.RawMessage(constraints.String)
	}
	if err := json.Unmarshal([]byte(explain), &a.Explain); err != nil {
		return nil, fmt.Errorf("unmarshal explain: %w", err)
	}
	return &a, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
