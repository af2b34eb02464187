package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
)

func openTest(t *testing.T) *Ledger {
	t.Helper()
	dir := t.TempDir()
	l, err := Open(context.Background(), filepath.Join(dir, "sentinel.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestInsertAndHistoryTelemetry(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	temp := 24.5

	p := models.TelemetryPoint{
		TS: time.Now().UTC(), Site: "dc1", Rack: "r1",
		Metrics: map[string]*float64{"supply_temp_c": &temp},
	}
	if err := l.InsertTelemetry(ctx, p); err != nil {
		t.Fatalf("InsertTelemetry: %v", err)
	}

	got, err := l.TelemetryHistory(ctx, "r1", 10)
	if err != nil {
		t.Fatalf("TelemetryHistory: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	v, ok := got[0].Metric("supply_temp_c")
	if !ok || v != 24.5 {
		t.Fatalf("metric = %v/%v, want 24.5/true", v, ok)
	}
}

func TestActionStatusTransitions(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	a := &models.Action{TS: time.Now().UTC(), DeviceID: "crac-1", Cmd: "set_point", Mode: "auto"}
	if err := l.InsertAction(ctx, a); err != nil {
		t.Fatalf("InsertAction: %v", err)
	}
	if a.Status != models.ActionQueued {
		t.Fatalf("status = %v, want queued", a.Status)
	}

	if err := l.UpdateActionStatus(ctx, a.ID, models.ActionApplied); err == nil {
		t.Fatalf("expected error for queued->applied")
	}

	if err := l.UpdateActionStatus(ctx, a.ID, models.ActionSent); err != nil {
		t.Fatalf("queued->sent: %v", err)
	}
	if err := l.UpdateActionStatus(ctx, a.ID, models.ActionApplied); err != nil {
		t.Fatalf("sent->applied: %v", err)
	}

	got, err := l.GetAction(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.Status != models.ActionApplied {
		t.Fatalf("status = %v, want applied", got.Status)
	}
}

func TestReceiptCorrelatesExactMatchAction(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	base := time.Now().UTC()

	a := &models.Action{TS: base, DeviceID: "crac-1", Cmd: "set_point", Mode: "auto"}
	if err := l.InsertAction(ctx, a); err != nil {
		t.Fatalf("InsertAction: %v", err)
	}
	if err := l.UpdateActionStatus(ctx, a.ID, models.ActionSent); err != nil {
		t.Fatalf("queued->sent: %v", err)
	}

	actionID, err := l.InsertReceipt(ctx, models.Receipt{
		TS: base, DeviceID: "crac-1", Status: "ok", Applied: true,
	})
	if err != nil {
		t.Fatalf("InsertReceipt: %v", err)
	}
	if actionID != a.ID {
		t.Fatalf("actionID = %d, want %d", actionID, a.ID)
	}

	got, err := l.GetAction(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.Status != models.ActionApplied {
		t.Fatalf("status = %v, want applied after exact-ts receipt", got.Status)
	}
}

func TestReceiptWithNonExactTSDoesNotCorrelate(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	base := time.Now().UTC()

	a := &models.Action{TS: base, DeviceID: "crac-1", Cmd: "set_point", Mode: "auto"}
	if err := l.InsertAction(ctx, a); err != nil {
		t.Fatalf("InsertAction: %v", err)
	}
	if err := l.UpdateActionStatus(ctx, a.ID, models.ActionSent); err != nil {
		t.Fatalf("queued->sent: %v", err)
	}

	actionID, err := l.InsertReceipt(ctx, models.Receipt{
		TS: base.Add(2 * time.Second), DeviceID: "crac-1", Status: "ok", Applied: true,
	})
	if err != nil {
		t.Fatalf("InsertReceipt: %v", err)
	}
	if actionID != 0 {
		t.Fatalf("actionID = %d, want 0 (no exact-ts match)", actionID)
	}

	got, err := l.GetAction(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.Status != models.ActionSent {
		t.Fatalf("status = %v, want sent (unchanged by non-exact-ts receipt)", got.Status)
	}
}

func TestListAnomaliesOrdersMostRecentFirst(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()
	base := time.Now().UTC()

	for i, score := range []float64{0.1, 0.9, 0.5} {
		if err := l.InsertAnomaly(ctx, models.AnomalyRecord{
			TS: base.Add(time.Duration(i) * time.Second), Rack: "r1",
			Score: score, Threshold: 0.8, IsAlarm: score >= 0.8,
		}); err != nil {
			t.Fatalf("InsertAnomaly: %v", err)
		}
	}

	got, err := l.ListAnomalies(ctx, 10)
	if err != nil {
		t.Fatalf("ListAnomalies: %v", err)
	}
	if len(got) != 3 || got[0].Score != 0.5 {
		t.Fatalf("got %+v, want most-recent-first starting at 0.5", got)
	}
}

func TestSchemaVersionGuardRejectsNewerDatabase(t *testing.T) {
	l := openTest(t)
	ctx := context.Background()

	if _, err := l.DB().ExecContext(ctx,
		"UPDATE _schema_meta SET version = 'v9.9.9' WHERE id = 1"); err != nil {
		t.Fatalf("bump schema version: %v", err)
	}

	if err := l.checkVersion(ctx); err == nil {
		t.Fatalf("expected ErrNewerSchema")
	}
}
