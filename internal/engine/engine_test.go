package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/coolgrid/sentinel/internal/bus"
	"github.com/coolgrid/sentinel/internal/config"
	"github.com/coolgrid/sentinel/internal/event"
	"github.com/coolgrid/sentinel/internal/ledger"
	"github.com/coolgrid/sentinel/pkg/models"
)

// newTestEngine wires a full Engine against a scratch SQLite ledger and an
// unconnected bus dispatcher, so handlers can be exercised via
// dispatcher.Route without a live broker (spec §8's scenarios are all
// engine-internal: they never depend on an actual MQTT connection).
func newTestEngine(t *testing.T, mode string, autoEnabled bool) (*Engine, *bus.Dispatcher) {
	t.Helper()
	return newTestEngineWithDevicesPath(t, mode, autoEnabled, "")
}

// newTestEngineWithDevicesPath is newTestEngine but with a real, writable
// devices.yaml backing the registry -- needed by tests that exercise
// ApproveDevice/RemoveDeviceEntry, since an empty path registry persists
// nothing across a reload (spec §4.5's registry is file-backed).
func newTestEngineWithDevicesPath(t *testing.T, mode string, autoEnabled bool, devicesPath string) (*Engine, *bus.Dispatcher) {
	t.Helper()
	dir := t.TempDir()
	led, err := ledger.Open(context.Background(), filepath.Join(dir, "sentinel.db"))
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() { led.Close() })

	policy := config.DefaultPolicy()
	policy.Site = "dc1"

	devices, err := config.NewDeviceRegistry(devicesPath)
	if err != nil {
		t.Fatalf("NewDeviceRegistry: %v", err)
	}

	d := bus.NewDispatcher(bus.DefaultConfig(), zap.NewNop())
	eng := New(Config{
		Logger:       zap.NewNop(),
		Ledger:       led,
		Dispatcher:   d,
		Events:       event.NewBus(zap.NewNop()),
		Policy:       policy,
		Devices:      devices,
		WindowSize:   30,
		Horizon:      12,
		Mode:         mode,
		AutoEnabled:  autoEnabled,
		ModelVersion: "test",
	})
	eng.RegisterHandlers(d)
	return eng, d
}

func ptr(v float64) *float64 { return &v }

func telemetryPayload(t *testing.T, rack string, ts time.Time, metrics map[string]float64) []byte {
	t.Helper()
	m := make(map[string]*float64, len(metrics))
	for k, v := range metrics {
		m[k] = ptr(v)
	}
	p := models.TelemetryPoint{TS: ts, Site: "dc1", Rack: rack, Metrics: m}
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal telemetry: %v", err)
	}
	return b
}

// TestTemperatureLimitTriggerEmitsAction covers spec §8 scenario 1: a rack
// crossing the temp_c.max limit produces one Action with the expected
// trigger, setpoints, and safety summary.
func TestTemperatureLimitTriggerEmitsAction(t *testing.T) {
	eng, d := newTestEngine(t, "auto_full", true)
	ctx := context.Background()

	temps := []float64{24, 24.5, 25, 25.5, 26, 26.2, 26.4, 26.6, 27, 27.5}
	base := time.Now().UTC().Add(-time.Duration(len(temps)) * time.Second)
	for i, temp := range temps {
		payload := telemetryPayload(t, "r1", base.Add(time.Duration(i)*time.Second), map[string]float64{"temp_c": temp})
		d.Route(ctx, "site/dc1/rack/r1/telemetry", payload)
	}

	actions, err := eng.ledger.ListActions(ctx, 10)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(actions) == 0 {
		t.Fatalf("expected at least one action, got none")
	}

	a := actions[0]
	if a.Reason != "temperature_limit" {
		t.Fatalf("Reason = %q, want temperature_limit", a.Reason)
	}
	if a.Set.SupplyTempC > 17.7 {
		t.Fatalf("SupplyTempC = %v, want <= 17.7", a.Set.SupplyTempC)
	}
	if a.Set.FanRPM != 1350 {
		t.Fatalf("FanRPM = %v, want 1350", a.Set.FanRPM)
	}
	if a.Status != models.ActionSent {
		t.Fatalf("Status = %v, want sent (auto_full + auto_enabled)", a.Status)
	}
	if a.SafetySummary != "limits, rate limits applied" {
		t.Fatalf("SafetySummary = %q, want %q", a.SafetySummary, "limits, rate limits applied")
	}
}

// TestProposeModeGatesThroughPendingManual covers spec §8 scenario 5:
// in "propose" mode an Action is held pending_manual until an operator
// approves it, and a second approval of the same id is a no-op success.
func TestProposeModeGatesThroughPendingManual(t *testing.T) {
	eng, d := newTestEngine(t, "propose", false)
	ctx := context.Background()

	temps := []float64{24, 25, 26, 27, 27.5, 27.8}
	base := time.Now().UTC().Add(-time.Duration(len(temps)) * time.Second)
	for i, temp := range temps {
		payload := telemetryPayload(t, "r2", base.Add(time.Duration(i)*time.Second), map[string]float64{"temp_c": temp})
		d.Route(ctx, "site/dc1/rack/r2/telemetry", payload)
	}

	actions, err := eng.ledger.ListActions(ctx, 10)
	if err != nil || len(actions) == 0 {
		t.Fatalf("ListActions: %v, %d actions", err, len(actions))
	}
	a := actions[0]
	if a.Status != models.ActionPendingManual {
		t.Fatalf("Status = %v, want pending_manual", a.Status)
	}

	ok, err := eng.ApproveAction(ctx, a.ID)
	if err != nil || !ok {
		t.Fatalf("ApproveAction: ok=%v err=%v", ok, err)
	}
	got, err := eng.ledger.GetAction(ctx, a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.Status != models.ActionSent {
		t.Fatalf("Status after approve = %v, want sent", got.Status)
	}

	// second approval is a no-op success
	ok, err = eng.ApproveAction(ctx, a.ID)
	if err != nil || !ok {
		t.Fatalf("second ApproveAction: ok=%v err=%v", ok, err)
	}
}

// TestSensorDropoutSkipsWindowAndAction covers spec §8 scenario 6: a null
// temp_c reading updates tiles but triggers no window push, no
// forecast/anomaly persistence, and no Action.
func TestSensorDropoutSkipsWindowAndAction(t *testing.T) {
	eng, d := newTestEngine(t, "auto_full", true)
	ctx := context.Background()

	p := models.TelemetryPoint{
		TS: time.Now().UTC(), Site: "dc1", Rack: "r3",
		Metrics: map[string]*float64{"temp_c": nil},
	}
	payload, _ := json.Marshal(p)
	d.Route(ctx, "site/dc1/rack/r3/telemetry", payload)

	tiles := eng.Tiles()
	if _, ok := tiles["r3"]; !ok {
		t.Fatalf("expected tiles to be updated for r3 despite dropout")
	}

	actions, err := eng.ledger.ListActions(ctx, 10)
	if err != nil {
		t.Fatalf("ListActions: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("expected no actions from a sensor dropout, got %d", len(actions))
	}
}

// TestReceiptMarksActionApplied covers the receipt-correlation half of
// spec §4.5 "Receipt handling": a receipt whose ts exactly matches a sent
// Action's ts for the same device marks that Action applied.
func TestReceiptMarksActionApplied(t *testing.T) {
	eng, d := newTestEngine(t, "auto_full", true)
	ctx := context.Background()

	temps := []float64{26, 26.5, 27, 27.5}
	base := time.Now().UTC().Add(-time.Duration(len(temps)) * time.Second)
	for i, temp := range temps {
		payload := telemetryPayload(t, "r4", base.Add(time.Duration(i)*time.Second), map[string]float64{"temp_c": temp})
		d.Route(ctx, "site/dc1/rack/r4/telemetry", payload)
	}

	actions, err := eng.ledger.ListActions(ctx, 10)
	if err != nil || len(actions) == 0 {
		t.Fatalf("ListActions: %v, %d actions", err, len(actions))
	}
	a := actions[0]

	receipt := models.Receipt{TS: a.TS, DeviceID: a.DeviceID, Status: "ok", Applied: true, LatencyMS: 50}
	rb, _ := json.Marshal(receipt)
	d.Route(ctx, "ctrl/"+a.DeviceID+"/receipt", rb)

	got, err := eng.ledger.GetAction(ctx, a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.Status != models.ActionApplied {
		t.Fatalf("Status = %v, want applied", got.Status)
	}
}

// TestReceiptWithMismatchedTSDoesNotAdvanceAction covers spec §4.5's exact
// match requirement: a receipt whose ts does not exactly equal a sent
// Action's ts is persisted but leaves that Action's status untouched.
func TestReceiptWithMismatchedTSDoesNotAdvanceAction(t *testing.T) {
	eng, d := newTestEngine(t, "auto_full", true)
	ctx := context.Background()

	temps := []float64{26, 26.5, 27, 27.5}
	base := time.Now().UTC().Add(-time.Duration(len(temps)) * time.Second)
	for i, temp := range temps {
		payload := telemetryPayload(t, "r5", base.Add(time.Duration(i)*time.Second), map[string]float64{"temp_c": temp})
		d.Route(ctx, "site/dc1/rack/r5/telemetry", payload)
	}

	actions, err := eng.ledger.ListActions(ctx, 10)
	if err != nil || len(actions) == 0 {
		t.Fatalf("ListActions: %v, %d actions", err, len(actions))
	}
	a := actions[0]

	receipt := models.Receipt{TS: a.TS.Add(3 * time.Second), DeviceID: a.DeviceID, Status: "ok", Applied: true, LatencyMS: 50}
	rb, _ := json.Marshal(receipt)
	d.Route(ctx, "ctrl/"+a.DeviceID+"/receipt", rb)

	got, err := eng.ledger.GetAction(ctx, a.ID)
	if err != nil || got == nil {
		t.Fatalf("GetAction: %v", err)
	}
	if got.Status != models.ActionSent {
		t.Fatalf("Status = %v, want sent (unchanged by non-exact-ts receipt)", got.Status)
	}
}

// TestDiscoveryTimeoutPromotesToError covers spec §8 scenario 3: a running
// scan with no discover/results before its deadline is lazily promoted to
// error the next time ListDiscoveries is called.
func TestDiscoveryTimeoutPromotesToError(t *testing.T) {
	eng, _ := newTestEngine(t, "propose", false)
	ctx := context.Background()

	eng.StartDiscovery(ctx, "10.0.0.0/24", "tester", 2)

	state := eng.ListDiscoveries(ctx)
	if state.Status != models.DiscoveryRunning {
		t.Fatalf("Status = %v, want running immediately after start", state.Status)
	}

	time.Sleep(3 * time.Second)

	state = eng.ListDiscoveries(ctx)
	if state.Status != models.DiscoveryError {
		t.Fatalf("Status = %v, want error after deadline", state.Status)
	}
	if state.Error != "timeout>2s" {
		t.Fatalf("Error = %q, want timeout>2s", state.Error)
	}
	if len(state.Results) != 0 {
		t.Fatalf("expected no devices, got %d", len(state.Results))
	}
	if state.Deadline != nil {
		t.Fatalf("expected deadline cleared after timeout")
	}
}

// TestDiscoveryHappyPathRecordsResults covers spec §8 scenario 4:
// discover/results advances running->done, records devices, and observes
// the duration/count metrics.
func TestDiscoveryHappyPathRecordsResults(t *testing.T) {
	eng, d := newTestEngine(t, "propose", false)
	ctx := context.Background()

	eng.StartDiscovery(ctx, "10.0.0.0/24", "tester", 180)

	payload, err := json.Marshal(discoverResultsEvent{
		TS:        time.Now().UTC(),
		Subnet:    "10.0.0.0/24",
		DurationS: 4.2,
		Devices:   []models.Device{{ID: "d1", Host: "10.0.0.5", Proto: "modbus"}},
	})
	if err != nil {
		t.Fatalf("marshal discover/results: %v", err)
	}
	d.Route(ctx, "discover/results", payload)

	state := eng.ListDiscoveries(ctx)
	if state.Status != models.DiscoveryDone {
		t.Fatalf("Status = %v, want done", state.Status)
	}
	if len(state.Results) != 1 {
		t.Fatalf("Results = %+v, want one device", state.Results)
	}
	if state.Deadline != nil {
		t.Fatalf("expected deadline cleared on results")
	}
}

// TestApproveAndRemoveDevice covers spec §4.5 "Approve/remove": approving
// upserts the registry, removing an unknown id reports not found, removing
// a known id succeeds.
func TestApproveAndRemoveDevice(t *testing.T) {
	devicesPath := filepath.Join(t.TempDir(), "devices.yaml")
	eng, _ := newTestEngineWithDevicesPath(t, "propose", false, devicesPath)
	ctx := context.Background()

	d := models.Device{ID: "dev-1", Rack: "r9", Host: "10.0.0.9", Proto: "modbus", Port: 502}
	if err := eng.ApproveDevice(ctx, "tester", d); err != nil {
		t.Fatalf("ApproveDevice: %v", err)
	}
	if got, ok := eng.devices.ByRack("r9"); !ok || got.ID != "dev-1" {
		t.Fatalf("ByRack after approve = %+v/%v, want dev-1/true", got, ok)
	}

	found, err := eng.RemoveDeviceEntry(ctx, "tester", "unknown-id")
	if err != nil {
		t.Fatalf("RemoveDeviceEntry(unknown): %v", err)
	}
	if found {
		t.Fatalf("expected RemoveDeviceEntry to report not found for an unknown id")
	}

	found, err = eng.RemoveDeviceEntry(ctx, "tester", "dev-1")
	if err != nil {
		t.Fatalf("RemoveDeviceEntry(dev-1): %v", err)
	}
	if !found {
		t.Fatalf("expected RemoveDeviceEntry to report found for dev-1")
	}
	if _, ok := eng.devices.ByRack("r9"); ok {
		t.Fatalf("expected r9 to be gone from the registry after remove")
	}
}
