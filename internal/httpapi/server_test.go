package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/coolgrid/sentinel/pkg/models"
)

// fakeEngine is a minimal, in-memory stand-in for *engine.Engine satisfying
// the Engine interface, so route handlers can be exercised without a real
// bus/ledger/feature-store stack.
type fakeEngine struct {
	tiles       map[string]models.Tile
	status      models.Status
	mode        string
	auto        bool
	discovery   models.DiscoveryState
	devices     map[string]models.Device
	approveErr  error
	removeFound bool
	actions     map[int64]models.ActionStatus
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		tiles:   map[string]models.Tile{},
		devices: map[string]models.Device{},
		mode:    "propose",
		actions: map[int64]models.ActionStatus{1: models.ActionPendingManual},
	}
}

func (f *fakeEngine) Tiles() map[string]models.Tile { return f.tiles }
func (f *fakeEngine) Status() models.Status         { return f.status }
func (f *fakeEngine) Mode() (string, bool)          { return f.mode, f.auto }
func (f *fakeEngine) SetMode(mode string, autoEnabled *bool) {
	if mode != "" {
		f.mode = mode
	}
	if autoEnabled != nil {
		f.auto = *autoEnabled
	}
}
func (f *fakeEngine) StartDiscovery(ctx context.Context, subnet, actor string, timeoutS int) {
	f.discovery = models.DiscoveryState{Status: models.DiscoveryRunning, Subnet: subnet, Actor: actor}
}
func (f *fakeEngine) ListDiscoveries(ctx context.Context) models.DiscoveryState { return f.discovery }
func (f *fakeEngine) ApproveDevice(ctx context.Context, actor string, d models.Device) error {
	if f.approveErr != nil {
		return f.approveErr
	}
	f.devices[d.ID] = d
	return nil
}
func (f *fakeEngine) RemoveDeviceEntry(ctx context.Context, actor, id string) (bool, error) {
	if _, ok := f.devices[id]; !ok {
		return false, nil
	}
	delete(f.devices, id)
	return true, nil
}
func (f *fakeEngine) ApproveAction(ctx context.Context, id int64) (bool, error) {
	status, ok := f.actions[id]
	if !ok {
		return false, nil
	}
	if status == models.ActionPendingManual {
		f.actions[id] = models.ActionSent
	}
	return true, nil
}

// fakeLedger is a minimal stand-in for *ledger.Ledger satisfying the
// Ledger interface.
type fakeLedger struct {
	actions   []models.Action
	anomalies []models.AnomalyRecord
	telemetry []models.TelemetryPoint
	pingErr   error
}

func (f *fakeLedger) ListActions(ctx context.Context, limit int) ([]models.Action, error) {
	return f.actions, nil
}
func (f *fakeLedger) ListAnomalies(ctx context.Context, limit int) ([]models.AnomalyRecord, error) {
	return f.anomalies, nil
}
func (f *fakeLedger) TelemetryHistory(ctx context.Context, rack string, limit int) ([]models.TelemetryPoint, error) {
	return f.telemetry, nil
}
func (f *fakeLedger) Ping(ctx context.Context) error { return f.pingErr }

func newTestServer() (*Server, *fakeEngine, *fakeLedger) {
	eng := newFakeEngine()
	led := &fakeLedger{}
	srv := New(":0", eng, led, nil, zap.NewNop())
	return srv, eng, led
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(b))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	rr := httptest.NewRecorder()
	srv.Mux().ServeHTTP(rr, req)
	return rr
}

func TestHealthReportsLedgerPing(t *testing.T) {
	srv, _, led := newTestServer()

	rr := doRequest(t, srv, "GET", "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("ok = %v, want true", body["ok"])
	}

	led.pingErr = fmt.Errorf("db is down")
	rr = doRequest(t, srv, "GET", "/health", nil)
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["ok"] != false {
		t.Fatalf("ok = %v, want false when ledger ping fails", body["ok"])
	}
}

func TestListActionsReturnsEmptyArrayNotNull(t *testing.T) {
	srv, _, _ := newTestServer()

	rr := doRequest(t, srv, "GET", "/actions", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("body = %q, want empty JSON array", rr.Body.String())
	}
}

func TestDiscoverStartThenList(t *testing.T) {
	srv, eng, _ := newTestServer()

	rr := doRequest(t, srv, "POST", "/discover/start", discoverStartRequest{Subnet: "10.0.0.0/24", Actor: "alice"})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rr.Code)
	}
	if eng.discovery.Status != models.DiscoveryRunning {
		t.Fatalf("discovery status = %v, want running", eng.discovery.Status)
	}

	rr = doRequest(t, srv, "GET", "/discover", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]any
	json.Unmarshal(rr.Body.Bytes(), &body)
	state := body["state"].(map[string]any)
	if state["subnet"] != "10.0.0.0/24" || state["actor"] != "alice" {
		t.Fatalf("unexpected state: %#v", state)
	}
}

func TestModeSetRejectsUnknownMode(t *testing.T) {
	srv, _, _ := newTestServer()

	mode := "nonsense"
	rr := doRequest(t, srv, "POST", "/mode", modeRequest{Mode: &mode})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown mode", rr.Code)
	}
}

func TestModeSetAcceptsKnownMode(t *testing.T) {
	srv, eng, _ := newTestServer()

	mode := "auto_full"
	auto := true
	rr := doRequest(t, srv, "POST", "/mode", modeRequest{Mode: &mode, AutoEnabled: &auto})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if eng.mode != "auto_full" || !eng.auto {
		t.Fatalf("engine mode/auto = %q/%v, want auto_full/true", eng.mode, eng.auto)
	}
}

func TestActionApproveUnknownIDReturns404(t *testing.T) {
	srv, _, _ := newTestServer()

	rr := doRequest(t, srv, "POST", "/actions/approve", actionApproveRequest{ID: 999})
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestActionApproveKnownIDReturns200(t *testing.T) {
	srv, _, _ := newTestServer()

	rr := doRequest(t, srv, "POST", "/actions/approve", actionApproveRequest{ID: 1})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestDeviceRemoveUnknownIDReturns404(t *testing.T) {
	srv, _, _ := newTestServer()

	rr := doRequest(t, srv, "DELETE", "/devices/ghost", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestDeviceRemoveKnownIDReturns204(t *testing.T) {
	srv, eng, _ := newTestServer()
	eng.devices["dev-1"] = models.Device{ID: "dev-1", Rack: "r1"}

	rr := doRequest(t, srv, "DELETE", "/devices/dev-1", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if _, ok := eng.devices["dev-1"]; ok {
		t.Fatalf("device dev-1 should have been removed")
	}
}

func TestTelemetryHistoryRequiresRack(t *testing.T) {
	srv, _, _ := newTestServer()

	rr := doRequest(t, srv, "GET", "/telemetry/history", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 when rack is missing", rr.Code)
	}

	rr = doRequest(t, srv, "GET", "/telemetry/history?rack=r1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with rack set", rr.Code)
	}
}

func TestStatusIncludesDiscovery(t *testing.T) {
	srv, eng, _ := newTestServer()
	eng.status = models.Status{Mode: "propose", Site: "dc1"}
	eng.discovery = models.DiscoveryState{Status: models.DiscoveryIdle}

	rr := doRequest(t, srv, "GET", "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var body map[string]any
	json.Unmarshal(rr.Body.Bytes(), &body)
	if body["site"] != "dc1" {
		t.Fatalf("site = %v, want dc1", body["site"])
	}
	if _, ok := body["discovery"]; !ok {
		t.Fatalf("expected discovery field in status response")
	}
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	srv, _, _ := newTestServer()

	rr := doRequest(t, srv, "GET", "/metrics", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "# HELP") {
		t.Fatalf("expected prometheus exposition text, got: %s", rr.Body.String()[:min(200, rr.Body.Len())])
	}
}
