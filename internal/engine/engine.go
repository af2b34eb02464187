// Package engine implements C5, the Decision Engine (spec §4.5): the
// synchronous bus dispatch loop that updates the feature store, runs the
// forecast/anomaly/MPC pipeline, persists to the ledger, drives the
// discovery state machine, and gates publishes by mode/auto_enabled.
//
// Per spec §9 ("Global engine singleton"), a single Engine owns the DB
// handle (via ledger.Ledger), the bus client, the feature store, the
// policy snapshot, and the discovery state; HTTP/WS handlers and the bus
// dispatcher are all given an explicit reference to it rather than reaching
// for a package-level global.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/coolgrid/sentinel/internal/anomaly"
	"github.com/coolgrid/sentinel/internal/bus"
	"github.com/coolgrid/sentinel/internal/config"
	"github.com/coolgrid/sentinel/internal/event"
	"github.com/coolgrid/sentinel/internal/featurestore"
	"github.com/coolgrid/sentinel/internal/forecast"
	"github.com/coolgrid/sentinel/internal/ledger"
	"github.com/coolgrid/sentinel/internal/safety"
	"github.com/coolgrid/sentinel/pkg/models"
)

// defaultCurrent is the reference actuator state used until a Receipt for a
// device establishes an observed value (spec §9 "'Current' actuator state").
var defaultCurrent = safety.Setpoints{SupplyTempC: 18.0, FanRPM: 1200}

// Engine is the process-wide decision engine singleton.
type Engine struct {
	logger *zap.Logger

	ledger  *ledger.Ledger
	dispatcher *bus.Dispatcher
	events  *event.Bus

	features  *featurestore.Store
	forecaster *forecast.Forecaster
	scorer    *anomaly.Scorer
	mpc       *safety.MPC
	safetyEnv *safety.Safety

	policy   config.Policy
	devices  *config.DeviceRegistry
	modelVersion string

	startedAt time.Time

	mu             sync.RWMutex
	mode           string
	autoEnabled    bool
	tiles          map[string]models.Tile
	discovery      models.DiscoveryState
	deviceByRack   map[string]string // dynamic device_id observed per rack
	currentByDevice map[string]safety.Setpoints

	ingestCount  int64
	lastIngestTS atomic.Value // time.Time

	metrics *Metrics
}

// Config bundles the construction-time dependencies for New.
type Config struct {
	Logger       *zap.Logger
	Ledger       *ledger.Ledger
	Dispatcher   *bus.Dispatcher
	Events       *event.Bus
	Policy       config.Policy
	Devices      *config.DeviceRegistry
	WindowSize   int
	Horizon      int
	Mode         string
	AutoEnabled  bool
	ModelVersion string
}

// New constructs an Engine. It does not start any background goroutines.
func New(cfg Config) *Engine {
	e := &Engine{
		logger:          cfg.Logger,
		ledger:          cfg.Ledger,
		dispatcher:      cfg.Dispatcher,
		events:          cfg.Events,
		features:        featurestore.New(cfg.WindowSize),
		forecaster:      forecast.New(cfg.Horizon),
		scorer:          anomaly.New(0.9),
		mpc:             safety.NewMPC(cfg.Policy.Limits),
		safetyEnv:       safety.NewSafety(cfg.Policy.Limits),
		policy:          cfg.Policy,
		devices:         cfg.Devices,
		modelVersion:    cfg.ModelVersion,
		startedAt:       time.Now(),
		mode:            cfg.Mode,
		autoEnabled:     cfg.AutoEnabled,
		tiles:           make(map[string]models.Tile),
		discovery:       models.DiscoveryState{Status: models.DiscoveryIdle},
		deviceByRack:    make(map[string]string),
		currentByDevice: make(map[string]safety.Setpoints),
		metrics:         NewMetrics(),
	}
	e.lastIngestTS.Store(time.Time{})
	return e
}

// RegisterHandlers wires the engine's bus handlers onto d's dispatch table
// (spec §9 "dispatch table topic_pattern -> handler").
func (e *Engine) RegisterHandlers(d *bus.Dispatcher) {
	d.Register("site/+/rack/+/telemetry", e.handleTelemetry)
	d.Register("ctrl/+/receipt", e.handleReceipt)
	d.Register("discover/raw", e.handleDiscoverRaw)
	d.Register("discover/results", e.handleDiscoverResults)
	d.Register("discover/approved", e.handleDiscoverApproved)
	d.Register("discover/removed", e.handleDiscoverRemoved)
}

// Metrics exposes the engine's Prometheus collector set so the HTTP surface
// can mount it at GET /metrics (spec §6).
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Mode returns the current engine mode and auto_enabled flag.
func (e *Engine) Mode() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode, e.autoEnabled
}

// SetMode updates the engine mode and/or auto_enabled flag. An empty mode
// leaves the current mode unchanged.
func (e *Engine) SetMode(mode string, autoEnabled *bool) {
	e.mu.Lock()
	if mode != "" {
		e.mode = mode
	}
	if autoEnabled != nil {
		e.autoEnabled = *autoEnabled
	}
	newMode, newAuto := e.mode, e.autoEnabled
	e.mu.Unlock()

	if e.events != nil {
		e.events.Publish(context.Background(), event.Event{
			Topic:   "mode.changed",
			Payload: map[string]any{"mode": newMode, "auto_enabled": newAuto},
		})
	}
}

// Tiles returns a snapshot copy of the latest per-rack tiles map.
func (e *Engine) Tiles() map[string]models.Tile {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]models.Tile, len(e.tiles))
	for k, v := range e.tiles {
		out[k] = v
	}
	return out
}

// Status returns the GET /status payload.
func (e *Engine) Status() models.Status {
	e.mu.RLock()
	mode, auto := e.mode, e.autoEnabled
	tracked := len(e.tiles)
	e.mu.RUnlock()

	last, _ := e.lastIngestTS.Load().(time.Time)

	return models.Status{
		Mode:         mode,
		AutoEnabled:  auto,
		Site:         e.policy.Site,
		IngestCount:  atomic.LoadInt64(&e.ingestCount),
		LastIngestTS: last,
		TrackedRacks: tracked,
		UptimeS:      time.Since(e.startedAt).Seconds(),
	}
}

// currentFor returns the last-known actuator state for device, or the
// reference default if none has been observed yet.
func (e *Engine) currentFor(deviceID string) safety.Setpoints {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if c, ok := e.currentByDevice[deviceID]; ok {
		return c
	}
	return defaultCurrent
}

func (e *Engine) setCurrent(deviceID string, s safety.Setpoints) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentByDevice[deviceID] = s
}

// deviceIDFor implements device_id_for (spec §4.5 "Device resolution").
func (e *Engine) deviceIDFor(rack string) string {
	e.mu.RLock()
	if id, ok := e.deviceByRack[rack]; ok && id != "" {
		e.mu.RUnlock()
		return id
	}
	e.mu.RUnlock()

	if e.devices != nil {
		if d, ok := e.devices.ByRack(rack); ok && d.ID != "" {
			return d.ID
		}
	}
	if e.policy.Site != "" {
		return e.policy.Site
	}
	return "device"
}

func (e *Engine) rememberDeviceID(rack, deviceID string) {
	if deviceID == "" {
		return
	}
	e.mu.Lock()
	e.deviceByRack[rack] = deviceID
	e.mu.Unlock()
}

// audit records an audit entry, logging but not failing the caller on
// persistence error (engine operations are best-effort auditable, not
// audit-gated).
func (e *Engine) audit(ctx context.Context, actor, action string, payload []byte) {
	if err := e.ledger.InsertAudit(ctx, models.AuditEntry{
		TS: time.Now().UTC(), Actor: actor, Action: action, Payload: payload,
	}); err != nil {
		e.logger.Warn("insert audit failed", zap.Error(err), zap.String("action", action))
	}
}
