package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/coolgrid/sentinel/internal/event"
	"github.com/coolgrid/sentinel/internal/safety"
	"github.com/coolgrid/sentinel/pkg/models"
)

// publishEvent fans a state change out to in-process listeners on the
// event bus, distinct from e.publish which sends commands on the external
// MQTT bus.
func (e *Engine) publishEvent(ctx context.Context, topic string, payload any) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, event.Event{Topic: topic, Payload: payload})
}

// withRetry runs fn once, and once more on failure (spec §7 "Persistence
// errors: retried once in-process").
func withRetry(fn func() error) error {
	if err := fn(); err == nil {
		return nil
	}
	return fn()
}

// handleTelemetry implements spec §4.5 "Telemetry handling" for the
// site/<site>/rack/<rack>/telemetry topic family.
func (e *Engine) handleTelemetry(ctx context.Context, topic string, payload []byte) {
	start := time.Now()
	defer func() { e.metrics.DecisionLatencySeconds.Observe(time.Since(start).Seconds()) }()

	var p models.TelemetryPoint
	if err := json.Unmarshal(payload, &p); err != nil {
		e.logger.Warn("dropping malformed telemetry", zap.String("topic", topic), zap.Error(err))
		return
	}

	if err := withRetry(func() error { return e.ledger.InsertTelemetry(ctx, p) }); err != nil {
		e.logger.Error("persist telemetry failed after retry", zap.Error(err))
	}

	e.mu.Lock()
	e.tiles[p.Rack] = models.Tile{TS: p.TS, Metrics: p.Metrics}
	e.mu.Unlock()

	e.metrics.TelemetryIngestTotal.Inc()
	atomic.AddInt64(&e.ingestCount, 1)
	e.lastIngestTS.Store(p.TS)

	e.rememberDeviceID(p.Rack, p.DeviceID)

	tempC, ok := p.Metric("temp_c")
	if !ok {
		return // sensor dropout: no window push, no forecast/anomaly, no Action (spec §8 scenario 6)
	}

	e.features.Push(p.Rack, "temp_c", tempC)
	window := e.features.Window(p.Rack, "temp_c")

	preds, lo, hi := e.forecaster.Predict(window)
	result := e.scorer.Score(window)

	fc := models.Forecast{TS: p.TS, HorizonS: e.forecaster.Horizon(), Rack: p.Rack, TempPred: preds, TempLo: lo, TempHi: hi}
	if powerKW, ok := p.Metric("power_kw"); ok {
		fc.PowerPred = &powerKW
	}
	if err := withRetry(func() error { return e.ledger.InsertForecast(ctx, fc) }); err != nil {
		e.logger.Error("persist forecast failed after retry", zap.Error(err))
	}

	ar := models.AnomalyRecord{TS: p.TS, Rack: p.Rack, Score: result.Score, Threshold: 0.9, IsAlarm: result.Alarm}
	if err := withRetry(func() error { return e.ledger.InsertAnomaly(ctx, ar) }); err != nil {
		e.logger.Error("persist anomaly failed after retry", zap.Error(err))
	}

	fired := evaluateTriggers(evalCtx{
		policy:   e.policy,
		tempC:    func() (float64, bool) { return p.Metric("temp_c") },
		powerKW:  func() (float64, bool) { return p.Metric("power_kw") },
		humidity: func() (float64, bool) { return p.Metric("hum_pct") },
		window:   window,
		preds:    preds,
		alarm:    result.Alarm,
	})
	if len(fired) == 0 {
		return
	}

	e.emitAction(ctx, p.Rack, preds, result.Score, fired)
}

// emitAction implements spec §4.5 steps 7-10: propose, enforce, persist,
// gate, publish.
func (e *Engine) emitAction(ctx context.Context, rack string, preds []float64, riskScore float64, fired []string) {
	deviceID := e.deviceIDFor(rack)
	current := e.currentFor(deviceID)

	proposal := e.mpc.Propose(preds, current)

	if err := e.safetyEnv.Validate(); err != nil {
		e.logger.Warn("safety envelope invalid; rejecting command without emitting", zap.Error(err))
		e.metrics.ActionsTotal.WithLabelValues(string(models.ActionRejected)).Inc()
		return
	}
	safe := e.safetyEnv.Enforce(current, safety.Setpoints{SupplyTempC: proposal.SupplyTempC, FanRPM: proposal.FanRPM})

	forecastTemp := 0.0
	if len(preds) > 0 {
		forecastTemp = preds[0]
	}

	mode, auto := e.Mode()

	a := &models.Action{
		TS:            time.Now().UTC(),
		DeviceID:      deviceID,
		Cmd:           "setpoints",
		Set:           models.Setpoints{SupplyTempC: safe.Setpoints.SupplyTempC, FanRPM: safe.Setpoints.FanRPM},
		Mode:          mode,
		Reason:        fired[0],
		ModelVersion:  e.modelVersion,
		SafetySummary: safe.Summary,
		Explain: models.Explain{
			Rack:         rack,
			ForecastTemp: forecastTemp,
			RiskScore:    riskScore,
			Triggers:     fired,
			Message:      "triggered by " + fired[0],
		},
	}

	if err := withRetry(func() error { return e.ledger.InsertAction(ctx, a) }); err != nil {
		e.logger.Error("persist action failed after retry; not publishing (fail-closed)", zap.Error(err))
		return
	}

	if auto && strings.HasPrefix(mode, "auto") {
		e.publishAndAdvance(ctx, a, "ctrl/"+deviceID+"/set", models.ActionSent)
	} else {
		if err := e.ledger.UpdateActionStatus(ctx, a.ID, models.ActionPendingManual); err != nil {
			e.logger.Error("transition to pending_manual failed", zap.Error(err))
		}
		e.publish(ctx, "ctrl/proposals", a)
	}

	e.metrics.ActionsTotal.WithLabelValues(string(a.Status)).Inc()
	e.publishEvent(ctx, "action.emitted", a)
}

// ApproveAction implements POST /actions/approve (spec §6): sends a
// pending_manual Action and marks it sent. Approving an already-sent
// Action is a no-op success (spec §8 scenario 5).
func (e *Engine) ApproveAction(ctx context.Context, id int64) (bool, error) {
	a, err := e.ledger.GetAction(ctx, id)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	if a.Status != models.ActionPendingManual {
		return true, nil // already sent/applied/rejected: no-op success
	}
	e.publishAndAdvance(ctx, a, "ctrl/"+a.DeviceID+"/set", models.ActionSent)
	e.publishEvent(ctx, "action.approved", a)
	return true, nil
}

func (e *Engine) publishAndAdvance(ctx context.Context, a *models.Action, topic string, to models.ActionStatus) {
	e.publish(ctx, topic, a)
	if err := e.ledger.UpdateActionStatus(ctx, a.ID, to); err != nil {
		e.logger.Error("action status transition failed", zap.Error(err), zap.Int64("action_id", a.ID))
		return
	}
	a.Status = to
}

func (e *Engine) publish(ctx context.Context, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		e.logger.Error("marshal publish payload failed", zap.Error(err), zap.String("topic", topic))
		return
	}
	if e.dispatcher == nil {
		return
	}
	if err := e.dispatcher.Publish(ctx, topic, payload); err != nil {
		e.logger.Error("bus publish failed; action remains queued for retry", zap.Error(err), zap.String("topic", topic))
	}
}

// handleReceipt implements spec §4.5 "Receipt handling" for ctrl/<device_id>/receipt.
func (e *Engine) handleReceipt(ctx context.Context, topic string, payload []byte) {
	var r models.Receipt
	if err := json.Unmarshal(payload, &r); err != nil {
		e.logger.Warn("dropping malformed receipt", zap.String("topic", topic), zap.Error(err))
		return
	}

	actionID, err := e.ledger.InsertReceipt(ctx, r)
	if err != nil {
		e.logger.Error("persist receipt failed", zap.Error(err))
		return
	}
	if actionID == 0 {
		return
	}

	a, err := e.ledger.GetAction(ctx, actionID)
	if err != nil || a == nil {
		return
	}
	if a.Status == models.ActionApplied {
		e.setCurrent(a.DeviceID, safety.Setpoints{SupplyTempC: a.Set.SupplyTempC, FanRPM: a.Set.FanRPM})
	}
	e.publishEvent(ctx, "action."+string(a.Status), a)
}

type rawDiscoverEvent struct {
	TS         time.Time `json:"ts"`
	Subnet     string    `json:"subnet"`
	DurationS  float64   `json:"duration_s"`
	Raw        []any     `json:"raw"`
}

// handleDiscoverRaw accepts discover/raw frames. The FSM's recorded state
// (results, history, metrics) only advances on discover/results; raw scan
// progress has no persisted contract in spec §4.5 beyond being a valid
// input topic, so this is a log-only listener.
func (e *Engine) handleDiscoverRaw(_ context.Context, topic string, payload []byte) {
	var evt rawDiscoverEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		e.logger.Warn("dropping malformed discover/raw", zap.String("topic", topic), zap.Error(err))
		return
	}
	e.logger.Debug("discover/raw received", zap.String("subnet", evt.Subnet), zap.Int("raw_count", len(evt.Raw)))
}

type discoverResultsEvent struct {
	TS        time.Time       `json:"ts"`
	Subnet    string          `json:"subnet"`
	DurationS float64         `json:"duration_s"`
	Devices   []models.Device `json:"devices"`
}

// handleDiscoverResults advances the discovery FSM running->done (spec §4.5).
func (e *Engine) handleDiscoverResults(_ context.Context, topic string, payload []byte) {
	var evt discoverResultsEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		e.logger.Warn("dropping malformed discover/results", zap.String("topic", topic), zap.Error(err))
		return
	}

	e.mu.Lock()
	e.discovery.Status = models.DiscoveryDone
	e.discovery.Results = evt.Devices
	now := time.Now().UTC()
	e.discovery.CompletedAt = &now
	e.discovery.Deadline = nil
	e.discovery.AppendHistory(models.DiscoveryHistoryEntry{TS: evt.TS, RawCount: len(evt.Devices)})
	e.mu.Unlock()

	e.metrics.DiscoverDurationSeconds.Observe(evt.DurationS)
	e.metrics.DiscoverDevicesFoundTotal.Add(float64(len(evt.Devices)))
	e.publishEvent(context.Background(), "discovery.done", evt.Devices)
}
