package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/coolgrid/sentinel/pkg/models"
)

// DefaultDiscoveryTimeoutS is the discovery envelope used when the caller
// does not override it (spec §5 "discovery: 180 s envelope").
const DefaultDiscoveryTimeoutS = 180

// StartDiscovery implements start_discovery(subnet, actor) (spec §4.5
// Discovery FSM). idle|done|error -> running, resetting results.
func (e *Engine) StartDiscovery(ctx context.Context, subnet, actor string, timeoutS int) {
	if timeoutS <= 0 {
		timeoutS = DefaultDiscoveryTimeoutS
	}
	if subnet == "" {
		subnet = e.policy.Site
	}

	now := time.Now().UTC()
	deadline := now.Add(time.Duration(timeoutS) * time.Second)

	e.mu.Lock()
	e.discovery = models.DiscoveryState{
		Status:    models.DiscoveryRunning,
		Subnet:    subnet,
		Actor:     actor,
		StartedAt: now,
		Deadline:  &deadline,
		Results:   nil,
		History:   e.discovery.History,
	}
	e.mu.Unlock()

	e.metrics.DiscoverScansTotal.Inc()
	e.audit(ctx, actor, "start_discovery", nil)
	e.publish(ctx, "ctrl/discover/start", map[string]any{
		"ts":     now,
		"subnet": subnet,
		"actor":  actor,
	})
}

// ListDiscoveries implements list_discoveries: a read that lazily promotes
// a timed-out running scan to error before returning (spec §5 "Discovery
// timeout is polled ... list_discoveries promotes running -> error lazily").
func (e *Engine) ListDiscoveries(_ context.Context) models.DiscoveryState {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.discovery.Status == models.DiscoveryRunning && e.discovery.Deadline != nil && time.Now().After(*e.discovery.Deadline) {
		timeoutS := int(e.discovery.Deadline.Sub(e.discovery.StartedAt).Round(time.Second).Seconds())
		e.discovery.Status = models.DiscoveryError
		e.discovery.Message = "Edge bridge did not respond"
		e.discovery.Error = fmt.Sprintf("timeout>%ds", timeoutS)
		e.discovery.Deadline = nil
	}

	return e.discovery
}

// ApproveDevice implements approve_device(entry) (spec §4.5): upserts the
// device registry, increments the approval counter, audits, and publishes
// discover/approved.
func (e *Engine) ApproveDevice(ctx context.Context, actor string, d models.Device) error {
	if e.devices == nil {
		return fmt.Errorf("device registry not configured")
	}
	if err := e.devices.Upsert(d); err != nil {
		return err
	}

	e.metrics.DiscoverDevicesApprovedTotal.Inc()
	payload, _ := json.Marshal(d)
	e.audit(ctx, actor, "approve_device", payload)
	e.publish(ctx, "discover/approved", d)
	return nil
}

// RemoveDeviceEntry implements remove_device_entry(id) (spec §4.5): removes
// by id, publishing discover/removed only if an entry was actually found.
func (e *Engine) RemoveDeviceEntry(ctx context.Context, actor, id string) (bool, error) {
	if e.devices == nil {
		return false, fmt.Errorf("device registry not configured")
	}
	found, err := e.devices.Remove(id)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	e.audit(ctx, actor, "remove_device_entry", []byte(`{"id":"`+id+`"}`))
	e.publish(ctx, "discover/removed", map[string]string{"id": id})
	return true, nil
}

// handleDiscoverApproved reloads the device registry on an externally
// published discover/approved event (spec §4.5 "Device resolution": the
// registry is "reloaded on file-mtime change and on discover/approved|
// removed events"). ApproveDevice already reloads its own writes directly,
// so this only matters for approvals originated elsewhere on the bus.
func (e *Engine) handleDiscoverApproved(_ context.Context, topic string, payload []byte) {
	if e.devices == nil {
		return
	}
	if err := e.devices.Reload(); err != nil {
		e.logger.Error("reload device registry on discover/approved failed", zap.Error(err), zap.String("topic", topic))
	}
}

// handleDiscoverRemoved is handleDiscoverApproved's counterpart for
// discover/removed.
func (e *Engine) handleDiscoverRemoved(_ context.Context, topic string, payload []byte) {
	if e.devices == nil {
		return
	}
	if err := e.devices.Reload(); err != nil {
		e.logger.Error("reload device registry on discover/removed failed", zap.Error(err), zap.String("topic", topic))
	}
}
