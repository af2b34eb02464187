package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coolgrid/sentinel/pkg/models"
	"gopkg.in/yaml.v3"
)

// devicesFile is the on-disk shape of devices.yaml: a flat list of entries.
type devicesFile struct {
	Devices []models.Device `yaml:"devices"`
}

// DeviceRegistry is the file-backed device registry consulted by
// device_id_for (spec §4.5 "Device resolution"). Reload is an idempotent
// pull driven by file mtime or an explicit Reload() call from a
// discover/approved|removed event -- never by self-notification, to avoid
// the reload<->event cycle called out in spec §9.
type DeviceRegistry struct {
	path string

	mu      sync.RWMutex
	byRack  map[string]models.Device
	byID    map[string]models.Device
	modTime time.Time
}

// NewDeviceRegistry loads path (if it exists) and returns a registry ready
// for device_id_for lookups.
func NewDeviceRegistry(path string) (*DeviceRegistry, error) {
	r := &DeviceRegistry{path: path}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the backing file unconditionally. Safe to call from a
// discover/approved|removed handler or a periodic mtime check.
func (r *DeviceRegistry) Reload() error {
	if r.path == "" {
		r.mu.Lock()
		r.byRack = map[string]models.Device{}
		r.byID = map[string]models.Device{}
		r.mu.Unlock()
		return nil
	}

	data, err := os.ReadFile(r.path)
	if os.IsNotExist(err) {
		r.mu.Lock()
		r.byRack = map[string]models.Device{}
		r.byID = map[string]models.Device{}
		r.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("read devices %q: %w", r.path, err)
	}

	var f devicesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse devices %q: %w", r.path, err)
	}

	byRack := make(map[string]models.Device, len(f.Devices))
	byID := make(map[string]models.Device, len(f.Devices))
	for _, d := range f.Devices {
		if d.Rack != "" {
			byRack[d.Rack] = d
		}
		if d.ID != "" {
			byID[d.ID] = d
		}
	}

	st, statErr := os.Stat(r.path)

	r.mu.Lock()
	r.byRack = byRack
	r.byID = byID
	if statErr == nil {
		r.modTime = st.ModTime()
	}
	r.mu.Unlock()
	return nil
}

// ReloadIfChanged reloads only when the file's mtime has advanced since the
// last successful load (spec §4.5: "reloaded on file-mtime change").
func (r *DeviceRegistry) ReloadIfChanged() error {
	if r.path == "" {
		return nil
	}
	st, err := os.Stat(r.path)
	if err != nil {
		return nil // missing file is not an error here; Reload already handled it
	}
	r.mu.RLock()
	changed := st.ModTime().After(r.modTime)
	r.mu.RUnlock()
	if !changed {
		return nil
	}
	return r.Reload()
}

// ByRack returns the device registered for rack, if any.
func (r *DeviceRegistry) ByRack(rack string) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byRack[rack]
	return d, ok
}

// ByID returns the device with the given id, if any.
func (r *DeviceRegistry) ByID(id string) (models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	return d, ok
}

// All returns every registered device.
func (r *DeviceRegistry) All() []models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Device, 0, len(r.byID))
	for _, d := range r.byID {
		out = append(out, d)
	}
	return out
}

// Upsert appends or updates an entry, deduping by ID or by
// (Host, Proto, Port), then persists the file and reloads the in-memory
// maps (spec §4.5 "approve_device").
func (r *DeviceRegistry) Upsert(d models.Device) error {
	r.mu.Lock()
	all := make([]models.Device, 0, len(r.byID)+1)
	for _, existing := range r.byID {
		all = append(all, existing)
	}
	r.mu.Unlock()

	matched := false
	for i := range all {
		if sameDevice(all[i], d) {
			all[i] = d
			matched = true
			break
		}
	}
	if !matched {
		all = append(all, d)
	}

	if err := r.save(all); err != nil {
		return err
	}
	return r.Reload()
}

// Remove deletes the entry with the given id, returning false if unknown
// (spec §4.5 "remove_device_entry").
func (r *DeviceRegistry) Remove(id string) (bool, error) {
	r.mu.RLock()
	_, ok := r.byID[id]
	all := make([]models.Device, 0, len(r.byID))
	for _, existing := range r.byID {
		all = append(all, existing)
	}
	r.mu.RUnlock()
	if !ok {
		return false, nil
	}

	kept := all[:0]
	for _, d := range all {
		if d.ID != id {
			kept = append(kept, d)
		}
	}

	if err := r.save(kept); err != nil {
		return false, err
	}
	return true, r.Reload()
}

func (r *DeviceRegistry) save(devices []models.Device) error {
	if r.path == "" {
		return nil
	}
	data, err := yaml.Marshal(devicesFile{Devices: devices})
	if err != nil {
		return fmt.Errorf("marshal devices: %w", err)
	}
	return os.WriteFile(r.path, data, 0o644)
}

func sameDevice(a, b models.Device) bool {
	if a.ID != "" && b.ID != "" && a.ID == b.ID {
		return true
	}
	return a.Host == b.Host && a.Proto == b.Proto && a.Port == b.Port
}
