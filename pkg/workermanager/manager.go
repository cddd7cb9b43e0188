package workermanager

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/telemetry"
	"github.com/pulseone-io/collector/pkg/worker"
)

// DefaultStopTimeout bounds how long Stop waits for a worker's tasks to
// join, per .
const DefaultStopTimeout = 5 * time.Second

// Factory builds a DeviceWorker from a Device entity. workerfactory.Factory
// satisfies this.
type Factory interface {
	Build(device model.Device) (*worker.DeviceWorker, error)
}

// DeviceStore is the subset of ConfigStore WorkerManager reads
// from to (re)load device definitions.
type DeviceStore interface {
	FindDeviceByID(id model.DeviceID) (model.Device, error)
}

type entry struct {
	w *worker.DeviceWorker
	restartedAt time.Time
}

// Manager is the process-wide DeviceWorker registry.
type Manager struct {
	mu sync.Mutex
	workers map[model.DeviceID]*entry

	factory Factory
	devices DeviceStore
	logger telemetry.Logger
}

// New constructs a Manager. factory builds workers; devices resolves
// device entities by id.
func New(factory Factory, devices DeviceStore, logger telemetry.Logger) *Manager {
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Manager{
		workers: make(map[model.DeviceID]*entry),
		factory: factory,
		devices: devices,
		logger: logger,
	}
}

// Start creates (via the factory) and starts the worker for device_id.
// Returns true even if the initial connect fails, as long as the worker
// object is created and its reconnect task is running.
func (m *Manager) Start(id model.DeviceID) bool {
	m.mu.Lock()
	if _, exists := m.workers[id]; exists {
		m.mu.Unlock()
		return true
	}
	m.mu.Unlock()

	device, err := m.devices.FindDeviceByID(id)
	if err != nil {
		m.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryConfigStore, DeviceID: id.String(), Message: "device lookup failed", Err: err})
		return false
	}

	w, err := m.factory.Build(device)
	if err != nil {
		m.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryWorkerState, DeviceID: id.String(), Message: "worker build rejected", Err: err})
		return false
	}

	if err := w.Start(context.Background()); err != nil {
		m.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryWorkerState, DeviceID: id.String(), Message: "worker start rejected", Err: err})
		return false
	}

	m.mu.Lock()
	m.workers[id] = &entry{w: w, restartedAt: time.Now()}
	m.mu.Unlock()
	return true
}

// Stop signals the worker's tasks and joins them within DefaultStopTimeout,
// then removes it from the registry.
func (m *Manager) Stop(id model.DeviceID) error {
	m.mu.Lock()
	e, exists := m.workers[id]
	if exists {
		delete(m.workers, id)
	}
	m.mu.Unlock()

	if !exists {
		return fmt.Errorf("device %d: no running worker", id)
	}
	return e.w.Stop(DefaultStopTimeout)
}

// StopAll stops every registered worker, used during graceful shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]model.DeviceID, 0, len(m.workers))
	for id := range m.workers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Stop(id); err != nil {
			m.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryWorkerState, DeviceID: id.String(), Message: "stop during shutdown failed", Err: err})
		}
	}
}

// Restart reloads the device from the configuration store, then reuses the
// existing live worker if one is running (applying the new settings to it)
// or creates one if none exists. worker_restarted_at always advances, even
// when the end state is unchanged, satisfying idempotence
// invariant.
func (m *Manager) Restart(id model.DeviceID) bool {
	device, err := m.devices.FindDeviceByID(id)
	if err != nil {
		m.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryConfigStore, DeviceID: id.String(), Message: "device lookup failed", Err: err})
		return false
	}

	m.mu.Lock()
	e, exists := m.workers[id]
	m.mu.Unlock()

	if exists {
		e.w.Restart(device)
		m.mu.Lock()
		e.restartedAt = time.Now()
		m.mu.Unlock()
		return true
	}

	return m.Start(id)
}

// Has reports whether device_id has a registered worker.
func (m *Manager) Has(id model.DeviceID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workers[id]
	return ok
}

// Status is the JSON-serializable snapshot backing
// `worker:<device_id>:status` cache key and the operator console's status
// command.
type Status struct {
	DeviceID model.DeviceID `json:"device_id"`
	State string `json:"state"`
	WorkerRestartedAt time.Time `json:"worker_restarted_at"`
}

// Status returns the JSON-encoded status snapshot for device_id.
func (m *Manager) Status(id model.DeviceID) ([]byte, error) {
	m.mu.Lock()
	e, exists := m.workers[id]
	m.mu.Unlock()
	if !exists {
		return nil, fmt.Errorf("device %d: no registered worker", id)
	}
	return json.Marshal(Status{
		DeviceID: id,
		State: e.w.State().String(),
		WorkerRestartedAt: e.restartedAt,
	})
}

// Reconcile diffs the enabled device ids in enabledIDs against the registry:
// newly enabled devices are started, devices no longer present are stopped.
// This is the manager's hot-reload path; cmd/collector calls it at bootstrap
// and from its polling reconcile loop.
func (m *Manager) Reconcile(enabledIDs []model.DeviceID) {
	want := make(map[model.DeviceID]bool, len(enabledIDs))
	for _, id := range enabledIDs {
		want[id] = true
		if !m.Has(id) {
			m.Start(id)
		}
	}

	m.mu.Lock()
	var toStop []model.DeviceID
	for id := range m.workers {
		if !want[id] {
			toStop = append(toStop, id)
		}
	}
	m.mu.Unlock()

	for _, id := range toStop {
		if err := m.Stop(id); err != nil {
			m.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryWorkerState, DeviceID: id.String(), Message: "reconcile stop failed", Err: err})
		}
	}
}
