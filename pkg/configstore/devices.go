package configstore

import (
	"encoding/json"
	"fmt"

	"github.com/pulseone-io/collector/pkg/model"
)

// FindAllDevices returns every device row, enabled or not — callers that
// only want active devices (cmd/collector, before WorkerManager.Reconcile)
// filter on Enabled.
func (s *Store) FindAllDevices() ([]model.Device, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, name, protocol, endpoint, enabled, config_json,
		polling_interval_ms, connection_timeout_ms, read_timeout_ms, write_timeout_ms,
		max_retry_count, retry_interval_ms, backoff_multiplier, backoff_time_ms, max_backoff_time_ms,
		keep_alive_enabled, keep_alive_interval_s, keep_alive_timeout_s
		FROM devices
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

// FindDeviceByID returns a single device, or (zero, false, nil) if absent.
func (s *Store) FindDeviceByID(id model.DeviceID) (model.Device, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, name, protocol, endpoint, enabled, config_json,
		polling_interval_ms, connection_timeout_ms, read_timeout_ms, write_timeout_ms,
		max_retry_count, retry_interval_ms, backoff_multiplier, backoff_time_ms, max_backoff_time_ms,
		keep_alive_enabled, keep_alive_interval_s, keep_alive_timeout_s
		FROM devices WHERE id = ?
	`, int64(id))

	d, err := scanDevice(row)
	if err == errNoRows {
		return model.Device{}, false, nil
	}
	if err != nil {
		return model.Device{}, false, err
	}
	return d, true, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(sc scanner) (model.Device, error) {
	var d model.Device
	var id int64
	var protocol string
	var enabled int
	var configJSON string
	var keepAliveEnabled int

	err := sc.Scan(
		&id, &d.Name, &protocol, &d.Endpoint, &enabled, &configJSON,
		&d.Settings.PollingIntervalMs, &d.Settings.ConnectionTimeoutMs, &d.Settings.ReadTimeoutMs, &d.Settings.WriteTimeoutMs,
		&d.Settings.MaxRetryCount, &d.Settings.RetryIntervalMs, &d.Settings.BackoffMultiplier, &d.Settings.BackoffTimeMs, &d.Settings.MaxBackoffTimeMs,
		&keepAliveEnabled, &d.Settings.KeepAliveIntervalS, &d.Settings.KeepAliveTimeoutS,
	)
	if err != nil {
		return model.Device{}, translateScanErr(err)
	}

	d.ID = model.DeviceID(id)
	d.Protocol = model.Protocol(protocol)
	d.Enabled = enabled != 0
	d.Settings.KeepAliveEnabled = keepAliveEnabled != 0

	if configJSON != "" {
		if err := json.Unmarshal([]byte(configJSON), &d.Config); err != nil {
			return model.Device{}, fmt.Errorf("device %d: decode config_json: %w", id, err)
		}
	}
	return d, nil
}
