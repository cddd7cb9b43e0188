package model

import "fmt"

// DeviceID is the stable integer identifier assigned by the configuration
// store. Cache keys use its decimal string form.
type DeviceID int64

// String renders the id for use in cache keys.
func (id DeviceID) String() string {
	return fmt.Sprintf("%d", int64(id))
}

// Device describes one field device as read from the configuration store.
type Device struct {
	ID DeviceID
	Name string
	Protocol Protocol
	Endpoint string
	Enabled bool

	// Config holds protocol-specific properties, e.g. "slave_id": "3" for
	// Modbus or "topic_prefix": "site/a" for MQTT. DeviceWorker passes the
	// map unchanged to the driver as driver.Config.Properties; no typed
	// parsing or key check happens before the driver's Initialize, and the
	// only key a driver reads is "unit_id" (ModbusRTU).
	Config map[string]string

	Settings DeviceSettings
}

// DeviceSettings controls a device's scan cadence, timeouts, and
// reconnection policy.
type DeviceSettings struct {
	PollingIntervalMs int64
	ConnectionTimeoutMs int64
	ReadTimeoutMs int64
	WriteTimeoutMs int64
	MaxRetryCount int // 0 = unbounded
	RetryIntervalMs int64
	BackoffMultiplier float64 // >= 1.0
	BackoffTimeMs int64
	MaxBackoffTimeMs int64

	KeepAliveEnabled bool
	KeepAliveIntervalS int64
	KeepAliveTimeoutS int64
}

// Validate checks the invariants places on DeviceSettings.
func (s DeviceSettings) Validate() error {
	if s.PollingIntervalMs <= 0 {
		return NewConfigInvalidError("device_settings", "polling_interval_ms must be > 0")
	}
	if s.ConnectionTimeoutMs <= 0 {
		return NewConfigInvalidError("device_settings", "connection_timeout_ms must be > 0")
	}
	if s.ReadTimeoutMs <= 0 {
		return NewConfigInvalidError("device_settings", "read_timeout_ms must be > 0")
	}
	if s.WriteTimeoutMs <= 0 {
		return NewConfigInvalidError("device_settings", "write_timeout_ms must be > 0")
	}
	if s.MaxRetryCount < 0 {
		return NewConfigInvalidError("device_settings", "max_retry_count must be >= 0")
	}
	if s.RetryIntervalMs <= 0 {
		return NewConfigInvalidError("device_settings", "retry_interval_ms must be > 0")
	}
	if s.BackoffMultiplier < 1.0 {
		return NewConfigInvalidError("device_settings", "backoff_multiplier must be >= 1.0")
	}
	if s.BackoffTimeMs <= 0 {
		return NewConfigInvalidError("device_settings", "backoff_time_ms must be > 0")
	}
	if s.MaxBackoffTimeMs <= 0 {
		return NewConfigInvalidError("device_settings", "max_backoff_time_ms must be > 0")
	}
	if s.RetryIntervalMs > s.MaxBackoffTimeMs {
		return NewConfigInvalidError("device_settings", "retry_interval_ms must be <= max_backoff_time_ms")
	}
	if s.KeepAliveEnabled {
		if s.KeepAliveIntervalS <= 0 {
			return NewConfigInvalidError("device_settings", "keep_alive_interval_s must be > 0 when enabled")
		}
		if s.KeepAliveTimeoutS <= 0 {
			return NewConfigInvalidError("device_settings", "keep_alive_timeout_s must be > 0 when enabled")
		}
	}
	return nil
}

// Validate checks a Device and its settings.
func (d Device) Validate() error {
	if d.Name == "" {
		return NewConfigInvalidError(fmt.Sprintf("device:%d", d.ID), "name must not be empty")
	}
	switch d.Protocol {
	case ProtocolModbusTCP, ProtocolModbusRTU, ProtocolMQTT, ProtocolBACnetIP:
	default:
		return NewConfigInvalidError(fmt.Sprintf("device:%d", d.ID), "unknown protocol "+string(d.Protocol))
	}
	if d.Endpoint == "" {
		return NewConfigInvalidError(fmt.Sprintf("device:%d", d.ID), "endpoint must not be empty")
	}
	if err := d.Settings.Validate(); err != nil {
		return fmt.Errorf("device:%d: %w", d.ID, err)
	}
	return nil
}
