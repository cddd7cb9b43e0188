package driver

import (
	"context"

	"github.com/pulseone-io/collector/pkg/model"
)

// Status is the driver's coarse lifecycle state, independent of the owning
// DeviceWorker's own state machine.
type Status uint8

const (
	StatusUninitialized Status = iota
	StatusInitialized
	StatusConnected
	StatusDisconnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "UNINITIALIZED"
	case StatusInitialized:
		return "INITIALIZED"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Statistics holds the counters requires from status reporting.
// Every field is a monotonically increasing count since driver construction.
type Statistics struct {
	ReadsOK int64
	ReadsFailed int64
	WritesOK int64
	WritesFailed int64
	ConnectCount int64
}

// Config carries the device's endpoint and protocol-specific properties.
// Properties is Device.Config as-is; DeviceWorker copies it without parsing.
type Config struct {
	DeviceID model.DeviceID
	Endpoint string
	Settings model.DeviceSettings
	// Properties holds the raw string values of Device.Config, e.g. the
	// Modbus RTU "unit_id".
	Properties map[string]string
}

// ProtocolDriver is the opaque per-device I/O contract. All
// operations are synchronous and may block up to the configured timeout;
// ctx carries that deadline so drivers can honor cancellation uniformly.
type ProtocolDriver interface {
	// Initialize validates endpoint and protocol properties. No I/O.
	Initialize(cfg Config) error

	// Connect establishes the session. Idempotent: calling Connect while
	// already connected returns nil without re-dialing.
	Connect(ctx context.Context) error

	// Disconnect tears the session down best-effort; always succeeds.
	Disconnect()

	// ReadValues performs a batch read, producing exactly one result per
	// input point in the same order. A point-level failure is represented
	// as quality=BAD on that result, not as a returned error; ReadValues
	// itself returns an error only when the whole session is lost.
	ReadValues(ctx context.Context, points []model.DataPoint) ([]model.TimestampedValue, error)

	// WriteValue writes a single value. Only valid when point.Writable.
	WriteValue(ctx context.Context, point model.DataPoint, value any) error

	Status() Status
	Statistics() Statistics
}

// Convert applies engineering-unit conversion (DataPoint.ToEngineering) and
// reports whether the result is in-range. The Modbus and BACnet drivers call
// DataPoint.ToEngineering directly from ReadValues for numeric points;
// ok=false means the caller should mark the result
// quality UNCERTAIN rather than BAD (the raw read itself succeeded).
func Convert(point model.DataPoint, raw float64) (float64, bool) {
	return point.ToEngineering(raw)
}
