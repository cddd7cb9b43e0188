package model

import (
	"fmt"
	"math"
)

// DataPoint describes one field value polled from a device.
type DataPoint struct {
	ID int64
	DeviceID DeviceID
	Name string

	// Address is the protocol address. Most protocols use an integer
	// register/object address; MQTT uses a topic suffix, hence string.
	Address string

	DataType DataType
	Unit string

	ScalingFactor float64 // != 0
	ScalingOffset float64
	MinValue float64 // may be -Inf
	MaxValue float64 // may be +Inf
	Deadband float64 // >= 0

	Writable bool
	Enabled bool

	// ProtocolParams holds protocol-specific read/write hints, e.g.
	// Modbus function code or MQTT QoS.
	ProtocolParams map[string]string
}

// Validate checks the invariants places on DataPoint.
func (p DataPoint) Validate() error {
	entity := fmt.Sprintf("point:%d", p.ID)
	if p.Name == "" {
		return NewConfigInvalidError(entity, "name must not be empty")
	}
	if p.ScalingFactor == 0 {
		return NewConfigInvalidError(entity, "scaling_factor must not be 0")
	}
	if p.MinValue > p.MaxValue {
		return NewConfigInvalidError(entity, "min_value must be <= max_value")
	}
	if p.Deadband < 0 {
		return NewConfigInvalidError(entity, "deadband must be >= 0")
	}
	switch p.DataType {
		case DataTypeBool, DataTypeInt16, DataTypeUint16, DataTypeInt32, DataTypeUint32,
		DataTypeFloat32, DataTypeFloat64, DataTypeString:
	default:
		return NewConfigInvalidError(entity, "unknown data_type "+string(p.DataType))
	}
	return nil
}

// ToEngineering converts a raw numeric reading to engineering units:
// engineering = raw*scaling_factor + scaling_offset, clamped to
// [min_value, max_value] when both bounds are finite. Values clamped come
// back with ok=false so the caller can mark the sample UNCERTAIN; when
// either bound is infinite no range check is made and ok is true.
func (p DataPoint) ToEngineering(raw float64) (value float64, ok bool) {
	eng := raw*p.ScalingFactor + p.ScalingOffset
	if !math.IsInf(p.MinValue, 0) && !math.IsInf(p.MaxValue, 0) {
		if eng < p.MinValue {
			return p.MinValue, false
		}
		if eng > p.MaxValue {
			return p.MaxValue, false
		}
	}
	return eng, true
}

// TimestampedValue is one sample of a point, as produced by a scan or a
// virtual-point evaluation.
type TimestampedValue struct {
	PointID int64

	// Value holds a bool, int64, float64, or string — the DataPoint's
	// DataType says which. nil represents "no value" (e.g. BAD quality
	// with nothing to report).
	Value any

	Quality Quality

	// TimestampMs is milliseconds since the Unix epoch.
	TimestampMs int64

	// Source names where the value came from, e.g. the protocol name or
	// "virtual_point_engine".
	Source string

	// ValueChanged is true iff this sample differs from the previous one
	// per the value-changed rule in step 3.
	ValueChanged bool
}

// AsFloat64 returns the value coerced to float64, for numeric comparisons
// (deadband, alarm thresholds, formula inputs). A bool maps to 1 or 0. ok
// is false for nil and for any string (numeric strings are not parsed).
func (v TimestampedValue) AsFloat64() (f float64, ok bool) {
	switch x := v.Value.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// DeviceDataMessage is the outcome of one scan cycle for one device,
// submitted to the pipeline.
type DeviceDataMessage struct {
	Type string // always "device_data"
	DeviceID DeviceID
	Protocol Protocol
	Timestamp int64 // ms since epoch, the device's monotonic scan timestamp
	Priority int
	Points []TimestampedValue
}

// NewDeviceDataMessage builds a DeviceDataMessage with Type pre-filled.
func NewDeviceDataMessage(deviceID DeviceID, protocol Protocol, timestampMs int64, points []TimestampedValue) DeviceDataMessage {
	return DeviceDataMessage{
		Type: "device_data",
		DeviceID: deviceID,
		Protocol: protocol,
		Timestamp: timestampMs,
		Points: points,
	}
}
