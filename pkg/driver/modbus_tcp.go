package driver

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/goburrow/modbus"

	"github.com/pulseone-io/collector/pkg/model"
)

// ModbusTCP implements ProtocolDriver over Modbus TCP. Addresses are
// zero-based register numbers; DataPoint.ProtocolParams["function"] selects
// "holding" (default) or "input" registers. The slave id is always 1; no
// unit_id setting is read.
type ModbusTCP struct {
	base

	handler *modbus.TCPClientHandler
	client modbus.Client

	endpoint string
	timeout time.Duration
}

var _ ProtocolDriver = (*ModbusTCP)(nil)

func NewModbusTCP() *ModbusTCP {
	return &ModbusTCP{}
}

func (d *ModbusTCP) Initialize(cfg Config) error {
	if cfg.Endpoint == "" {
		return model.NewConfigInvalidError(fmt.Sprintf("device:%d", cfg.DeviceID), "endpoint must not be empty for MODBUS_TCP")
	}
	d.endpoint = cfg.Endpoint
	d.timeout = time.Duration(cfg.Settings.ReadTimeoutMs) * time.Millisecond
	if d.timeout <= 0 {
		d.timeout = 5 * time.Second
	}
	d.setStatus(StatusInitialized)
	return nil
}

func (d *ModbusTCP) Connect(ctx context.Context) error {
	if d.getStatus() == StatusConnected {
		return nil
	}
	handler := modbus.NewTCPClientHandler(d.endpoint)
	handler.Timeout = d.timeout
	handler.SlaveId = 1
	if err := handler.Connect(); err != nil {
		d.setStatus(StatusError)
		return fmt.Errorf("modbus tcp connect %s: %w", d.endpoint, ErrUnreachable)
	}
	d.handler = handler
	d.client = modbus.NewClient(handler)
	d.recordConnect()
	d.setStatus(StatusConnected)
	return nil
}

func (d *ModbusTCP) Disconnect() {
	if d.handler != nil {
		_ = d.handler.Close()
	}
	d.setStatus(StatusDisconnected)
}

func (d *ModbusTCP) ReadValues(ctx context.Context, points []model.DataPoint) ([]model.TimestampedValue, error) {
	if d.getStatus() != StatusConnected {
		return nil, ErrNotConnected
	}
	now := time.Now().UnixMilli()
	results := make([]model.TimestampedValue, len(points))
	for i, p := range points {
		addr, err := modbusAddress(p)
		if err != nil {
			results[i] = badResult(p.ID, now, err.Error())
			d.recordRead(false)
			continue
		}
		raw, rerr := d.readRegister(p, addr)
		if rerr != nil {
			results[i] = badResult(p.ID, now, rerr.Error())
			d.recordRead(false)
			continue
		}
		quality := model.QualityGood
		value := raw
		if p.DataType.IsNumeric() {
			eng, ok := p.ToEngineering(raw)
			value = eng
			if !ok {
				quality = model.QualityUncertain
			}
		}
		results[i] = model.TimestampedValue{
			PointID: p.ID,
			Value: value,
			Quality: quality,
			TimestampMs: now,
			Source: "modbus_tcp",
		}
		d.recordRead(true)
	}
	return results, nil
}

func (d *ModbusTCP) readRegister(p model.DataPoint, addr uint16) (float64, error) {
	function := p.ProtocolParams["function"]
	var read func(address, quantity uint16) ([]byte, error)
	switch function {
	case "input":
		read = d.client.ReadInputRegisters
	default:
		read = d.client.ReadHoldingRegisters
	}

	quantity := uint16(1)
	if p.DataType == model.DataTypeInt32 || p.DataType == model.DataTypeUint32 || p.DataType == model.DataTypeFloat32 {
		quantity = 2
	} else if p.DataType == model.DataTypeFloat64 {
		quantity = 4
	}

	raw, err := read(addr, quantity)
	if err != nil {
		return 0, fmt.Errorf("read register %d: %w", addr, ErrTimeout)
	}
	return decodeRegisters(p.DataType, raw), nil
}

func (d *ModbusTCP) WriteValue(ctx context.Context, point model.DataPoint, value any) error {
	if !point.Writable {
		return ErrNotWritable
	}
	if d.getStatus() != StatusConnected {
		return ErrNotConnected
	}
	addr, err := modbusAddress(point)
	if err != nil {
		return err
	}
	f, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("write value %v: %w", value, ErrRange)
	}
	raw := uint16(int64((f - point.ScalingOffset) / point.ScalingFactor))
	if _, err := d.client.WriteSingleRegister(addr, raw); err != nil {
		d.recordWrite(false)
		return fmt.Errorf("write register %d: %w", addr, ErrTimeout)
	}
	d.recordWrite(true)
	return nil
}

func modbusAddress(p model.DataPoint) (uint16, error) {
	var addr int
	if _, err := fmt.Sscanf(p.Address, "%d", &addr); err != nil {
		return 0, fmt.Errorf("point %d: invalid modbus address %q", p.ID, p.Address)
	}
	return uint16(addr), nil
}

func decodeRegisters(dt model.DataType, raw []byte) float64 {
	switch dt {
	case model.DataTypeInt32:
		if len(raw) >= 4 {
			return float64(int32(binary.BigEndian.Uint32(raw)))
		}
	case model.DataTypeUint32:
		if len(raw) >= 4 {
			return float64(binary.BigEndian.Uint32(raw))
		}
	case model.DataTypeFloat32:
		if len(raw) >= 4 {
			return float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
		}
	case model.DataTypeFloat64:
		if len(raw) >= 8 {
			return math.Float64frombits(binary.BigEndian.Uint64(raw))
		}
	default:
		if len(raw) >= 2 {
			return float64(binary.BigEndian.Uint16(raw))
		}
	}
	return 0
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	}
	return 0, false
}

func badResult(pointID int64, ts int64, reason string) model.TimestampedValue {
	return model.TimestampedValue{
		PointID: pointID,
		Value: nil,
		Quality: model.QualityBad,
		TimestampMs: ts,
		Source: reason,
	}
}
