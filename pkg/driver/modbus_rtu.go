package driver

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goburrow/modbus"

	"github.com/pulseone-io/collector/pkg/model"
)

// ModbusRTU implements ProtocolDriver over serial Modbus RTU. Endpoint is
// the serial device path (e.g. "/dev/ttyUSB0"). The line settings are fixed
// at 9600 baud, 8 data bits, no parity, 1 stop bit; the only key read from
// Properties is "unit_id" (the slave id, default 1).
type ModbusRTU struct {
	base

	handler *modbus.RTUClientHandler
	client modbus.Client

	endpoint string
	timeout time.Duration
	unitID byte
}

var _ ProtocolDriver = (*ModbusRTU)(nil)

func NewModbusRTU() *ModbusRTU {
	return &ModbusRTU{}
}

func (d *ModbusRTU) Initialize(cfg Config) error {
	entity := fmt.Sprintf("device:%d", cfg.DeviceID)
	if cfg.Endpoint == "" {
		return model.NewConfigInvalidError(entity, "endpoint must not be empty for MODBUS_RTU")
	}
	d.endpoint = cfg.Endpoint
	d.timeout = time.Duration(cfg.Settings.ReadTimeoutMs) * time.Millisecond
	if d.timeout <= 0 {
		d.timeout = 5 * time.Second
	}
	d.unitID = 1
	if v, ok := cfg.Properties["unit_id"]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return model.NewConfigInvalidError(entity, "unit_id must be an integer")
		}
		d.unitID = byte(n)
	}
	d.setStatus(StatusInitialized)
	return nil
}

func (d *ModbusRTU) Connect(ctx context.Context) error {
	if d.getStatus() == StatusConnected {
		return nil
	}
	handler := modbus.NewRTUClientHandler(d.endpoint)
	handler.BaudRate = 9600
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.SlaveId = d.unitID
	handler.Timeout = d.timeout
	if err := handler.Connect(); err != nil {
		d.setStatus(StatusError)
		return fmt.Errorf("modbus rtu connect %s: %w", d.endpoint, ErrUnreachable)
	}
	d.handler = handler
	d.client = modbus.NewClient(handler)
	d.recordConnect()
	d.setStatus(StatusConnected)
	return nil
}

func (d *ModbusRTU) Disconnect() {
	if d.handler != nil {
		_ = d.handler.Close()
	}
	d.setStatus(StatusDisconnected)
}

func (d *ModbusRTU) ReadValues(ctx context.Context, points []model.DataPoint) ([]model.TimestampedValue, error) {
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
		raw, err := d.client.ReadHoldingRegisters(addr, registerCount(p.DataType))
		if err != nil {
			results[i] = badResult(p.ID, now, fmt.Sprintf("read register %d: %v", addr, ErrTimeout))
			d.recordRead(false)
			continue
		}
		value := decodeRegisters(p.DataType, raw)
		quality := model.QualityGood
		if p.DataType.IsNumeric() {
			var ok bool
			value, ok = p.ToEngineering(value)
			if !ok {
				quality = model.QualityUncertain
			}
		}
		results[i] = model.TimestampedValue{PointID: p.ID, Value: value, Quality: quality, TimestampMs: now, Source: "modbus_rtu"}
		d.recordRead(true)
	}
	return results, nil
}

func (d *ModbusRTU) WriteValue(ctx context.Context, point model.DataPoint, value any) error {
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

func registerCount(dt model.DataType) uint16 {
	switch dt {
	case model.DataTypeInt32, model.DataTypeUint32, model.DataTypeFloat32:
		return 2
	case model.DataTypeFloat64:
		return 4
	default:
		return 1
	}
}
