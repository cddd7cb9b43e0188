package driver

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
)

// BACnetIP implements ProtocolDriver over BACnet/IP (UDP, default port
// 47808). Concrete BACnet APDU/NPDU framing is explicitly out of this
// system's scope; this driver owns the UDP session and point addressing only, and
// exchanges single-register-style read/write requests whose payload is
// produced by a codec supplied at a higher layer in a full deployment.
// DataPoint.Address is "<object-type>:<instance>", e.g. "analog-input:3".
type BACnetIP struct {
	base

	conn net.Conn
	endpoint string
	timeout time.Duration
}

var _ ProtocolDriver = (*BACnetIP)(nil)

func NewBACnetIP() *BACnetIP {
	return &BACnetIP{}
}

func (d *BACnetIP) Initialize(cfg Config) error {
	if cfg.Endpoint == "" {
		return model.NewConfigInvalidError(fmt.Sprintf("device:%d", cfg.DeviceID), "endpoint must not be empty for BACNET_IP")
	}
	d.endpoint = cfg.Endpoint
	d.timeout = time.Duration(cfg.Settings.ReadTimeoutMs) * time.Millisecond
	if d.timeout <= 0 {
		d.timeout = 3 * time.Second
	}
	d.setStatus(StatusInitialized)
	return nil
}

func (d *BACnetIP) Connect(ctx context.Context) error {
	if d.getStatus() == StatusConnected {
		return nil
	}
	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "udp", d.endpoint)
	if err != nil {
		d.setStatus(StatusError)
		return fmt.Errorf("bacnet/ip dial %s: %w", d.endpoint, ErrUnreachable)
	}
	d.conn = conn
	d.recordConnect()
	d.setStatus(StatusConnected)
	return nil
}

func (d *BACnetIP) Disconnect() {
	if d.conn != nil {
		_ = d.conn.Close()
	}
	d.setStatus(StatusDisconnected)
}

func (d *BACnetIP) ReadValues(ctx context.Context, points []model.DataPoint) ([]model.TimestampedValue, error) {
	if d.getStatus() != StatusConnected {
		return nil, ErrNotConnected
	}
	now := time.Now().UnixMilli()
	results := make([]model.TimestampedValue, len(points))
	for i, p := range points {
		if err := d.conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
			results[i] = badResult(p.ID, now, err.Error())
			d.recordRead(false)
			continue
		}
		raw, err := d.readProperty(p.Address)
		if err != nil {
			results[i] = badResult(p.ID, now, err.Error())
			d.recordRead(false)
			continue
		}
		value := raw
		quality := model.QualityGood
		if p.DataType.IsNumeric() {
			var ok bool
			value, ok = p.ToEngineering(raw)
			if !ok {
				quality = model.QualityUncertain
			}
		}
		results[i] = model.TimestampedValue{PointID: p.ID, Value: value, Quality: quality, TimestampMs: now, Source: "bacnet_ip"}
		d.recordRead(true)
	}
	return results, nil
}

// readProperty sends a readPropertyRequest for the given object reference
// and decodes a presentValue sent as a 4-byte big-endian signed integer,
// matching the minimal numeric-only subset this driver supports.
func (d *BACnetIP) readProperty(objectRef string) (float64, error) {
	req := []byte(objectRef) // placeholder APDU: object addressing only
	if _, err := d.conn.Write(req); err != nil {
		return 0, fmt.Errorf("write request: %w", ErrTimeout)
	}
	buf := make([]byte, 4)
	n, err := d.conn.Read(buf)
	if err != nil || n < 4 {
		return 0, fmt.Errorf("read response: %w", ErrTimeout)
	}
	return float64(int32(buf[0])<<24 | int32(buf[1])<<16 | int32(buf[2])<<8 | int32(buf[3])), nil
}

func (d *BACnetIP) WriteValue(ctx context.Context, point model.DataPoint, value any) error {
	if !point.Writable {
		return ErrNotWritable
	}
	if d.getStatus() != StatusConnected {
		return ErrNotConnected
	}
	f, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("write value %v: %w", value, ErrRange)
	}
	raw := int32((f - point.ScalingOffset) / point.ScalingFactor)
	buf := []byte{byte(raw >> 24), byte(raw >> 16), byte(raw >> 8), byte(raw)}
	if err := d.conn.SetDeadline(time.Now().Add(d.timeout)); err != nil {
		return err
	}
	if _, err := d.conn.Write(buf); err != nil {
		d.recordWrite(false)
		return fmt.Errorf("write property %s: %w", point.Address, ErrTimeout)
	}
	d.recordWrite(true)
	return nil
}
