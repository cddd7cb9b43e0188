package driver

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/pulseone-io/collector/pkg/model"
)

// MQTT implements ProtocolDriver over a publish/subscribe broker. Since MQTT
// is push-based rather than request/response, ReadValues does not perform
// I/O itself: Subscribe subscribes to DataPoint.Address (the point's topic)
// for every point it is given and the latest payload is cached; ReadValues returns
// the cached value, marking quality BAD for points with no message yet.
// DataPoint.ProtocolParams["qos"] selects QoS (default 0).
type MQTT struct {
	base

	client mqtt.Client

	endpoint string
	timeout time.Duration

	mu sync.Mutex
	latest map[string]model.TimestampedValue // keyed by topic
}

var _ ProtocolDriver = (*MQTT)(nil)

func NewMQTT() *MQTT {
	return &MQTT{latest: make(map[string]model.TimestampedValue)}
}

func (d *MQTT) Initialize(cfg Config) error {
	if cfg.Endpoint == "" {
		return model.NewConfigInvalidError(fmt.Sprintf("device:%d", cfg.DeviceID), "endpoint must not be empty for MQTT")
	}
	d.endpoint = cfg.Endpoint
	d.timeout = time.Duration(cfg.Settings.ConnectionTimeoutMs) * time.Millisecond
	if d.timeout <= 0 {
		d.timeout = 10 * time.Second
	}
	d.setStatus(StatusInitialized)
	return nil
}

func (d *MQTT) Connect(ctx context.Context) error {
	if d.getStatus() == StatusConnected {
		return nil
	}
	opts := mqtt.NewClientOptions().
	AddBroker(d.endpoint).
	SetConnectTimeout(d.timeout).
	SetAutoReconnect(false). // reconnection is DeviceWorker's responsibility, not the client's
	SetDefaultPublishHandler(d.onMessage)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(d.timeout) || token.Error() != nil {
		d.setStatus(StatusError)
		return fmt.Errorf("mqtt connect %s: %w", d.endpoint, ErrUnreachable)
	}
	d.client = client
	d.recordConnect()
	d.setStatus(StatusConnected)
	return nil
}

func (d *MQTT) Disconnect() {
	if d.client != nil && d.client.IsConnected() {
		d.client.Disconnect(250)
	}
	d.setStatus(StatusDisconnected)
}

// Subscribe subscribes to every point's topic. DeviceWorker calls this once
// after Connect, with the points snapshot for the scan cycle.
func (d *MQTT) Subscribe(points []model.DataPoint) error {
	for _, p := range points {
		qos := byte(0)
		if v, ok := p.ProtocolParams["qos"]; ok {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 2 {
				qos = byte(n)
			}
		}
		token := d.client.Subscribe(p.Address, qos, d.onMessage)
		if !token.WaitTimeout(d.timeout) || token.Error() != nil {
			return fmt.Errorf("mqtt subscribe %s: %w", p.Address, ErrUnreachable)
		}
	}
	return nil
}

func (d *MQTT) onMessage(client mqtt.Client, msg mqtt.Message) {
	d.mu.Lock()
	d.latest[msg.Topic()] = model.TimestampedValue{
		Value: string(msg.Payload()),
		Quality: model.QualityGood,
		TimestampMs: time.Now().UnixMilli(),
		Source: "mqtt",
	}
	d.mu.Unlock()
}

func (d *MQTT) ReadValues(ctx context.Context, points []model.DataPoint) ([]model.TimestampedValue, error) {
	if d.getStatus() != StatusConnected {
		return nil, ErrNotConnected
	}
	now := time.Now().UnixMilli()
	results := make([]model.TimestampedValue, len(points))
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range points {
		cached, ok := d.latest[p.Address]
		if !ok {
			results[i] = badResult(p.ID, now, "no message received on "+p.Address)
			d.recordRead(false)
			continue
		}
		cached.PointID = p.ID
		results[i] = cached
		d.recordRead(true)
	}
	return results, nil
}

func (d *MQTT) WriteValue(ctx context.Context, point model.DataPoint, value any) error {
	if !point.Writable {
		return ErrNotWritable
	}
	if d.getStatus() != StatusConnected {
		return ErrNotConnected
	}
	token := d.client.Publish(point.Address, 0, false, fmt.Sprintf("%v", value))
	if !token.WaitTimeout(d.timeout) || token.Error() != nil {
		d.recordWrite(false)
		return fmt.Errorf("mqtt publish %s: %w", point.Address, ErrTimeout)
	}
	d.recordWrite(true)
	return nil
}
