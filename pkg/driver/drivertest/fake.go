// Package drivertest provides an in-memory ProtocolDriver double for tests
// in pkg/worker and pkg/workerfactory, so those packages don't need a real
// Modbus/MQTT/BACnet endpoint to exercise the scan/reconnect state machine.
package drivertest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulseone-io/collector/pkg/driver"
	"github.com/pulseone-io/collector/pkg/model"
)

// Fake is a scriptable ProtocolDriver. Values and errors are set by the
// test; Connect/ReadValues/WriteValue consult them under lock so tests can
// flip behavior mid-scenario (e.g. simulate a connection drop).
type Fake struct {
	mu sync.Mutex

	connectErr error
	readErr error
	writeErr error
	values map[int64]model.TimestampedValue

	status driver.Status
	connectCount atomic.Int64
	readCount atomic.Int64
	writeCount atomic.Int64
}

var _ driver.ProtocolDriver = (*Fake)(nil)

func New() *Fake {
	return &Fake{values: make(map[int64]model.TimestampedValue)}
}

func (f *Fake) SetConnectErr(err error) {
	f.mu.Lock()
	f.connectErr = err
	f.mu.Unlock()
}

func (f *Fake) SetReadErr(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *Fake) SetValue(pointID int64, v model.TimestampedValue) {
	f.mu.Lock()
	f.values[pointID] = v
	f.mu.Unlock()
}

func (f *Fake) ConnectCount() int64 { return f.connectCount.Load() }
func (f *Fake) ReadCount() int64 { return f.readCount.Load() }
func (f *Fake) WriteCount() int64 { return f.writeCount.Load() }

func (f *Fake) Initialize(cfg driver.Config) error {
	f.mu.Lock()
	f.status = driver.StatusInitialized
	f.mu.Unlock()
	return nil
}

func (f *Fake) Connect(ctx context.Context) error {
	f.connectCount.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		f.status = driver.StatusError
		return f.connectErr
	}
	f.status = driver.StatusConnected
	return nil
}

func (f *Fake) Disconnect() {
	f.mu.Lock()
	f.status = driver.StatusDisconnected
	f.mu.Unlock()
}

func (f *Fake) ReadValues(ctx context.Context, points []model.DataPoint) ([]model.TimestampedValue, error) {
	f.readCount.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	now := time.Now().UnixMilli()
	out := make([]model.TimestampedValue, len(points))
	for i, p := range points {
		if v, ok := f.values[p.ID]; ok {
			v.TimestampMs = now
			out[i] = v
			continue
		}
		out[i] = model.TimestampedValue{PointID: p.ID, Quality: model.QualityBad, TimestampMs: now, Source: "no value set"}
	}
	return out, nil
}

func (f *Fake) WriteValue(ctx context.Context, point model.DataPoint, value any) error {
	f.writeCount.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeErr
}

func (f *Fake) Status() driver.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *Fake) Statistics() driver.Statistics {
	return driver.Statistics{
		ReadsOK: f.readCount.Load(),
		ConnectCount: f.connectCount.Load(),
	}
}
