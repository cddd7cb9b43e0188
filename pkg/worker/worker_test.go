package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pulseone-io/collector/pkg/driver/drivertest"
	"github.com/pulseone-io/collector/pkg/model"
)

type memPoints struct {
	points []model.DataPoint
}

func (m *memPoints) DataPointsForDevice(model.DeviceID) ([]model.DataPoint, error) {
	return m.points, nil
}

type memValues struct {
	mu sync.Mutex
	m map[int64]model.TimestampedValue
}

func newMemValues() *memValues { return &memValues{m: make(map[int64]model.TimestampedValue)} }

func (s *memValues) Get(id int64) (model.TimestampedValue, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[id]
	return v, ok
}

func (s *memValues) Set(id int64, v model.TimestampedValue) {
	s.mu.Lock()
	s.m[id] = v
	s.mu.Unlock()
}

type memPipeline struct {
	mu sync.Mutex
	messages []model.DeviceDataMessage
}

func (p *memPipeline) Submit(msg model.DeviceDataMessage) bool {
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	return true
}

func (p *memPipeline) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func testDevice() model.Device {
	return model.Device{
		ID: 1, Name: "d1", Protocol: model.ProtocolModbusTCP, Endpoint: "localhost:502", Enabled: true,
		Settings: model.DeviceSettings{
			PollingIntervalMs: 20, ConnectionTimeoutMs: 200, ReadTimeoutMs: 200, WriteTimeoutMs: 200,
			MaxRetryCount: 3, RetryIntervalMs: 10, BackoffMultiplier: 2, BackoffTimeMs: 10, MaxBackoffTimeMs: 100,
		},
	}
}

func TestWorkerStartSucceedsEvenIfFirstConnectFails(t *testing.T) {
	fake := drivertest.New()
	fake.SetConnectErr(context.DeadlineExceeded)

	w, err := New(Config{Device: testDevice(), Driver: fake, Points: &memPoints{}, Values: newMemValues(), Pipeline: &memPipeline{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v, want nil even on failed first connect", err)
	}
	if w.State() != StateReconnecting {
		t.Fatalf("State() = %v, want RECONNECTING", w.State())
	}
	w.Stop(time.Second)
}

func TestWorkerReconnectsToRunning(t *testing.T) {
	fake := drivertest.New()
	fake.SetConnectErr(context.DeadlineExceeded)

	w, _ := New(Config{Device: testDevice(), Driver: fake, Points: &memPoints{}, Values: newMemValues(), Pipeline: &memPipeline{}})
	w.Start(context.Background())

	fake.SetConnectErr(nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.State() == StateRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if w.State() != StateRunning {
		t.Fatalf("State() = %v, want RUNNING after reconnect succeeds", w.State())
	}
	w.Stop(time.Second)
}

func TestWorkerExceedsMaxRetryGoesOffline(t *testing.T) {
	fake := drivertest.New()
	fake.SetConnectErr(context.DeadlineExceeded)

	device := testDevice()
	device.Settings.MaxRetryCount = 2
	device.Settings.RetryIntervalMs = 5
	device.Settings.MaxBackoffTimeMs = 10

	w, _ := New(Config{Device: device, Driver: fake, Points: &memPoints{}, Values: newMemValues(), Pipeline: &memPipeline{}})
	w.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if w.State() == StateDeviceOffline {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if w.State() != StateDeviceOffline {
		t.Fatalf("State() = %v, want DEVICE_OFFLINE after exceeding max_retry_count", w.State())
	}
	w.Stop(time.Second)
}

func TestWorkerReportsStateChangesThroughCallback(t *testing.T) {
	fake := drivertest.New()

	var mu sync.Mutex
	var states []State
	onStateChange := func(device model.Device, state State, restartedAt time.Time) {
		mu.Lock()
		states = append(states, state)
		mu.Unlock()
		if device.ID != 1 {
			t.Errorf("onStateChange device = %v, want 1", device.ID)
		}
		if restartedAt.IsZero() {
			t.Error("onStateChange restartedAt should not be zero")
		}
	}

	w, _ := New(Config{
		Device: testDevice(), Driver: fake, Points: &memPoints{}, Values: newMemValues(), Pipeline: &memPipeline{},
		OnStateChange: onStateChange,
	})
	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w.Stop(time.Second)

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateInitializing, StateConnecting, StateRunning, StateStopping, StateStopped}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i, s := range want {
		if states[i] != s {
			t.Fatalf("states[%d] = %v, want %v (full: %v)", i, states[i], s, states)
		}
	}
}

func TestWorkerScanSubmitsAndMarksFirstSampleChanged(t *testing.T) {
	fake := drivertest.New()
	fake.SetValue(1, model.TimestampedValue{PointID: 1, Value: 42.0, Quality: model.QualityGood})

	pipeline := &memPipeline{}
	w, _ := New(Config{
		Device: testDevice(),
		Driver: fake,
		Points: &memPoints{points: []model.DataPoint{{ID: 1, Name: "p1", DataType: model.DataTypeFloat32, ScalingFactor: 1, MinValue: -1e9, MaxValue: 1e9}}},
		Values: newMemValues(),
		Pipeline: pipeline,
	})
	w.Start(context.Background())

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && pipeline.count() == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	w.Stop(time.Second)

	if pipeline.count() == 0 {
		t.Fatal("expected at least one DeviceDataMessage submitted")
	}
	msg := pipeline.messages[0]
	if len(msg.Points) != 1 || !msg.Points[0].ValueChanged {
		t.Fatalf("expected first sample to be marked ValueChanged, got %+v", msg.Points)
	}
}
