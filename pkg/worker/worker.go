package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/pulseone-io/collector/pkg/connection"
	"github.com/pulseone-io/collector/pkg/driver"
	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/telemetry"
)

// PointStore provides the enabled DataPoint snapshot a worker scans, in
// address order, per step 1.
type PointStore interface {
	DataPointsForDevice(deviceID model.DeviceID) ([]model.DataPoint, error)
}

// CurrentValueStore is the previous-sample cache DeviceWorker consults to
// compute TimestampedValue.ValueChanged.
type CurrentValueStore interface {
	Get(pointID int64) (model.TimestampedValue, bool)
	Set(pointID int64, v model.TimestampedValue)
}

// PipelineSubmitter is the non-owning handle DeviceWorker uses to submit a
// completed scan's DeviceDataMessage.
type PipelineSubmitter interface {
	Submit(msg model.DeviceDataMessage) bool
}

// OnStateChangeFunc is invoked after every state transition, including the
// initial CREATED -> INITIALIZING move. restartedAt is the timestamp of the
// worker's most recent Start or Restart, the value worker:<device_id>:status
// reports as worker_restarted_at.
type OnStateChangeFunc func(device model.Device, state State, restartedAt time.Time)

// Config bundles everything WorkerFactory must inject before a DeviceWorker
// can run.
type Config struct {
	Device model.Device
	Driver driver.ProtocolDriver
	Points PointStore
	Values CurrentValueStore
	Pipeline PipelineSubmitter
	Logger telemetry.Logger
	OnStateChange OnStateChangeFunc
}

// DeviceWorker owns one driver.ProtocolDriver, scanning it on a fixed
// interval and reconnecting independently of the scan loop.
type DeviceWorker struct {
	device model.Device
	drv driver.ProtocolDriver
	points PointStore
	values CurrentValueStore
	out PipelineSubmitter
	logger telemetry.Logger

	backoff *connection.Backoff
	onStateChange OnStateChangeFunc

	mu sync.RWMutex
	state State
	restartedAt time.Time

	firstSample map[int64]bool

	stopCh chan struct{}
	doneCh chan struct{}
	reconnCh chan struct{}

	wg sync.WaitGroup
}

// New constructs a DeviceWorker. It does not connect; Start does.
func New(cfg Config) (*DeviceWorker, error) {
	if cfg.Driver == nil || cfg.Points == nil || cfg.Values == nil || cfg.Pipeline == nil {
		return nil, fmt.Errorf("worker.New: driver, points, values and pipeline must all be injected")
	}
	if err := cfg.Device.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	s := cfg.Device.Settings
	return &DeviceWorker{
		device: cfg.Device,
		drv: cfg.Driver,
		points: cfg.Points,
		values: cfg.Values,
		out: cfg.Pipeline,
		logger: logger,
		backoff: connection.NewBackoffFromMillis(s.RetryIntervalMs, s.BackoffMultiplier, s.MaxBackoffTimeMs),
		onStateChange: cfg.OnStateChange,
		state: StateCreated,
		restartedAt: time.Now(),
		firstSample: make(map[int64]bool),
	}, nil
}

// RestartedAt returns the timestamp of the worker's most recent Start or
// Restart.
func (w *DeviceWorker) RestartedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.restartedAt
}

func (w *DeviceWorker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

func (w *DeviceWorker) setState(s State) {
	w.mu.Lock()
	old := w.state
	w.state = s
	device := w.device
	restartedAt := w.restartedAt
	w.mu.Unlock()
	if old != s {
		w.logger.Log(telemetry.Event{
			Timestamp: time.Now(), Category: telemetry.CategoryWorkerState,
			DeviceID: w.device.ID.String(), OldState: old.String(), NewState: s.String(),
		})
		if w.onStateChange != nil {
			w.onStateChange(device, s, restartedAt)
		}
	}
}

// Start initializes the driver and launches the scan and reconnect loops.
// Per critical invariant, Start returns nil (success) even
// if the first connect attempt fails, as long as the worker object and its
// reconnect task are running; only a ConfigInvalid error is fatal.
func (w *DeviceWorker) Start(ctx context.Context) error {
	w.setState(StateInitializing)

	cfg := driver.Config{
		DeviceID: w.device.ID,
		Endpoint: w.device.Endpoint,
		Settings: w.device.Settings,
		Properties: w.device.Config,
	}
	if err := w.drv.Initialize(cfg); err != nil {
		w.setState(StateError)
		return err
	}

	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.reconnCh = make(chan struct{}, 1)

	w.setState(StateConnecting)
	connectCtx, cancel := context.WithTimeout(ctx, time.Duration(w.device.Settings.ConnectionTimeoutMs)*time.Millisecond)
	err := w.drv.Connect(connectCtx)
	cancel()

	if err != nil {
		w.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryReconnect, DeviceID: w.device.ID.String(), Message: "initial connect failed", Err: err})
		w.setState(StateReconnecting)
		w.triggerReconnect()
	} else {
		w.backoff.Reset()
		w.setState(StateRunning)
	}

	w.wg.Add(2)
	go w.scanLoop()
	go w.reconnectLoop()

	if w.device.Settings.KeepAliveEnabled {
		w.wg.Add(1)
		go w.keepAliveLoop()
	}

	return nil
}

// keepAliveLoop implements "are-you-alive" check: a
// lightweight read scheduled every keep_alive_interval_s; failure within
// keep_alive_timeout_s triggers the reconnect transition.
func (w *DeviceWorker) keepAliveLoop() {
	defer w.wg.Done()
	interval := time.Duration(w.device.Settings.KeepAliveIntervalS) * time.Second
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.State() != StateRunning {
				continue
			}
			points, err := w.points.DataPointsForDevice(w.device.ID)
			if err != nil || len(points) == 0 {
				continue
			}
			timeout := time.Duration(w.device.Settings.KeepAliveTimeoutS) * time.Second
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			_, err = w.drv.ReadValues(ctx, points[:1])
			cancel()
			if err != nil {
				w.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryReconnect, DeviceID: w.device.ID.String(), Message: "keep-alive failed", Err: err})
				w.setState(StateReconnecting)
				w.triggerReconnect()
			}
		}
	}
}

// Stop signals the scan and reconnect tasks and waits for them to exit,
// within a bounded timeout.
func (w *DeviceWorker) Stop(timeout time.Duration) error {
	w.setState(StateStopping)
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		return fmt.Errorf("device %d: stop did not complete within %s", w.device.ID, timeout)
	}

	w.drv.Disconnect()
	w.setState(StateStopped)
	return nil
}

func (w *DeviceWorker) triggerReconnect() {
	select {
	case w.reconnCh <- struct{}{}:
	default:
	}
}

func (w *DeviceWorker) scanLoop() {
	defer w.wg.Done()
	interval := time.Duration(w.device.Settings.PollingIntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			if w.State() != StateRunning {
				continue
			}
			w.scanOnce()
		}
	}
}

func (w *DeviceWorker) scanOnce() {
	points, err := w.points.DataPointsForDevice(w.device.ID)
	if err != nil {
		w.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryScan, DeviceID: w.device.ID.String(), Message: "point snapshot failed", Err: err})
		return
	}

	readCtx, cancel := context.WithTimeout(context.Background(), time.Duration(w.device.Settings.ReadTimeoutMs)*time.Millisecond)
	values, err := w.drv.ReadValues(readCtx, points)
	cancel()

	if err != nil {
		w.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryScan, DeviceID: w.device.ID.String(), Message: "scan lost session", Err: err})
		w.setState(StateReconnecting)
		w.triggerReconnect()
		return
	}

	for i, p := range values {
		values[i].ValueChanged = w.valueChanged(p)
		w.values.Set(p.PointID, values[i])
	}

	msg := model.NewDeviceDataMessage(w.device.ID, w.device.Protocol, time.Now().UnixMilli(), values)
	if !w.out.Submit(msg) {
		w.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryShed, DeviceID: w.device.ID.String(), Message: "pipeline full, oldest value shed", Count: 1})
	}
}

// valueChanged implements step 3: quality improved, numeric
// change beyond deadband, non-numeric any-change, or first sample.
func (w *DeviceWorker) valueChanged(v model.TimestampedValue) bool {
	prev, ok := w.values.Get(v.PointID)
	if !ok {
		return true
	}
	if v.Quality > prev.Quality {
		return true
	}
	pf, pok := prev.AsFloat64()
	vf, vok := v.AsFloat64()
	if pok && vok {
		return math.Abs(vf-pf) > w.deadbandFor(v.PointID)
	}
	return fmt.Sprintf("%v", prev.Value) != fmt.Sprintf("%v", v.Value)
}

func (w *DeviceWorker) deadbandFor(pointID int64) float64 {
	points, err := w.points.DataPointsForDevice(w.device.ID)
	if err != nil {
		return 0
	}
	for _, p := range points {
		if p.ID == pointID {
			return p.Deadband
		}
	}
	return 0
}

// reconnectLoop runs independently of the scan loop: it
// retries connect() at the configured backoff, bounded by max_retry_count
// (0 = unbounded). On success it returns to RUNNING; exhausting the cap
// moves to DEVICE_OFFLINE without destroying the worker.
func (w *DeviceWorker) reconnectLoop() {
	defer w.wg.Done()
	maxRetry := w.device.Settings.MaxRetryCount

	for {
		select {
		case <-w.stopCh:
			return
		case <-w.reconnCh:
		}

		for {
			if w.State() != StateReconnecting {
				break
			}

			attempts := w.backoff.Attempts()
			if maxRetry > 0 && attempts >= maxRetry {
				w.setState(StateDeviceOffline)
				w.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryReconnect, DeviceID: w.device.ID.String(), Message: "max_retry_count exceeded", Attempt: attempts})
				break
			}

			delay := w.backoff.Next()
			w.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryReconnect, DeviceID: w.device.ID.String(), Attempt: attempts + 1, Delay: delay})

			select {
			case <-w.stopCh:
				return
			case <-time.After(delay):
			}

			if w.State() != StateReconnecting {
				break
			}

			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(w.device.Settings.ConnectionTimeoutMs)*time.Millisecond)
			err := w.drv.Connect(ctx)
			cancel()

			if err == nil {
				w.backoff.Reset()
				w.setState(StateRunning)
				break
			}
		}
	}
}

// Restart re-applies settings and resets the backoff, without tearing down
// the scan/reconnect goroutines; WorkerManager calls this to implement
// restart() when it chooses to reuse the live instance.
func (w *DeviceWorker) Restart(device model.Device) {
	w.mu.Lock()
	w.device = device
	w.restartedAt = time.Now()
	w.mu.Unlock()
	w.backoff = connection.NewBackoffFromMillis(device.Settings.RetryIntervalMs, device.Settings.BackoffMultiplier, device.Settings.MaxBackoffTimeMs)
	if w.State() == StateDeviceOffline {
		w.setState(StateReconnecting)
		w.triggerReconnect()
	} else if w.onStateChange != nil {
		w.onStateChange(device, w.State(), w.RestartedAt())
	}
}

// DeviceID returns the device this worker owns.
func (w *DeviceWorker) DeviceID() model.DeviceID {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.device.ID
}
