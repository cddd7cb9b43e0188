package processing

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/telemetry"
)

// DefaultPoolSize is the default number of concurrent consumer goroutines
//.
const DefaultPoolSize = 2

// Queue is the pipeline's consumer side.
type Queue interface {
	Dequeue(ctx context.Context) (model.DeviceDataMessage, bool)
}

// PointNamer resolves a point's unit for the cache payload's "unit" field.
type PointNamer interface {
	DataPointsForDevice(deviceID model.DeviceID) ([]model.DataPoint, error)
}

// CacheSink is the non-owning handle to CacheWriter.
type CacheSink interface {
	WriteDeviceData(ctx context.Context, msg model.DeviceDataMessage, units map[int64]string)
}

// AlarmSink is the non-owning handle to AlarmEngine.
type AlarmSink interface {
	Evaluate(tv model.TimestampedValue, targetType model.TargetType)
}

// VirtualPointSink is the non-owning handle to VirtualPointEngine.
type VirtualPointSink interface {
	OnPointChanged(sourceID int64, isVirtual bool)
}

// Stats reports processing counters for observability.
type Stats struct {
	Processed int64
	NormalizeRejected int64
	AlarmFailures int64
	VirtualPointFailures int64
}

// Config bundles the worker pool's non-owning collaborators.
type Config struct {
	Queue Queue
	Points PointNamer
	Cache CacheSink
	Alarms AlarmSink
	Virtuals VirtualPointSink
	PoolSize int // <=0 uses DefaultPoolSize
	Logger telemetry.Logger

	// Notify is the optional, fire-and-forget external notification hook
	//.
	Notify func(model.DeviceDataMessage)
}

// Service is DataProcessingService: a pool of worker
// goroutines draining the pipeline, performing normalize → cache write →
// alarm evaluation → virtual-point propagation → notify, in order, per
// message.
type Service struct {
	cfg Config

	unitCache sync.Map // model.DeviceID -> map[int64]string, refreshed per message

	stopCh chan struct{}
	wg sync.WaitGroup

	processed atomic.Int64
	normalizeRejected atomic.Int64
	alarmFailures atomic.Int64
	virtualPointFailures atomic.Int64
}

// New constructs a Service. It does not start the pool; call Start.
func New(cfg Config) *Service {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Logger == nil {
		cfg.Logger = telemetry.NoopLogger{}
	}
	return &Service{cfg: cfg, stopCh: make(chan struct{})}
}

// Start launches the worker pool. ctx's cancellation stops every worker;
// callers should also use Stop for a cooperative, bounded shutdown.
func (s *Service) Start(ctx context.Context) {
	for i := 0; i < s.cfg.PoolSize; i++ {
		s.wg.Add(1)
		go s.run(ctx)
	}
}

// Stop signals every worker and waits for them to drain their in-flight
// message, bounded by timeout.
func (s *Service) Stop(timeout time.Duration) bool {
	close(s.stopCh)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		msg, ok := s.cfg.Queue.Dequeue(ctx)
		if !ok {
			return
		}
		s.process(ctx, msg)
	}
}

// process implements the five-step pipeline requires, in
// order. Failures in steps 3 and 4 (alarm evaluation, virtual-point
// propagation) are logged and counted but never abort the message: the
// cache write is the sole durable guarantee.
func (s *Service) process(ctx context.Context, msg model.DeviceDataMessage) {
	if !s.normalize(msg) {
		s.normalizeRejected.Add(1)
		return
	}

	s.cfg.Cache.WriteDeviceData(ctx, msg, s.unitsFor(msg.DeviceID))

	for _, pv := range msg.Points {
		if !pv.ValueChanged {
			continue
		}
		s.withRetry("alarm evaluation", &s.alarmFailures, func() {
			s.cfg.Alarms.Evaluate(pv, model.TargetDataPoint)
		})
		s.withRetry("virtual point propagation", &s.virtualPointFailures, func() {
			s.cfg.Virtuals.OnPointChanged(pv.PointID, false)
		})
	}

	if s.cfg.Notify != nil {
		go s.cfg.Notify(msg)
	}

	s.processed.Add(1)
}

func (s *Service) normalize(msg model.DeviceDataMessage) bool {
	return msg.DeviceID != 0 && len(msg.Points) > 0
}

// withRetry runs fn, retrying once in-process on a panic (the only
// "transient error" signal these no-error-returning collaborators can
// raise).6: "(3) and (4) are retried once in-process on
// transient errors."
func (s *Service) withRetry(step string, counter *atomic.Int64, fn func()) {
	if s.safeCall(fn) {
		return
	}
	if s.safeCall(fn) {
		return
	}
	counter.Add(1)
	s.cfg.Logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, Message: step + " failed twice, skipping"})
}

func (s *Service) safeCall(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	fn()
	return true
}

// unitsFor returns a point-id -> unit map for deviceID, refreshed from the
// PointNamer on every call.
func (s *Service) unitsFor(deviceID model.DeviceID) map[int64]string {
	if s.cfg.Points == nil {
		return nil
	}
	points, err := s.cfg.Points.DataPointsForDevice(deviceID)
	if err != nil {
		return nil
	}
	units := make(map[int64]string, len(points))
	for _, p := range points {
		units[p.ID] = p.Unit
	}
	return units
}

// Stats returns a point-in-time snapshot of the processing counters.
func (s *Service) Stats() Stats {
	return Stats{
		Processed: s.processed.Load(),
		NormalizeRejected: s.normalizeRejected.Load(),
		AlarmFailures: s.alarmFailures.Load(),
		VirtualPointFailures: s.virtualPointFailures.Load(),
	}
}
