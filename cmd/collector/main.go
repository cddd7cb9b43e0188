// Command collector runs the PulseOne data acquisition engine: it polls
// field devices through protocol drivers, normalizes and fans out the
// resulting samples through alarm evaluation and virtual-point
// recalculation, and mirrors the results into a shared cache for
// downstream consumers.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pulseone-io/collector/pkg/alarm"
	"github.com/pulseone-io/collector/pkg/cache"
	"github.com/pulseone-io/collector/pkg/configstore"
	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/persistence"
	"github.com/pulseone-io/collector/pkg/pipeline"
	"github.com/pulseone-io/collector/pkg/processing"
	"github.com/pulseone-io/collector/pkg/telemetry"
	"github.com/pulseone-io/collector/pkg/valuestore"
	"github.com/pulseone-io/collector/pkg/vpe"
	"github.com/pulseone-io/collector/pkg/worker"
	"github.com/pulseone-io/collector/pkg/workerfactory"
	"github.com/pulseone-io/collector/pkg/workermanager"
)

var (
	configPath string
	interactive bool
)

func init() {
	flag.StringVar(&configPath, "config", "collector.yaml", "path to the collector's bootstrap configuration")
	flag.BoolVar(&interactive, "interactive", false, "launch the operator console after startup")
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "collector: load config %s: %v\n", configPath, err)
		os.Exit(1)
	}

	ring := telemetry.NewRingLogger(2048)
	logger := telemetry.NewMultiLogger(telemetry.NewSlogAdapter(newSlogger(cfg)), ring)

	if err := run(cfg, logger, ring); err != nil {
		logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryConfigStore, Message: "fatal startup error", Err: err})
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		os.Exit(1)
	}
}

func newSlogger(cfg Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// run wires every component together and blocks until a termination
// signal arrives, then shuts down in dependency order:
// workers first (stop producing), pipeline drains, processing pool stops,
// engines shut down, cache client closes last.
func run(cfg Config, logger telemetry.Logger, ring *telemetry.RingLogger) error {
	store, err := configstore.Open(cfg.ConfigStore.DSN)
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}
	defer store.Close()

	snapCache := persistence.NewSnapshotCache(cfg.Snapshot.Path)
	mirror := persistence.NewMirror(store, snapCache, cfg.ConfigStore.TenantID)

	snap, stale, err := mirror.Load()
	if err != nil {
		return fmt.Errorf("load fleet configuration: %w", err)
	}
	if stale {
		logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryConfigStore, Message: "configuration store unreachable at startup, running from cached snapshot"})
	}

	redisClient := cache.NewRedisClient(cache.RedisConfig{
		Addr: cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB: cfg.Redis.DB,
		DialTimeout: cfg.redisDialTimeout(),
		ReadTimeout: cfg.redisReadTimeout(),
		WriteTimeout: cfg.redisWriteTimeout(),
		MaxRetries: cfg.Redis.MaxRetries,
	})
	defer redisClient.Close()

	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.redisDialTimeout())
	if err := redisClient.Ping(pingCtx); err != nil {
		logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryCacheWrite, Message: "cache unreachable at startup, writes will be best-effort", Err: err})
	}
	cancelPing()

	cacheWriter := cache.New(redisClient, cfg.latestTTL(), logger)

	values := valuestore.New()
	seedCurrentValues(store, snap, values)

	namer := newPointNamer()
	namer.replace(snap.PointsByDevice, snap.VirtualPoints)

	var knownDevices atomic.Pointer[[]model.Device]
	knownDevices.Store(&snap.Devices)

	pl := pipeline.New(cfg.Pipeline.Capacity)

	onWorkerStateChange := func(device model.Device, state worker.State, restartedAt time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.redisWriteTimeout())
		cacheWriter.WriteWorkerStatus(ctx, device.ID, state.String(), cache.WorkerStatusMetadata{
			TimeoutMs: device.Settings.ConnectionTimeoutMs,
			RetryIntervalMs: device.Settings.RetryIntervalMs,
			BackoffTimeMs: device.Settings.BackoffTimeMs,
			KeepAliveEnabled: device.Settings.KeepAliveEnabled,
			WorkerRestartedAt: restartedAt,
		})
		cancel()
	}

	points := enabledPointStore{store: store}
	factory := workerfactory.New(points, values, pl, logger, onWorkerStateChange)
	manager := workermanager.New(factory, deviceResolver{store: store}, logger)

	vpEngine := vpe.New()
	alarmEngine := alarm.New()

	vpEngine.Initialize(vpe.Config{
		VirtualPoints: snap.VirtualPoints,
		DataSource: values,
		Shards: cfg.VirtualPoints.Shards,
		CallTimeout: cfg.callTimeout(),
		Logger: logger,
		OnResult: func(vp model.VirtualPoint, v model.TimestampedValue) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.redisWriteTimeout())
			cacheWriter.WriteVirtualPointResult(ctx, vp.ID, v)
			cancel()
			values.Set(vp.ID, v)
			if v.ValueChanged {
				alarmEngine.Evaluate(v, model.TargetVirtualPoint)
				vpEngine.OnPointChanged(vp.ID, true)
			}
		},
	})

	if err := alarmEngine.Initialize(alarm.Config{
		Rules: snap.AlarmRules,
		Store: store,
		Points: namer,
		Logger: logger,
		OnOccurrence: func(rule model.AlarmRule, occ model.AlarmOccurrence, message string) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.redisWriteTimeout())
			cacheWriter.WriteAlarmActive(ctx, cache.AlarmPayload{
				OccurrenceID: occ.ID,
				RuleID: rule.ID,
				TenantID: rule.TenantID,
				Severity: int(rule.Severity),
				State: int(occ.State),
				Message: message,
				TriggerValue: occ.TriggerValue,
				OccurredAtMs: occ.OccurrenceTime.UnixMilli(),
			})
			cancel()
		},
		OnClear: func(rule model.AlarmRule, occ model.AlarmOccurrence) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.redisWriteTimeout())
			cacheWriter.ClearAlarm(ctx, rule.ID)
			cancel()
		},
	}); err != nil {
		return fmt.Errorf("initialize alarm engine: %w", err)
	}

	svc := processing.New(processing.Config{
		Queue: pl,
		Points: points,
		Cache: cacheWriter,
		Alarms: alarmEngine,
		Virtuals: vpEngine,
		PoolSize: cfg.Processing.PoolSize,
		Logger: logger,
	})

	ctx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	svc.Start(ctx)

	manager.Reconcile(enabledDeviceIDs(snap.Devices))
	stopReconcile := startReconcileLoop(ctx, cfg, mirror, manager, namer, &knownDevices, logger)

	if interactive {
		runConsole(ctx, manager, alarmEngine, ring, &knownDevices)
	}

	<-ctx.Done()
	logger.Log(telemetry.Event{Timestamp: time.Now(), Message: "shutdown signal received"})

	stopReconcile()
	manager.StopAll()
	svc.Stop(10 * time.Second)
	vpEngine.Shutdown()
	alarmEngine.Shutdown()

	return nil
}

func seedCurrentValues(store *configstore.Store, snap *persistence.Snapshot, values *valuestore.Store) {
	for _, points := range snap.PointsByDevice {
		for _, p := range points {
			if v, ok, err := store.CurrentValue(p.ID); err == nil && ok {
				values.Seed([]model.TimestampedValue{v})
			}
		}
	}
}

func enabledDeviceIDs(devices []model.Device) []model.DeviceID {
	ids := make([]model.DeviceID, 0, len(devices))
	for _, d := range devices {
		if d.Enabled {
			ids = append(ids, d.ID)
		}
	}
	return ids
}

// startReconcileLoop polls the configuration store on a fixed interval,
// applying newly enabled/disabled devices to the WorkerManager and
// refreshing the point-name index alarms use for message substitution.
// This is the hot-reload path the system describes as driven by change
// notifications; collector has none wired yet, so it polls instead.
func startReconcileLoop(ctx context.Context, cfg Config, mirror *persistence.Mirror, manager *workermanager.Manager, namer *pointNamer, knownDevices *atomic.Pointer[[]model.Device], logger telemetry.Logger) func() {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.reconcileInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				close(done)
				return
			case <-ticker.C:
				snap, stale, err := mirror.Load()
				if err != nil {
					logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryConfigStore, Message: "reconcile read failed", Err: err})
					continue
				}
				if stale {
					continue
				}
				manager.Reconcile(enabledDeviceIDs(snap.Devices))
				namer.replace(snap.PointsByDevice, snap.VirtualPoints)
				knownDevices.Store(&snap.Devices)
			}
		}
	}()
	return func() { <-done }
}

var _ worker.PointStore = enabledPointStore{}
