package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/telemetry"
)

// T_latest is the default TTL on point:*:latest keys.
const DefaultLatestTTL = 300 * time.Second

// Stats reports the one counter invariant 2 requires never to
// grow while the cache is reachable: redis_write_errors.
type Stats struct {
	RedisWriteErrors int64
}

// Writer implements CacheWriter: best-effort, synchronous
// writes under the bit-exact key layout of . Every write
// failure is counted and swallowed; the pipeline is never blocked by a
// cache outage (durability is delegated to the external ConfigStore).
type Writer struct {
	client Client
	logger telemetry.Logger
	ttl time.Duration

	errCount atomic.Int64
}

// New constructs a Writer. ttl<=0 uses DefaultLatestTTL.
func New(client Client, ttl time.Duration, logger telemetry.Logger) *Writer {
	if ttl <= 0 {
		ttl = DefaultLatestTTL
	}
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Writer{client: client, ttl: ttl, logger: logger}
}

// Stats returns a point-in-time snapshot of the write-error counter.
func (w *Writer) Stats() Stats {
	return Stats{RedisWriteErrors: w.errCount.Load()}
}

type pointPayload struct {
	Value any `json:"value"`
	Quality int `json:"quality"`
	Timestamp int64 `json:"timestamp"`
	Unit string `json:"unit"`
}

type deviceMetaPayload struct {
	Protocol string `json:"protocol"`
	LastScanMs int64 `json:"last_scan_ms"`
	PointCount int `json:"point_count"`
}

// WriteDeviceData persists one scan cycle's results under
// point/device keys. units, keyed by point id, supplies the Unit field;
// a missing entry is written as "". Index i follows msg.Points order, the
// same index used for the device:<id>:points hash field.
func (w *Writer) WriteDeviceData(ctx context.Context, msg model.DeviceDataMessage, units map[int64]string) {
	for i, pv := range msg.Points {
		payload := pointPayload{
			Value: pv.Value,
			Quality: int(pv.Quality),
			Timestamp: pv.TimestampMs,
			Unit: units[pv.PointID],
		}
		data, err := json.Marshal(payload)
		if err != nil {
			w.fail(ctx, "marshal point payload", err)
			continue
		}

		pointKey := fmt.Sprintf("point:%s_point_%d:latest", msg.DeviceID, i)
		if err := w.client.Set(ctx, pointKey, data, w.ttl); err != nil {
			w.fail(ctx, "set "+pointKey, err)
		}

		hashKey := fmt.Sprintf("device:%s:points", msg.DeviceID)
		if err := w.client.HSet(ctx, hashKey, fmt.Sprintf("%d", i), data); err != nil {
			w.fail(ctx, "hset "+hashKey, err)
		}
	}

	meta := deviceMetaPayload{
		Protocol: string(msg.Protocol),
		LastScanMs: msg.Timestamp,
		PointCount: len(msg.Points),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		w.fail(ctx, "marshal device meta", err)
		return
	}
	metaKey := fmt.Sprintf("device:%s:meta", msg.DeviceID)
	if err := w.client.Set(ctx, metaKey, data, 0); err != nil {
		w.fail(ctx, "set "+metaKey, err)
	}
}

// AlarmPayload is the JSON body of alarm:active:<rule_id> and the
// alarms:* pub/sub channels.
type AlarmPayload struct {
	OccurrenceID int64 `json:"occurrence_id"`
	RuleID int64 `json:"rule_id"`
	TenantID string `json:"tenant_id"`
	Severity int `json:"severity"`
	State int `json:"state"`
	Message string `json:"message"`
	TriggerValue float64 `json:"trigger_value"`
	OccurredAtMs int64 `json:"occurred_at_ms"`
}

// severity/channel thresholds, .
const (
	criticalChannelMinSeverity = model.SeverityCritical
	highChannelMinSeverity = model.SeverityHigh
)

// WriteAlarmActive writes alarm:active:<rule_id> (no TTL) and publishes the
// same payload to alarms:all plus, when severity crosses the threshold,
// alarms:high and/or alarms:critical.
func (w *Writer) WriteAlarmActive(ctx context.Context, payload AlarmPayload) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.fail(ctx, "marshal alarm payload", err)
		return
	}

	key := fmt.Sprintf("alarm:active:%d", payload.RuleID)
	if err := w.client.Set(ctx, key, data, 0); err != nil {
		w.fail(ctx, "set "+key, err)
	}

	w.publish(ctx, "alarms:all", data)
	if model.Severity(payload.Severity) >= highChannelMinSeverity {
		w.publish(ctx, "alarms:high", data)
	}
	if model.Severity(payload.Severity) >= criticalChannelMinSeverity {
		w.publish(ctx, "alarms:critical", data)
	}
}

// ClearAlarm deletes alarm:active:<rule_id>, the cache-side effect of an
// occurrence reaching the CLEARED state.
func (w *Writer) ClearAlarm(ctx context.Context, ruleID int64) {
	key := fmt.Sprintf("alarm:active:%d", ruleID)
	if err := w.client.Del(ctx, key); err != nil {
		w.fail(ctx, "del "+key, err)
	}
}

func (w *Writer) publish(ctx context.Context, channel string, payload []byte) {
	if err := w.client.Publish(ctx, channel, payload); err != nil {
		w.fail(ctx, "publish "+channel, err)
	}
}

type virtualPointResultPayload struct {
	Value any `json:"value"`
	Quality int `json:"quality"`
	Timestamp int64 `json:"timestamp"`
}

// WriteVirtualPointResult writes virtual_point:<id>:result.
func (w *Writer) WriteVirtualPointResult(ctx context.Context, vpID int64, v model.TimestampedValue) {
	payload := virtualPointResultPayload{Value: v.Value, Quality: int(v.Quality), Timestamp: v.TimestampMs}
	data, err := json.Marshal(payload)
	if err != nil {
		w.fail(ctx, "marshal virtual point payload", err)
		return
	}
	key := fmt.Sprintf("virtual_point:%d:result", vpID)
	if err := w.client.Set(ctx, key, data, 0); err != nil {
		w.fail(ctx, "set "+key, err)
	}
}

// WorkerStatusMetadata is the "metadata" object of worker:<id>:status.
type WorkerStatusMetadata struct {
	TimeoutMs int64 `json:"timeout_ms"`
	RetryIntervalMs int64 `json:"retry_interval_ms"`
	BackoffTimeMs int64 `json:"backoff_time_ms"`
	KeepAliveEnabled bool `json:"keep_alive_enabled"`
	WorkerRestartedAt time.Time `json:"worker_restarted_at"`
}

type workerStatusPayload struct {
	State string `json:"state"`
	Timestamp int64 `json:"timestamp"`
	Metadata WorkerStatusMetadata `json:"metadata"`
}

// WriteWorkerStatus writes worker:<device_id>:status on every state
// transition.
func (w *Writer) WriteWorkerStatus(ctx context.Context, deviceID model.DeviceID, state string, meta WorkerStatusMetadata) {
	payload := workerStatusPayload{State: state, Timestamp: time.Now().UnixMilli(), Metadata: meta}
	data, err := json.Marshal(payload)
	if err != nil {
		w.fail(ctx, "marshal worker status payload", err)
		return
	}
	key := fmt.Sprintf("worker:%s:status", deviceID)
	if err := w.client.Set(ctx, key, data, 0); err != nil {
		w.fail(ctx, "set "+key, err)
	}
}

func (w *Writer) fail(ctx context.Context, op string, err error) {
	_ = ctx
	w.errCount.Add(1)
	w.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryCacheWrite, Message: op, Err: err})
}
