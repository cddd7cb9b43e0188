package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
)

type fakeClient struct {
	sets map[string][]byte
	hashes map[string]map[string][]byte
	deleted []string
	published map[string][][]byte
	failSet bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		sets: make(map[string][]byte),
		hashes: make(map[string]map[string][]byte),
		published: make(map[string][][]byte),
	}
}

func (f *fakeClient) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if f.failSet {
		return errBoom
	}
	f.sets[key] = value
	return nil
}

func (f *fakeClient) Del(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.sets, key)
	return nil
}

func (f *fakeClient) HSet(_ context.Context, key, field string, value []byte) error {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string][]byte)
		f.hashes[key] = h
	}
	h[field] = value
	return nil
}

func (f *fakeClient) Publish(_ context.Context, channel string, payload []byte) error {
	f.published[channel] = append(f.published[channel], payload)
	return nil
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }

func TestWriteDeviceDataWritesPointAndHashAndMeta(t *testing.T) {
	fc := newFakeClient()
	w := New(fc, 0, nil)

	msg := model.NewDeviceDataMessage(42, model.ProtocolModbusTCP, 1000, []model.TimestampedValue{
		{PointID: 1, Value: 21.5, Quality: model.QualityGood, TimestampMs: 1000},
	})
	w.WriteDeviceData(context.Background(), msg, map[int64]string{1: "C"})

	raw, ok := fc.sets["point:42_point_0:latest"]
	if !ok {
		t.Fatal("expected point:42_point_0:latest to be written")
	}
	var p pointPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Unit != "C" || p.Quality != int(model.QualityGood) {
		t.Fatalf("unexpected payload %+v", p)
	}

	if _, ok := fc.hashes["device:42:points"]["0"]; !ok {
		t.Fatal("expected device:42:points hash field 0")
	}
	if _, ok := fc.sets["device:42:meta"]; !ok {
		t.Fatal("expected device:42:meta to be written")
	}
	if w.Stats().RedisWriteErrors != 0 {
		t.Fatalf("expected zero write errors, got %d", w.Stats().RedisWriteErrors)
	}
}

func TestWriteDeviceDataCountsErrorsAndContinues(t *testing.T) {
	fc := newFakeClient()
	fc.failSet = true
	w := New(fc, 0, nil)

	msg := model.NewDeviceDataMessage(1, model.ProtocolMQTT, 1000, []model.TimestampedValue{
		{PointID: 1, Value: 1.0, Quality: model.QualityGood, TimestampMs: 1000},
	})
	w.WriteDeviceData(context.Background(), msg, nil)

	if w.Stats().RedisWriteErrors == 0 {
		t.Fatal("expected write errors to be counted")
	}
}

func TestWriteAlarmActivePublishesToThresholdChannels(t *testing.T) {
	fc := newFakeClient()
	w := New(fc, 0, nil)

	w.WriteAlarmActive(context.Background(), AlarmPayload{
		OccurrenceID: 1, RuleID: 7, Severity: int(model.SeverityCritical), State: int(model.StateActive),
	})

	if len(fc.published["alarms:all"]) != 1 {
		t.Fatalf("expected one alarms:all publish, got %d", len(fc.published["alarms:all"]))
	}
	if len(fc.published["alarms:high"]) != 1 {
		t.Fatalf("expected one alarms:high publish, got %d", len(fc.published["alarms:high"]))
	}
	if len(fc.published["alarms:critical"]) != 1 {
		t.Fatalf("expected one alarms:critical publish, got %d", len(fc.published["alarms:critical"]))
	}
	if _, ok := fc.sets["alarm:active:7"]; !ok {
		t.Fatal("expected alarm:active:7 to be written")
	}
}

func TestWriteAlarmActiveLowSeveritySkipsHighChannels(t *testing.T) {
	fc := newFakeClient()
	w := New(fc, 0, nil)

	w.WriteAlarmActive(context.Background(), AlarmPayload{RuleID: 1, Severity: int(model.SeverityLow)})

	if len(fc.published["alarms:high"]) != 0 || len(fc.published["alarms:critical"]) != 0 {
		t.Fatal("low severity must not publish to alarms:high/critical")
	}
}

func TestClearAlarmDeletesKey(t *testing.T) {
	fc := newFakeClient()
	w := New(fc, 0, nil)
	fc.sets["alarm:active:3"] = []byte(`{}`)

	w.ClearAlarm(context.Background(), 3)

	if _, ok := fc.sets["alarm:active:3"]; ok {
		t.Fatal("expected alarm:active:3 to be deleted")
	}
}
