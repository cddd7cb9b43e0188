package configstore

import (
	"math"
	"testing"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestDeviceRoundTrip(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO devices (id, name, protocol, endpoint, enabled, config_json,
		polling_interval_ms, connection_timeout_ms, read_timeout_ms, write_timeout_ms,
		max_retry_count, retry_interval_ms, backoff_multiplier, backoff_time_ms, max_backoff_time_ms,
		keep_alive_enabled, keep_alive_interval_s, keep_alive_timeout_s)
		VALUES (1, 'plc-1', 'MODBUS_TCP', '10.0.0.5:502', 1, '{"slave_id":"3"}',
		1000, 2000, 2000, 2000, 3, 1000, 2.0, 1000, 30000, 0, 0, 0)
	`)
	if err != nil {
		t.Fatalf("seed device: %v", err)
	}

	devices, err := s.FindAllDevices()
	if err != nil {
		t.Fatalf("FindAllDevices: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices))
	}
	d := devices[0]
	if d.Name != "plc-1" || d.Protocol != model.ProtocolModbusTCP || d.Config["slave_id"] != "3" {
		t.Fatalf("unexpected device: %+v", d)
	}
	if err := d.Validate(); err != nil {
		t.Fatalf("device should validate: %v", err)
	}

	got, ok, err := s.FindDeviceByID(1)
	if err != nil || !ok {
		t.Fatalf("FindDeviceByID: %v ok=%v", err, ok)
	}
	if got.ID != 1 {
		t.Fatalf("expected device id 1, got %d", got.ID)
	}

	_, ok, err = s.FindDeviceByID(999)
	if err != nil {
		t.Fatalf("FindDeviceByID unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for a missing device")
	}
}

func TestDataPointUnboundedMinMax(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO data_points (id, device_id, name, address, data_type, unit, scaling_factor, scaling_offset,
		min_value, max_value, deadband, writable, enabled, protocol_params_json)
		VALUES (1, 1, 'temp', '40001', 'FLOAT32', 'C', 0.1, 0, NULL, NULL, 0.5, 0, 1, '{}')
	`)
	if err != nil {
		t.Fatalf("seed point: %v", err)
	}

	points, err := s.FindDataPointsByDeviceID(1)
	if err != nil {
		t.Fatalf("FindDataPointsByDeviceID: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 point, got %d", len(points))
	}
	p := points[0]
	if !math.IsInf(p.MinValue, -1) || !math.IsInf(p.MaxValue, 1) {
		t.Fatalf("expected unbounded min/max, got %v/%v", p.MinValue, p.MaxValue)
	}
}

func TestAlarmRuleUnboundedThresholds(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO alarm_rules (id, tenant_id, name, target_type, target_id, kind,
		high_high, high, low, low_low, deadband, trigger_condition, condition_script,
		message_template, message_script, severity, priority, auto_clear, enabled)
		VALUES (1, 't1', 'overtemp', 'data_point', 4, 'analog',
		NULL, 35.0, -1000, NULL, 2.0, '', '', '', '', 'HIGH', 0, 1, 1)
	`)
	if err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	rules, err := s.FindAlarmRules("")
	if err != nil {
		t.Fatalf("FindAlarmRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}
	r := rules[0]
	if !math.IsInf(r.HighHigh, 1) || !math.IsInf(r.LowLow, -1) {
		t.Fatalf("expected unbounded high_high/low_low, got %v/%v", r.HighHigh, r.LowLow)
	}
	if r.Severity != model.SeverityHigh {
		t.Fatalf("expected HIGH severity, got %v", r.Severity)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("rule should validate: %v", err)
	}
}

func TestVirtualPointWithInputs(t *testing.T) {
	s := newTestStore(t)

	_, err := s.db.Exec(`
		INSERT INTO virtual_points (id, tenant_id, name, formula, trigger, interval_ms, error_handling, data_type, enabled)
		VALUES (1, 't1', 'zone_avg', '(z1+z2)/2', 'ON_CHANGE', 0, 'RETURN_LAST', 'FLOAT64', 1)
	`)
	if err != nil {
		t.Fatalf("seed virtual point: %v", err)
	}
	_, err = s.db.Exec(`INSERT INTO virtual_point_inputs (virtual_point_id, alias, source_point_id, is_virtual) VALUES (1, 'z1', 10, 0), (1, 'z2', 11, 0)`)
	if err != nil {
		t.Fatalf("seed inputs: %v", err)
	}

	vps, err := s.FindVirtualPoints("")
	if err != nil {
		t.Fatalf("FindVirtualPoints: %v", err)
	}
	if len(vps) != 1 || len(vps[0].Inputs) != 2 {
		t.Fatalf("expected 1 virtual point with 2 inputs, got %+v", vps)
	}
	if err := vps[0].Validate(); err != nil {
		t.Fatalf("virtual point should validate: %v", err)
	}
}

func TestAlarmOccurrenceLifecycleAndRecovery(t *testing.T) {
	s := newTestStore(t)

	occ := model.AlarmOccurrence{
		TargetID: 4,
		CorrelationID: "corr-1",
		RuleID: 1,
		TenantID: "t1",
		OccurrenceTime: time.Now(),
		TriggerValue: 36.5,
		State: model.StateActive,
		Severity: model.SeverityHigh,
		ContextData: map[string]string{"point_name": "temp"},
	}
	id, err := s.SaveAlarmOccurrence(occ)
	if err != nil {
		t.Fatalf("SaveAlarmOccurrence: %v", err)
	}
	occ.ID = id

	active, err := s.FindActiveAlarmOccurrences()
	if err != nil {
		t.Fatalf("FindActiveAlarmOccurrences: %v", err)
	}
	if len(active) != 1 || active[0].ContextData["point_name"] != "temp" {
		t.Fatalf("expected 1 active occurrence with context, got %+v", active)
	}

	occ.State = model.StateCleared
	now := time.Now()
	occ.ClearedTime = &now
	if err := s.UpdateAlarmOccurrence(occ); err != nil {
		t.Fatalf("UpdateAlarmOccurrence: %v", err)
	}

	active, err = s.FindActiveAlarmOccurrences()
	if err != nil {
		t.Fatalf("FindActiveAlarmOccurrences after clear: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected 0 active occurrences after clear, got %d", len(active))
	}
}

func TestCurrentValueUpsert(t *testing.T) {
	s := newTestStore(t)

	tv := model.TimestampedValue{PointID: 10, Value: 24.5, Quality: model.QualityGood, TimestampMs: 1000}
	if err := s.UpsertCurrentValue(tv); err != nil {
		t.Fatalf("UpsertCurrentValue: %v", err)
	}
	got, ok, err := s.CurrentValue(10)
	if err != nil || !ok {
		t.Fatalf("CurrentValue: %v ok=%v", err, ok)
	}
	if f, ok := got.AsFloat64(); !ok || f != 24.5 {
		t.Fatalf("expected 24.5, got %v", got.Value)
	}

	tv.Value = 25.0
	tv.TimestampMs = 2000
	if err := s.UpsertCurrentValue(tv); err != nil {
		t.Fatalf("UpsertCurrentValue update: %v", err)
	}
	got, _, _ = s.CurrentValue(10)
	if f, _ := got.AsFloat64(); f != 25.0 {
		t.Fatalf("expected updated value 25.0, got %v", got.Value)
	}
}
