package alarm

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pulseone-io/collector/pkg/model"
)

type fakeStore struct {
	mu sync.Mutex
	nextID int64
	saved []model.AlarmOccurrence
	active []model.AlarmOccurrence
}

func (f *fakeStore) SaveAlarmOccurrence(occ model.AlarmOccurrence) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	occ.ID = f.nextID
	f.saved = append(f.saved, occ)
	return f.nextID, nil
}

func (f *fakeStore) UpdateAlarmOccurrence(occ model.AlarmOccurrence) error {
	return nil
}

func (f *fakeStore) FindActiveAlarmOccurrences() ([]model.AlarmOccurrence, error) {
	return f.active, nil
}

func tv(pointID int64, value float64, ts int64) model.TimestampedValue {
	return model.TimestampedValue{PointID: pointID, Value: value, Quality: model.QualityGood, TimestampMs: ts}
}

// TestThresholdAlarmE1 reproduces the documented scenario.
func TestThresholdAlarmE1(t *testing.T) {
	var active []model.AlarmOccurrence
	var cleared []model.AlarmOccurrence
	store := &fakeStore{}

	e := New()
	if err := e.Initialize(Config{
		Store: store,
		Rules: []model.AlarmRule{{
			ID: 1, TargetType: model.TargetDataPoint, TargetID: 4, Kind: model.AlarmKindAnalog,
			High: 35.0, HighHigh: math.Inf(1), Low: math.Inf(-1), LowLow: math.Inf(-1), Deadband: 2.0,
			Severity: model.SeverityHigh, AutoClear: true, Enabled: true,
		}},
		OnOccurrence: func(rule model.AlarmRule, occ model.AlarmOccurrence, msg string) { active = append(active, occ) },
		OnClear: func(rule model.AlarmRule, occ model.AlarmOccurrence) { cleared = append(cleared, occ) },
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	readings := []float64{34.0, 36.5, 37.0, 34.5, 33.0}
	for i, v := range readings {
		e.Evaluate(tv(4, v, int64(i)), model.TargetDataPoint)
	}

	// the documented scenario: alarms:high receives exactly two events (trigger, clear) —
	// the 37.0 and 34.5 scans re-trigger the same non-terminal occurrence
	// and update trigger_value without a fresh publish.
	if len(active) != 1 {
		t.Fatalf("expected exactly 1 activation event, got %d", len(active))
	}
	if active[0].TriggerValue != 36.5 {
		t.Fatalf("expected activation at 36.5, got %v", active[0].TriggerValue)
	}
	if len(cleared) != 1 {
		t.Fatalf("expected exactly one clear event, got %d", len(cleared))
	}
}

// TestDigitalEmergencyStopE2 reproduces the documented scenario.
func TestDigitalEmergencyStopE2(t *testing.T) {
	var activations, clears int
	store := &fakeStore{}

	e := New()
	if err := e.Initialize(Config{
		Store: store,
		Rules: []model.AlarmRule{{
			ID: 5, TargetType: model.TargetDataPoint, TargetID: 5, Kind: model.AlarmKindDigital,
			TriggerCondition: model.TriggerOnTrue, Severity: model.SeverityCritical, AutoClear: true, Enabled: true,
		}},
		OnOccurrence: func(rule model.AlarmRule, occ model.AlarmOccurrence, msg string) { activations++ },
		OnClear: func(rule model.AlarmRule, occ model.AlarmOccurrence) { clears++ },
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	inputs := []bool{false, false, true, true, false}
	for i, v := range inputs {
		tv := model.TimestampedValue{PointID: 5, Value: v, Quality: model.QualityGood, TimestampMs: int64(i)}
		e.Evaluate(tv, model.TargetDataPoint)
	}

	if activations != 1 {
		t.Fatalf("expected a single ACTIVE event on the 0->1 edge, got %d", activations)
	}
	if clears != 1 {
		t.Fatalf("expected a single CLEARED event on the 1->0 edge, got %d", clears)
	}
}

func TestNoOscillationWithinDeadband(t *testing.T) {
	store := &fakeStore{}
	var transitions int
	e := New()
	if err := e.Initialize(Config{
		Store: store,
		Rules: []model.AlarmRule{{
			ID: 1, TargetType: model.TargetDataPoint, TargetID: 1, Kind: model.AlarmKindAnalog,
			High: 35.0, HighHigh: math.Inf(1), Low: math.Inf(-1), LowLow: math.Inf(-1), Deadband: 2.0,
			Severity: model.SeverityHigh, AutoClear: true, Enabled: true,
		}},
		OnOccurrence: func(model.AlarmRule, model.AlarmOccurrence, string) { transitions++ },
		OnClear: func(model.AlarmRule, model.AlarmOccurrence) { transitions++ },
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// 36.5 triggers ACTIVE; then hover within +-1 of the threshold (35),
	// which is inside the deadband's clear boundary (34) and must not
	// oscillate.
	e.Evaluate(tv(1, 36.5, 0), model.TargetDataPoint)
	hoverCount := transitions
	for i, v := range []float64{35.5, 34.5, 35.2, 34.8} {
		e.Evaluate(tv(1, v, int64(i+1)), model.TargetDataPoint)
	}
	if transitions != hoverCount {
		t.Fatalf("expected no further transitions while hovering in the deadband, got %d extra", transitions-hoverCount)
	}
}

// TestAnalogExactBoundaryActivatesWithZeroDeadband covers the documented
// edge case: a value exactly at the high limit with no deadband widening
// must activate, not wait for a strictly-greater sample.
func TestAnalogExactBoundaryActivatesWithZeroDeadband(t *testing.T) {
	store := &fakeStore{}
	var active []model.AlarmOccurrence
	e := New()
	if err := e.Initialize(Config{
		Store: store,
		Rules: []model.AlarmRule{{
			ID: 1, TargetType: model.TargetDataPoint, TargetID: 1, Kind: model.AlarmKindAnalog,
			High: 35.0, HighHigh: math.Inf(1), Low: math.Inf(-1), LowLow: math.Inf(-1), Deadband: 0,
			Severity: model.SeverityHigh, AutoClear: true, Enabled: true,
		}},
		OnOccurrence: func(rule model.AlarmRule, occ model.AlarmOccurrence, msg string) { active = append(active, occ) },
		OnClear: func(model.AlarmRule, model.AlarmOccurrence) {},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	e.Evaluate(tv(1, 35.0, 0), model.TargetDataPoint)

	if len(active) != 1 {
		t.Fatalf("expected value exactly at High to activate, got %d activations", len(active))
	}
	if active[0].TriggerValue != 35.0 {
		t.Fatalf("expected trigger value 35.0, got %v", active[0].TriggerValue)
	}
}

func TestStartupRecoveryRepublishesWithoutNewRows(t *testing.T) {
	store := &fakeStore{
		active: []model.AlarmOccurrence{
			{ID: 1, RuleID: 1, TargetID: 10, State: model.StateActive, Severity: model.SeverityHigh},
			{ID: 2, RuleID: 1, TargetID: 11, State: model.StateActive, Severity: model.SeverityHigh},
			{ID: 3, RuleID: 1, TargetID: 12, State: model.StateAcknowledged, Severity: model.SeverityHigh},
		},
	}
	var republished int
	e := New()
	if err := e.Initialize(Config{
		Store: store,
		Rules: []model.AlarmRule{{ID: 1, TargetType: model.TargetDataPoint, TargetID: 10, Kind: model.AlarmKindAnalog, High: 1, HighHigh: math.Inf(1), Low: math.Inf(-1), LowLow: math.Inf(-1), Enabled: true}},
		OnOccurrence: func(model.AlarmRule, model.AlarmOccurrence, string) { republished++ },
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if republished != 3 {
		t.Fatalf("expected 3 republished occurrences, got %d", republished)
	}
	if len(store.saved) != 0 {
		t.Fatalf("expected no new occurrence rows created during recovery, got %d", len(store.saved))
	}
	if len(e.Active()) != 3 {
		t.Fatalf("expected 3 tracked active occurrences, got %d", len(e.Active()))
	}
}

func TestAcknowledgeThenClear(t *testing.T) {
	store := &fakeStore{}
	e := New()
	if err := e.Initialize(Config{
		Store: store,
		Rules: []model.AlarmRule{{ID: 1, TargetType: model.TargetDataPoint, TargetID: 1, Kind: model.AlarmKindAnalog, High: 10, HighHigh: math.Inf(1), Low: math.Inf(-1), LowLow: math.Inf(-1), AutoClear: false, Enabled: true}},
	}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	e.Evaluate(tv(1, 20, 0), model.TargetDataPoint)
	if err := e.Acknowledge(1, 1); err != nil {
		t.Fatalf("Acknowledge: %v", err)
	}
	// falling edge with auto_clear=false must not clear automatically.
	e.Evaluate(tv(1, 0, 1), model.TargetDataPoint)
	active := e.Active()
	if len(active) != 1 || active[0].State != model.StateAcknowledged {
		t.Fatalf("expected occurrence to remain ACKNOWLEDGED, got %+v", active)
	}

	if err := e.Clear(1, 1); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	time.Sleep(time.Millisecond)
	if len(e.Active()) != 0 {
		t.Fatal("expected no active occurrences after explicit clear")
	}
}
