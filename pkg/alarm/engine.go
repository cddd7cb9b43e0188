package alarm

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulseone-io/collector/pkg/model"
	"github.com/pulseone-io/collector/pkg/telemetry"
)

// Store is the persistence subset AlarmEngine needs from the external
// ConfigStore/occurrence store.
type Store interface {
	SaveAlarmOccurrence(occ model.AlarmOccurrence) (int64, error)
	UpdateAlarmOccurrence(occ model.AlarmOccurrence) error
	FindActiveAlarmOccurrences() ([]model.AlarmOccurrence, error)
}

// PointNamer resolves a point's display name for {point_name} message
// substitution.
type PointNamer interface {
	Name(pointID int64, isVirtual bool) string
}

// Config bundles everything Initialize needs (: explicit
// initialize(deps…)).
type Config struct {
	Rules []model.AlarmRule
	Store Store
	Points PointNamer
	Logger telemetry.Logger

	// OnOccurrence fires when a new occurrence is created and for each
	// non-terminal occurrence recovered at startup. It does not fire on a
	// trigger_value refresh or on acknowledgement. cmd/collector wires this
	// to cache.Writer.WriteAlarmActive.
	OnOccurrence func(rule model.AlarmRule, occ model.AlarmOccurrence, message string)
	// OnClear fires when an occurrence reaches CLEARED. Wired to
	// cache.Writer.ClearAlarm.
	OnClear func(rule model.AlarmRule, occ model.AlarmOccurrence)
}

type trackKey struct {
	ruleID int64
	targetID int64
}

type tracked struct {
	mu sync.Mutex
	occurrence *model.AlarmOccurrence
	analogLevel analogLevel
	prevDigital *bool
}

// Engine is the process-wide AlarmEngine singleton.
type Engine struct {
	mu sync.RWMutex
	rulesByTarget map[int64][]model.AlarmRule

	tracksMu sync.Mutex
	tracks map[trackKey]*tracked

	scriptsMu sync.Mutex
	scripts map[int64]*scriptRunner

	store Store
	points PointNamer
	logger telemetry.Logger
	onOccurrence func(model.AlarmRule, model.AlarmOccurrence, string)
	onClear func(model.AlarmRule, model.AlarmOccurrence)
}

// New constructs an uninitialized Engine. Call Initialize before use.
func New() *Engine {
	return &Engine{}
}

// Initialize indexes rules by target, wires dependencies, and performs
// startup recovery: every persisted ACTIVE/ACKNOWLEDGED
// occurrence is republished to the cache/pub-sub via OnOccurrence without
// re-evaluating the underlying value or creating a new row.
func (e *Engine) Initialize(cfg Config) error {
	if cfg.Store == nil {
		return fmt.Errorf("alarm: Store must be injected")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}

	byTarget := make(map[int64][]model.AlarmRule)
	ruleByID := make(map[int64]model.AlarmRule, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if !r.Enabled {
			continue
		}
		if err := r.Validate(); err != nil {
			logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, RuleID: r.ID, Message: "alarm rule rejected", Err: err})
			continue
		}
		byTarget[r.TargetID] = append(byTarget[r.TargetID], r)
		ruleByID[r.ID] = r
	}

	e.mu.Lock()
	e.rulesByTarget = byTarget
	e.store = cfg.Store
	e.points = cfg.Points
	e.logger = logger
	e.onOccurrence = cfg.OnOccurrence
	e.onClear = cfg.OnClear
	e.tracks = make(map[trackKey]*tracked)
	e.scripts = make(map[int64]*scriptRunner)
	e.mu.Unlock()

	active, err := cfg.Store.FindActiveAlarmOccurrences()
	if err != nil {
		logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, Message: "startup recovery read failed", Err: err})
		return nil
	}
	for _, occ := range active {
		rule, ok := ruleByID[occ.RuleID]
		if !ok {
			continue
		}
		o := occ
		t := e.trackFor(trackKey{ruleID: rule.ID, targetID: occ.TargetID})
		t.mu.Lock()
		t.occurrence = &o
		t.mu.Unlock()

		if e.onOccurrence != nil {
			message := renderTemplate(rule.MessageTemplate, occ.TriggerValue, 0, e.pointName(rule))
			e.onOccurrence(rule, o, message)
		}
	}
	return nil
}

// Shutdown is a no-op placeholder for symmetry with vpe.Engine and
// explicit-lifecycle design note; AlarmEngine holds no
// background goroutines to drain.
func (e *Engine) Shutdown() {}

func (e *Engine) trackFor(k trackKey) *tracked {
	e.tracksMu.Lock()
	defer e.tracksMu.Unlock()
	t, ok := e.tracks[k]
	if !ok {
		t = &tracked{}
		e.tracks[k] = t
	}
	return t
}

func (e *Engine) scriptFor(ruleID int64) *scriptRunner {
	e.scriptsMu.Lock()
	defer e.scriptsMu.Unlock()
	s, ok := e.scripts[ruleID]
	if !ok {
		s = newScriptRunner(0)
		e.scripts[ruleID] = s
	}
	return s
}

func (e *Engine) pointName(rule model.AlarmRule) string {
	if e.points == nil {
		return ""
	}
	return e.points.Name(rule.TargetID, rule.TargetType == model.TargetVirtualPoint)
}

// Evaluate matches every rule targeting tv's point against its new value
// and drives the occurrence state machine for each match.
// targetType distinguishes data-point ids from virtual-point ids sharing
// the same integer space.
func (e *Engine) Evaluate(tv model.TimestampedValue, targetType model.TargetType) {
	e.mu.RLock()
	rules := e.rulesByTarget[tv.PointID]
	e.mu.RUnlock()

	for _, rule := range rules {
		if rule.TargetType != targetType {
			continue
		}
		e.evaluateRule(rule, tv)
	}
}

func (e *Engine) evaluateRule(rule model.AlarmRule, tv model.TimestampedValue) {
	value, _ := tv.AsFloat64()
	key := trackKey{ruleID: rule.ID, targetID: tv.PointID}
	t := e.trackFor(key)

	t.mu.Lock()
	defer t.mu.Unlock()

	var active bool
	var level analogLevel = levelNone

	switch rule.Kind {
	case model.AlarmKindAnalog:
		level = evalAnalog(rule, value, t.analogLevel)
		t.analogLevel = level
		active = level != levelNone
	case model.AlarmKindDigital:
		b, _ := tv.Value.(bool)
		active = evalDigital(rule, t.prevDigital, b)
		prev := b
		t.prevDigital = &prev
	case model.AlarmKindScript:
		bindings := map[string]any{
			"value": value,
			"rule": map[string]any{"id": rule.ID, "name": rule.Name},
			"point": map[string]any{"id": tv.PointID},
		}
		result, err := e.scriptFor(rule.ID).run(rule.ConditionScript, bindings)
		if err != nil {
			e.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, RuleID: rule.ID, Message: "condition_script failed", Err: err})
			return
		}
		active = truthy(result)
	}

	limit := limitFor(rule, level)
	message := e.renderMessage(rule, value, limit)

	if active {
		e.activate(rule, tv, value, message, t)
		return
	}
	e.clear(rule, t)
}

func (e *Engine) renderMessage(rule model.AlarmRule, value, limit float64) string {
	if rule.MessageScript != "" {
		bindings := map[string]any{
			"value": value,
			"rule": map[string]any{"id": rule.ID, "name": rule.Name},
		}
		result, err := e.scriptFor(rule.ID).run(rule.MessageScript, bindings)
		if err == nil {
			return fmt.Sprintf("%v", result)
		}
		e.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, RuleID: rule.ID, Message: "message_script failed", Err: err})
	}
	if rule.MessageTemplate != "" {
		return renderTemplate(rule.MessageTemplate, value, limit, e.pointName(rule))
	}
	return defaultMessage(rule.Name, value, "threshold")
}

// activate creates a new occurrence or refreshes trigger_value on an
// existing non-terminal one.
func (e *Engine) activate(rule model.AlarmRule, tv model.TimestampedValue, value float64, message string, t *tracked) {
	if t.occurrence != nil && !t.occurrence.State.IsTerminal() {
		// Re-trigger while already non-terminal: refresh trigger_value in
		// the store but do not re-publish, so subscribers see one
		// alarms:high event per actual ACTIVE/CLEARED transition, not one
		// per scan the value stays above the threshold.
		t.occurrence.TriggerValue = value
		if err := e.store.UpdateAlarmOccurrence(*t.occurrence); err != nil {
			e.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, RuleID: rule.ID, Message: "update occurrence failed", Err: err})
		}
		return
	}

	occ := model.AlarmOccurrence{
		TargetID: tv.PointID,
		CorrelationID: uuid.NewString(),
		RuleID: rule.ID,
		TenantID: rule.TenantID,
		OccurrenceTime: time.Now(),
		TriggerValue: value,
		State: model.StateActive,
		Severity: rule.Severity,
	}
	id, err := e.store.SaveAlarmOccurrence(occ)
	if err != nil {
		e.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, RuleID: rule.ID, Message: "save occurrence failed", Err: err})
		return
	}
	occ.ID = id
	t.occurrence = &occ

	e.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, RuleID: rule.ID, PointID: tv.PointID, Message: "alarm activated", OldState: model.StateInactive.String(), NewState: model.StateActive.String()})
	if e.onOccurrence != nil {
		e.onOccurrence(rule, occ, message)
	}
}

// clear transitions a non-terminal occurrence to CLEARED when auto_clear
// is set; otherwise it waits for an explicit Clear call.
func (e *Engine) clear(rule model.AlarmRule, t *tracked) {
	if t.occurrence == nil || t.occurrence.State.IsTerminal() {
		return
	}
	if !rule.AutoClear {
		return
	}
	e.clearLocked(rule, t)
}

func (e *Engine) clearLocked(rule model.AlarmRule, t *tracked) {
	now := time.Now()
	t.occurrence.State = model.StateCleared
	t.occurrence.ClearedTime = &now
	if err := e.store.UpdateAlarmOccurrence(*t.occurrence); err != nil {
		e.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, RuleID: rule.ID, Message: "clear occurrence failed", Err: err})
	}
	e.logger.Log(telemetry.Event{Timestamp: time.Now(), Category: telemetry.CategoryAlarm, RuleID: rule.ID, Message: "alarm cleared", OldState: model.StateActive.String(), NewState: model.StateCleared.String()})
	if e.onClear != nil {
		e.onClear(rule, *t.occurrence)
	}
	t.occurrence = nil
	t.analogLevel = levelNone
}

// Acknowledge marks the non-terminal occurrence for (ruleID, targetID) as
// ACKNOWLEDGED. Acknowledgement is orthogonal to clearing.
func (e *Engine) Acknowledge(ruleID, targetID int64) error {
	t := e.trackFor(trackKey{ruleID: ruleID, targetID: targetID})
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.occurrence == nil || t.occurrence.State != model.StateActive {
		return fmt.Errorf("alarm: no ACTIVE occurrence for rule %d target %d", ruleID, targetID)
	}
	now := time.Now()
	t.occurrence.State = model.StateAcknowledged
	t.occurrence.AckTime = &now
	return e.store.UpdateAlarmOccurrence(*t.occurrence)
}

// Clear is the explicit operator clear for rules with auto_clear=false.
func (e *Engine) Clear(ruleID, targetID int64) error {
	e.mu.RLock()
	var rule model.AlarmRule
	found := false
	for _, rules := range e.rulesByTarget {
		for _, r := range rules {
			if r.ID == ruleID {
				rule = r
				found = true
			}
		}
	}
	e.mu.RUnlock()
	if !found {
		return fmt.Errorf("alarm: unknown rule %d", ruleID)
	}

	t := e.trackFor(trackKey{ruleID: ruleID, targetID: targetID})
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.occurrence == nil || t.occurrence.State.IsTerminal() {
		return fmt.Errorf("alarm: no active occurrence for rule %d target %d", ruleID, targetID)
	}
	e.clearLocked(rule, t)
	return nil
}

// Active returns every currently-tracked non-terminal occurrence, for
// diagnostics and the operator console.
func (e *Engine) Active() []model.AlarmOccurrence {
	e.tracksMu.Lock()
	defer e.tracksMu.Unlock()
	var out []model.AlarmOccurrence
	for _, t := range e.tracks {
		t.mu.Lock()
		if t.occurrence != nil && !t.occurrence.State.IsTerminal() {
			out = append(out, *t.occurrence)
		}
		t.mu.Unlock()
	}
	return out
}
