package configstore

import (
	"database/sql"
	"math"

	"github.com/pulseone-io/collector/pkg/model"
)

// FindAlarmRules returns every alarm rule, optionally narrowed to a
// tenant. An empty tenantID returns rules for every tenant.
func (s *Store) FindAlarmRules(tenantID string) ([]model.AlarmRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant_id, name, target_type, target_id, kind,
		high_high, high, low, low_low, deadband,
		trigger_condition, condition_script, message_template, message_script,
		severity, priority, auto_clear, enabled
		FROM alarm_rules`
	args := []any{}
	if tenantID != "" {
		query += " WHERE tenant_id = ?"
		args = append(args, tenantID)
	}
	query += " ORDER BY id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.AlarmRule
	for rows.Next() {
		r, err := scanAlarmRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func scanAlarmRule(sc scanner) (model.AlarmRule, error) {
	var r model.AlarmRule
	var targetType, kind, triggerCondition, severity string
	var highHigh, lowLow sql.NullFloat64
	var autoClear, enabled int

	err := sc.Scan(
		&r.ID, &r.TenantID, &r.Name, &targetType, &r.TargetID, &kind,
		&highHigh, &r.High, &r.Low, &lowLow, &r.Deadband,
		&triggerCondition, &r.ConditionScript, &r.MessageTemplate, &r.MessageScript,
		&severity, &r.Priority, &autoClear, &enabled,
	)
	if err != nil {
		return model.AlarmRule{}, translateScanErr(err)
	}

	r.TargetType = model.TargetType(targetType)
	r.Kind = model.AlarmKind(kind)
	r.TriggerCondition = model.DigitalTrigger(triggerCondition)
	r.AutoClear = autoClear != 0
	r.Enabled = enabled != 0

	if highHigh.Valid {
		r.HighHigh = highHigh.Float64
	} else {
		r.HighHigh = math.Inf(1)
	}
	if lowLow.Valid {
		r.LowLow = lowLow.Float64
	} else {
		r.LowLow = math.Inf(-1)
	}

	sev, err := model.ParseSeverity(severity)
	if err != nil {
		return model.AlarmRule{}, err
	}
	r.Severity = sev
	return r, nil
}
