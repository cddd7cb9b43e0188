package model

import (
	"fmt"
	"math"
	"time"
)

// AlarmRule describes one alarm evaluation rule.
type AlarmRule struct {
	ID int64
	TenantID string
	Name string

	TargetType TargetType
	TargetID int64

	Kind AlarmKind

	// Analog thresholds. Use math.Inf(±1) for an absent limit.
	HighHigh float64
	High float64
	Low float64
	LowLow float64
	Deadband float64

	// Digital.
	TriggerCondition DigitalTrigger

	// Script.
	ConditionScript string

	MessageTemplate string
	MessageScript string

	Severity Severity
	Priority int
	AutoClear bool
	Enabled bool
}

// Validate checks the invariants places on AlarmRule.
func (r AlarmRule) Validate() error {
	entity := fmt.Sprintf("alarm_rule:%d", r.ID)
	switch r.TargetType {
	case TargetDataPoint, TargetVirtualPoint:
	default:
		return NewConfigInvalidError(entity, "unknown target_type "+string(r.TargetType))
	}
	switch r.Kind {
	case AlarmKindAnalog, AlarmKindDigital, AlarmKindScript:
	default:
		return NewConfigInvalidError(entity, "unknown kind "+string(r.Kind))
	}
	if r.Kind == AlarmKindAnalog {
		if r.Deadband < 0 {
			return NewConfigInvalidError(entity, "deadband must be >= 0")
		}
		limits := []float64{r.LowLow, r.Low, r.High, r.HighHigh}
		for i := 1; i < len(limits); i++ {
			if !math.IsInf(limits[i-1], 0) && !math.IsInf(limits[i], 0) && limits[i-1] > limits[i] {
				return NewConfigInvalidError(entity, "thresholds must satisfy low_low <= low <= high <= high_high")
			}
		}
	}
	if r.Kind == AlarmKindDigital {
		switch r.TriggerCondition {
		case TriggerOnTrue, TriggerOnFalse, TriggerOnChange:
		default:
			return NewConfigInvalidError(entity, "unknown trigger_condition "+string(r.TriggerCondition))
		}
	}
	if r.Severity < SeverityInfo || r.Severity > SeverityCritical {
		return NewConfigInvalidError(entity, "severity out of range")
	}
	return nil
}

// AlarmOccurrence is a single alarm event through its lifecycle.
type AlarmOccurrence struct {
	ID int64
	TargetID int64

	// CorrelationID is a process-assigned UUID (github.com/google/uuid)
	// carried alongside the store-assigned ID so logs, cache payloads and
	// operator tooling can correlate one occurrence across restarts even
	// before the store has assigned it a row id.
	CorrelationID string

	RuleID int64
	TenantID string
	OccurrenceTime time.Time
	TriggerValue float64
	State OccurrenceState
	Severity Severity
	ClearedTime *time.Time
	AckTime *time.Time
	ContextData map[string]string
}
