package alarm

import (
	"github.com/pulseone-io/collector/pkg/model"
)

// analogLevel names which threshold, if any, is currently crossed. It is
// the hysteresis state deadband rule needs: once a limit is
// crossed, the value must recross the threshold minus half the deadband
// (plus half, on the low side) before the alarm clears, preventing ACTIVE/CLEARED oscillation while it hovers near
// the boundary.
type analogLevel int

const (
	levelNone analogLevel = iota
	levelLow
	levelLowLow
	levelHigh
	levelHighHigh
)

// evalAnalog implements analog rule: HIGH_HIGH/LOW_LOW take
// precedence when crossed; once active, the alarm clears only when the
// value recrosses the inner threshold minus half the deadband (or plus,
// for the low side).
func evalAnalog(rule model.AlarmRule, value float64, prev analogLevel) analogLevel {
	half := rule.Deadband / 2

	switch {
	case value >= rule.HighHigh+half:
		return levelHighHigh
	case value >= rule.High+half:
		return levelHigh
	case value <= rule.LowLow-half:
		return levelLowLow
	case value <= rule.Low-half:
		return levelLow
	}

	switch prev {
	case levelHigh, levelHighHigh:
		if value < rule.High-half {
			return levelNone
		}
		return prev
	case levelLow, levelLowLow:
		if value > rule.Low+half {
			return levelNone
		}
		return prev
	default:
		return levelNone
	}
}

// limitFor returns the threshold value associated with level, used for
// {limit} message-template substitution.
func limitFor(rule model.AlarmRule, level analogLevel) float64 {
	switch level {
	case levelHighHigh:
		return rule.HighHigh
	case levelHigh:
		return rule.High
	case levelLow:
		return rule.Low
	case levelLowLow:
		return rule.LowLow
	default:
		return 0
	}
}

func levelName(level analogLevel) string {
	switch level {
	case levelHighHigh:
		return "HIGH_HIGH"
	case levelHigh:
		return "HIGH"
	case levelLow:
		return "LOW"
	case levelLowLow:
		return "LOW_LOW"
	default:
		return "NONE"
	}
}

// evalDigital implements digital rule over the transition
// (prev -> v). on_change reports the single scan where the value differs
// from the prior sample; it is not a sustained condition, so the caller
// clears it on the following scan when the rule has auto_clear set, unless
// the value changes again.
func evalDigital(rule model.AlarmRule, prev *bool, v bool) bool {
	switch rule.TriggerCondition {
	case model.TriggerOnTrue:
		return v
	case model.TriggerOnFalse:
		return !v
	case model.TriggerOnChange:
		return prev != nil && *prev != v
	default:
		return false
	}
}
