// Package alarm implements AlarmEngine: rule matching
// against incoming values (analog thresholds with hysteresis, digital
// transitions, script conditions), the occurrence state machine, and
// startup recovery of active alarms. Like vpe, it is a process-wide
// singleton with explicit Initialize/Shutdown.
package alarm
