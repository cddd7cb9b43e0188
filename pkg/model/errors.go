package model

import "fmt"

// ConfigInvalidError is returned when a configuration entity fails
// validation. It is the only error kind that aborts bootstrap; everywhere
// else it causes the offending entity (one device, one rule, one virtual
// point) to be rejected while its peers continue.
type ConfigInvalidError struct {
	// Entity names what was being validated, e.g. "device:7" or "point:42".
	Entity string
	// Reason is a short human-readable explanation.
	Reason string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("config invalid for %s: %s", e.Entity, e.Reason)
}

// NewConfigInvalidError builds a ConfigInvalidError.
func NewConfigInvalidError(entity, reason string) error {
	return &ConfigInvalidError{Entity: entity, Reason: reason}
}
