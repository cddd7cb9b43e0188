package driver

import "errors"

// Sentinel errors surfaced by connect/write_value per . Drivers
// wrap these with fmt.Errorf("...: %w", ErrX) so callers can errors.Is them.
var (
	ErrUnreachable = errors.New("device unreachable")
	ErrAuthFailed = errors.New("authentication failed")
	ErrTimeout = errors.New("operation timed out")
	ErrNotWritable = errors.New("point is not writable")
	ErrRange = errors.New("value out of range")
	ErrNotConnected = errors.New("driver not connected")
)
