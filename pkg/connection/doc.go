// Package connection provides the bounded exponential backoff calculator
// and connection lifecycle manager shared by every DeviceWorker's driver
// session.
//
// # Reconnection strategy
//
// When a worker's driver reports session loss, the worker retries connect()
// at interval min(retry_interval_ms * backoff_multiplier^n, max_backoff_time_ms)
// for up to max_retry_count attempts (0 = unbounded). Backoff.Next returns
// successive delays following that formula; Backoff.Reset restores the
// initial delay after a successful connect. Manager drives that retry loop
// around a caller-supplied connect function, tracking DISCONNECTED /
// CONNECTING / CONNECTED / RECONNECTING / CLOSED state and invoking
// OnMaxAttemptsExceeded once max_retry_count is reached, so the owning
// DeviceWorker can transition to DEVICE_OFFLINE.
//
// # Jitter
//
// Optional jitter can be layered on top to avoid a thundering herd when
// many devices lose connectivity at once:
//
//	actual_delay = base_delay + random(0, base_delay * jitter_factor)
//
// It defaults to 0 so the delay sequence matches formula exactly;
// callers that want jitter set BackoffConfig.Jitter explicitly.
package connection
