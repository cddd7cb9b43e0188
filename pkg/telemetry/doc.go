// Package telemetry provides structured event logging for the collector's
// runtime data plane.
//
// This package defines the Logger interface and Event type for capturing
// scan, reconnect, alarm, virtual-point, and cache-write events across
// workers and engines. It is separate from the engines' own error returns:
// a failed operation both returns a typed error to its caller and emits an
// Event so operators have a live, queryable trail without tailing stdout.
//
// # Basic usage
//
//	logger := telemetry.NewSlogAdapter(slog.Default())
//	logger.Log(telemetry.Event{Category: telemetry.CategoryReconnect, DeviceID: "7", ...})
//
// Applications that want both console output and a second sink (metrics,
// a ring buffer for the operator console) compose with MultiLogger.
package telemetry
