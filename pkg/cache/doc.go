// Package cache implements synchronous, best-effort writes of scan
// results, alarm occurrences, virtual-point results, and worker status to
// the hot key-value cache, plus the pub/sub fan-out for alarm channels.
// The key layout and payload shapes are a bit-exact external contract;
// nothing here may change field names or key formats without breaking
// consumers.
package cache
