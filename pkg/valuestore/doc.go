// Package valuestore provides the in-memory last-value cache shared by
// DeviceWorker (value-changed detection, worker.CurrentValueStore) and
// VirtualPointEngine (formula input resolution, vpe.DataSource). It is a
// process-local, non-durable complement to the cache and ConfigStore
// layers: a restart always starts from empty, which is why cmd/collector
// seeds it from ConfigStore.CurrentValue at bootstrap, and the engines tolerate
// a cold store returning "not found" until the first value arrives.
package valuestore
