// Package workermanager implements WorkerManager: the
// process-wide registry of DeviceWorkers, keyed by device id. It is the
// only component that constructs and destroys workers; WorkerFactory only
// configures them.
package workermanager
