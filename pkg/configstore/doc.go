// Package configstore implements the SQLite-backed configuration and
// alarm-occurrence persistence layer. It sits outside the collector's
// runtime engines in the sense that every consumer reaches it through a
// narrow, read-mostly interface (see WorkerManager's device enumeration,
// AlarmEngine's Store, DataProcessingService's PointNamer) rather than
// importing this package's concrete type.
package configstore
