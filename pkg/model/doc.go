// Package model defines the data types shared across the collector's
// runtime data plane: devices, data points, timestamped values, alarm
// rules and occurrences, and virtual points. These types are the wire
// contract between the ConfigStore (external, read-only), the protocol
// drivers, and the processing/alarm/virtual-point engines.
package model
