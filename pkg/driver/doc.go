// Package driver defines the ProtocolDriver contract: opaque,
// synchronous I/O over one device. Each concrete driver owns exactly one
// device connection; DeviceWorker owns exactly one driver instance.
//
// Engineering-unit conversion (raw*scaling_factor+scaling_offset, clamped to
// [min_value, max_value] when both are finite) is DataPoint.ToEngineering,
// also exposed here as Convert. The Modbus and BACnet drivers apply it to the
// raw numbers they read; the MQTT driver returns payloads as strings without
// conversion.
package driver
