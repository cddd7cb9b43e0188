// Package worker implements DeviceWorker, one instance per device. Each
// worker owns exactly one driver.ProtocolDriver, running a scan loop and
// an independent reconnect loop.
//
// State machine:
//
//	CREATED -> INITIALIZING -> CONNECTING -> RUNNING <-> RECONNECTING
//	        -> {RUNNING, DEVICE_OFFLINE} -> STOPPING -> STOPPED
//
// ERROR is terminal and reached only from invalid configuration;
// connectivity failures always route through RECONNECTING, never ERROR.
package worker
