package driver

import "github.com/pulseone-io/collector/pkg/model"

// New constructs the concrete ProtocolDriver for a protocol. WorkerFactory
// is the only expected caller.
func New(protocol model.Protocol) (ProtocolDriver, error) {
	switch protocol {
	case model.ProtocolModbusTCP:
		return NewModbusTCP(), nil
	case model.ProtocolModbusRTU:
		return NewModbusRTU(), nil
	case model.ProtocolMQTT:
		return NewMQTT(), nil
	case model.ProtocolBACnetIP:
		return NewBACnetIP(), nil
	default:
		return nil, model.NewConfigInvalidError("protocol:"+string(protocol), "unsupported protocol")
	}
}
