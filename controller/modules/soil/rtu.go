package soil

import (
	"encoding/binary"
	"fmt"

	"github.com/goburrow/modbus"
)

func init() {
	RegisterTransport("rtu", OpenRTU)
}

// rtuTransport is a Modbus RTU session over a serial line.
type rtuTransport struct {
	handler *modbus.RTUClientHandler
	client  modbus.Client
}

// OpenRTU connects to cfg.Port with 8 data bits, no parity and 1 stop bit.
func OpenRTU(cfg RegisterConfig) (Transport, error) {
	h := modbus.NewRTUClientHandler(cfg.Port)
	h.BaudRate = cfg.Baud
	h.DataBits = 8
	h.Parity = "N"
	h.StopBits = 1
	h.SlaveId = byte(cfg.SlaveID)
	h.Timeout = cfg.Timeout()
	if err := h.Connect(); err != nil {
		return nil, err
	}
	return &rtuTransport{handler: h, client: modbus.NewClient(h)}, nil
}

func (t *rtuTransport) ReadRegister(offset uint16, fc FunctionCode) (uint16, error) {
	var (
		b   []byte
		err error
	)
	switch fc {
	case HoldingRegisters:
		b, err = t.client.ReadHoldingRegisters(offset, 1)
	case InputRegisters:
		b, err = t.client.ReadInputRegisters(offset, 1)
	default:
		return 0, fmt.Errorf("unsupported function code %d", fc)
	}
	if err != nil {
		return 0, err
	}
	if len(b) < 2 {
		return 0, fmt.Errorf("short register response: %d bytes", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

func (t *rtuTransport) Close() error {
	return t.handler.Close()
}
