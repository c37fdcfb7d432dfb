package soil

import (
	"fmt"
	"math"
	"sync"

	"github.com/Knetic/govaluate"
	"github.com/reef-pi/hal"

	"github.com/pepper-guardian/guardian/controller/fault"
)

const probeDriverName = "RS485 soil probe"

var _ hal.AnalogInputDriver = (*probeDriver)(nil)

// probeDriver exposes an open probe session as a hal driver with one analog
// input pin per mapped register. Closing the driver releases the transport.
type probeDriver struct {
	meta      hal.Metadata
	transport Transport
	pins      []*registerPin
	closeOnce sync.Once
	closeErr  error
}

func newProbeDriver(t Transport, rc RegisterConfig, pins []*registerPin) *probeDriver {
	d := &probeDriver{
		meta: hal.Metadata{
			Name:         probeDriverName,
			Description:  fmt.Sprintf("%s slave %d @ %d 8N1", rc.Port, rc.SlaveID, rc.Baud),
			Capabilities: []hal.Capability{hal.AnalogInput},
		},
		transport: t,
		pins:      pins,
	}
	for _, p := range pins {
		p.driver = d
	}
	return d
}

func (d *probeDriver) Name() string           { return probeDriverName }
func (d *probeDriver) Metadata() hal.Metadata { return d.meta }

func (d *probeDriver) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.transport.Close()
	})
	return d.closeErr
}

// Pins returns pins for the requested capability.
func (d *probeDriver) Pins(cap hal.Capability) ([]hal.Pin, error) {
	switch cap {
	case hal.AnalogInput:
		pins := make([]hal.Pin, 0, len(d.pins))
		for _, p := range d.pins {
			pins = append(pins, p)
		}
		return pins, nil
	default:
		return nil, fmt.Errorf("unsupported capability: %s", cap.String())
	}
}

func (d *probeDriver) AnalogInputPins() []hal.AnalogInputPin {
	pins := make([]hal.AnalogInputPin, 0, len(d.pins))
	for _, p := range d.pins {
		pins = append(pins, p)
	}
	return pins
}

// AnalogInputPin returns the pin bound to register offset n.
func (d *probeDriver) AnalogInputPin(n int) (hal.AnalogInputPin, error) {
	for _, p := range d.pins {
		if p.Number() == n {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%s: no register %d", probeDriverName, n)
}

// registerPin converts one raw register into a field value.
type registerPin struct {
	driver *probeDriver
	field  Field
	spec   RegisterSpec
	fc     FunctionCode
	expr   *govaluate.EvaluableExpression
}

func newRegisterPins(specs []RegisterSpec, fc FunctionCode) ([]*registerPin, error) {
	pins := make([]*registerPin, 0, len(specs))
	for _, spec := range specs {
		f, err := ParseField(spec.Field)
		if err != nil {
			return nil, fault.New(fault.Configuration, ModeRegister.String(), "register map", err)
		}
		p := &registerPin{field: f, spec: spec, fc: fc}
		if spec.Expression != "" {
			expr, err := govaluate.NewEvaluableExpression(spec.Expression)
			if err != nil {
				return nil, fault.Newf(fault.Configuration, ModeRegister.String(), "register map",
					"%s expression %q: %v", f, spec.Expression, err)
			}
			p.expr = expr
		}
		pins = append(pins, p)
	}
	return pins, nil
}

func (p *registerPin) Name() string           { return fmt.Sprintf("%s (reg %d)", p.field, p.spec.Offset) }
func (p *registerPin) Number() int            { return int(p.spec.Offset) }
func (p *registerPin) Close() error           { return nil }
func (p *registerPin) Metadata() hal.Metadata { return p.driver.meta }

// Calibrate is a no-op; scaling comes from the register map.
func (p *registerPin) Calibrate(_ []hal.Measurement) error { return nil }

func (p *registerPin) Value() (float64, error) { return p.Measure() }

// Measure issues a single register read and applies the configured scaling.
func (p *registerPin) Measure() (float64, error) {
	raw, err := p.driver.transport.ReadRegister(p.spec.Offset, p.fc)
	if err != nil {
		return 0, classifyRead(p.spec.Offset, err)
	}
	return p.convert(raw)
}

func (p *registerPin) convert(raw uint16) (float64, error) {
	if p.expr == nil {
		return float64(raw) / math.Pow(10, float64(p.spec.Decimals)), nil
	}
	out, err := p.expr.Evaluate(map[string]interface{}{"raw": float64(raw)})
	if err != nil {
		return 0, fault.Newf(fault.Configuration, ModeRegister.String(), "convert",
			"%s expression: %v", p.field, err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fault.Newf(fault.Configuration, ModeRegister.String(), "convert",
			"%s expression returned %T, want number", p.field, out)
	}
	return v, nil
}
