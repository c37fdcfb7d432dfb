package soil

import (
	"context"

	"github.com/pepper-guardian/guardian/controller/fault"
)

// Adapter produces a Reading or a *fault.Failure from one source.
type Adapter interface {
	Acquire(ctx context.Context, cfg Config) (Reading, error)
}

// Dispatcher routes a cycle to exactly one adapter by mode.
type Dispatcher struct {
	Simulated Adapter
	Register  Adapter
	Cloud     Adapter
}

// NewDispatcher wires the three standard adapters.
func NewDispatcher(logf func(string, ...any)) *Dispatcher {
	return &Dispatcher{
		Simulated: NewSimulator(),
		Register:  NewRegisterAdapter(logf),
		Cloud:     NewCloudAdapter(logf),
	}
}

// Dispatch forwards cfg unchanged to the adapter for cfg.Mode and returns its
// result unmodified.
func (d *Dispatcher) Dispatch(ctx context.Context, cfg Config) (Reading, error) {
	var a Adapter
	switch cfg.Mode {
	case ModeSimulated:
		a = d.Simulated
	case ModeRegister:
		a = d.Register
	case ModeCloud:
		a = d.Cloud
	default:
		return Reading{}, fault.Newf(fault.Configuration, "dispatcher", "select adapter", "unknown mode %d", int(cfg.Mode))
	}
	if a == nil {
		return Reading{}, fault.Newf(fault.DriverUnavailable, cfg.Mode.String(), "select adapter", "no adapter installed")
	}
	return a.Acquire(ctx, cfg)
}
