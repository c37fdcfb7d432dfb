package soil

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/goburrow/modbus"
	"github.com/reef-pi/hal"

	"github.com/pepper-guardian/guardian/controller/fault"
)

// Transport reads single 16-bit registers from a probe. Close releases the
// underlying serial handle.
type Transport interface {
	ReadRegister(offset uint16, fc FunctionCode) (uint16, error)
	Close() error
}

// TransportOpener opens a Transport for cfg.
type TransportOpener func(cfg RegisterConfig) (Transport, error)

var (
	transportsMu sync.RWMutex
	transports   = make(map[string]TransportOpener)
)

// RegisterTransport makes a transport driver available under name.
func RegisterTransport(name string, open TransportOpener) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = open
}

// Transports lists registered transport driver names.
func Transports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	names := make([]string, 0, len(transports))
	for n := range transports {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func lookupTransport(name string) (TransportOpener, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	open, ok := transports[name]
	return open, ok
}

// RegisterAdapter reads the wired probe: 7 sequential single-register reads.
type RegisterAdapter struct {
	Logf     func(format string, args ...any)
	warnOnce sync.Once
}

// NewRegisterAdapter returns an adapter logging through logf (log.Printf when nil).
func NewRegisterAdapter(logf func(string, ...any)) *RegisterAdapter {
	return &RegisterAdapter{Logf: logf}
}

func (a *RegisterAdapter) logf(format string, args ...any) {
	if a.Logf != nil {
		a.Logf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (a *RegisterAdapter) Acquire(ctx context.Context, cfg Config) (Reading, error) {
	rc := cfg.Register
	if err := rc.Validate(); err != nil {
		return Reading{}, err
	}
	open, ok := lookupTransport(rc.transportName())
	if !ok {
		return Reading{}, fault.Newf(fault.DriverUnavailable, ModeRegister.String(), "open",
			"no %q transport driver (available: %s)", rc.transportName(), strings.Join(Transports(), ", "))
	}

	specs := rc.Map
	if len(specs) == 0 {
		specs = DefaultRegisterMap()
		a.warnOnce.Do(func() {
			a.logf("REGISTER: using placeholder register map (offsets 0-6); verify against the probe datasheet")
		})
	}
	pins, err := newRegisterPins(specs, rc.FunctionCode)
	if err != nil {
		return Reading{}, err
	}

	t, err := open(rc)
	if err != nil {
		return Reading{}, classifyOpen(err)
	}
	var drv hal.AnalogInputDriver = newProbeDriver(t, rc, pins)
	defer drv.Close()
	return a.read(ctx, drv, pins)
}

// read measures every analog input of drv. Inputs come back in register map
// order, so fields[i] names input i.
func (a *RegisterAdapter) read(ctx context.Context, drv hal.AnalogInputDriver, fields []*registerPin) (Reading, error) {
	meta := drv.Metadata()
	if !meta.HasCapability(hal.AnalogInput) {
		return Reading{}, fault.Newf(fault.DriverUnavailable, ModeRegister.String(), "acquire",
			"%s has no analog inputs", meta.Name)
	}
	inputs := drv.AnalogInputPins()
	if len(inputs) != len(fields) {
		return Reading{}, fault.Newf(fault.Configuration, ModeRegister.String(), "acquire",
			"%s exposes %d inputs, map has %d", meta.Name, len(inputs), len(fields))
	}
	var r Reading
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return Reading{}, fault.New(fault.Timeout, ModeRegister.String(), "acquire", err)
		}
		v, err := in.Value()
		if err != nil {
			a.logf("REGISTER: %s on %s: %s", in.Name(), meta.Description, fault.Message(err))
			return Reading{}, err
		}
		r.set(fields[i].field, v)
	}
	return r, nil
}

func classifyOpen(err error) error {
	var f *fault.Failure
	if errors.As(err, &f) {
		return f
	}
	if errors.Is(err, errors.ErrUnsupported) {
		return fault.New(fault.DriverUnavailable, ModeRegister.String(), "open", err)
	}
	return fault.New(fault.Connection, ModeRegister.String(), "open", err)
}

type timeouter interface{ Timeout() bool }

func classifyRead(offset uint16, err error) error {
	op := fmt.Sprintf("read register %d", offset)
	var f *fault.Failure
	if errors.As(err, &f) {
		return f
	}
	var t timeouter
	if (errors.As(err, &t) && t.Timeout()) || errors.Is(err, os.ErrDeadlineExceeded) ||
		strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return fault.New(fault.Timeout, ModeRegister.String(), op, err)
	}
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return fault.New(fault.Protocol, ModeRegister.String(), op, err)
	}
	var pe *os.PathError
	if errors.As(err, &pe) {
		return fault.New(fault.Connection, ModeRegister.String(), op, err)
	}
	return fault.New(fault.Protocol, ModeRegister.String(), op, err)
}

// Probe opens the transport for cfg, reads one raw register and closes it.
func Probe(cfg RegisterConfig, offset uint16) (uint16, error) {
	cfg.Map = nil
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	open, ok := lookupTransport(cfg.transportName())
	if !ok {
		return 0, fault.Newf(fault.DriverUnavailable, ModeRegister.String(), "open",
			"no %q transport driver", cfg.transportName())
	}
	t, err := open(cfg)
	if err != nil {
		return 0, classifyOpen(err)
	}
	defer t.Close()
	v, err := t.ReadRegister(offset, cfg.FunctionCode)
	if err != nil {
		return 0, classifyRead(offset, err)
	}
	return v, nil
}
