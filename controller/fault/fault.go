// Package fault defines the typed failures produced by acquisition and
// inference. Transport and parse errors never leave an adapter raw; they are
// classified into a Failure carrying enough context for a user-facing message.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a Failure.
type Kind int

const (
	Unknown Kind = iota
	Connection
	Timeout
	Protocol
	Configuration
	DriverUnavailable
)

func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Timeout:
		return "timeout"
	case Protocol:
		return "protocol"
	case Configuration:
		return "configuration"
	case DriverUnavailable:
		return "driver_unavailable"
	default:
		return "unknown"
	}
}

// Failure is the error type returned by every adapter and by bundle loading.
type Failure struct {
	Kind   Kind
	Source string // e.g. "simulated", "register", "cloud", "models"
	Op     string // e.g. "open", "read register 3", "GET feed"
	Err    error
}

// New builds a Failure wrapping err.
func New(kind Kind, source, op string, err error) *Failure {
	return &Failure{Kind: kind, Source: source, Op: op, Err: err}
}

// Newf builds a Failure with a formatted cause.
func Newf(kind Kind, source, op, format string, args ...any) *Failure {
	return New(kind, source, op, fmt.Errorf(format, args...))
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s: %s failure", f.Source, f.Op, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %s failure: %v", f.Source, f.Op, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Message returns the human-readable text shown to an operator.
func (f *Failure) Message() string {
	var prefix string
	switch f.Kind {
	case Connection:
		prefix = "Cannot reach sensor source"
	case Timeout:
		prefix = "Sensor source did not respond in time"
	case Protocol:
		prefix = "Sensor source sent an unexpected response"
	case Configuration:
		prefix = "Configuration problem"
	case DriverUnavailable:
		prefix = "Required transport driver is not available on this host"
	default:
		prefix = "Unexpected error"
	}
	if f.Err == nil {
		return fmt.Sprintf("%s (%s, %s)", prefix, f.Source, f.Op)
	}
	return fmt.Sprintf("%s (%s, %s): %v", prefix, f.Source, f.Op, f.Err)
}

// KindOf returns the Kind of the first Failure in err's chain, or Unknown.
func KindOf(err error) Kind {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	return Unknown
}

// Message renders err for display, using Failure.Message when available.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Message()
	}
	return err.Error()
}
