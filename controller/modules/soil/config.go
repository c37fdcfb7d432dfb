package soil

import (
	"fmt"
	"strings"
	"time"

	"github.com/pepper-guardian/guardian/controller/fault"
)

// Config is the acquisition configuration. It is owned by the caller and
// passed by value into every cycle; adapters only read it.
type Config struct {
	Mode     Mode           `json:"mode" yaml:"mode"`
	Register RegisterConfig `json:"register" yaml:"register"`
	Cloud    CloudConfig    `json:"cloud" yaml:"cloud"`
}

// FunctionCode selects the Modbus register table.
type FunctionCode uint8

const (
	HoldingRegisters FunctionCode = 3
	InputRegisters   FunctionCode = 4
)

// SupportedBauds are the baud rates the probe accepts.
var SupportedBauds = []int{4800, 9600, 19200, 38400, 115200}

// RegisterSpec binds one register offset to a canonical field.
type RegisterSpec struct {
	Field    string `json:"field" yaml:"field"`
	Offset   uint16 `json:"offset" yaml:"offset"`
	Decimals int    `json:"decimals" yaml:"decimals"`
	// Expression, when set, replaces decimal scaling. The register value is
	// bound to the variable "raw", e.g. "raw / 10 - 40".
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`
}

// DefaultRegisterMap is the placeholder offset layout (0..6 in reading order).
// It has not been verified against a probe datasheet.
func DefaultRegisterMap() []RegisterSpec {
	return []RegisterSpec{
		{Field: Temperature.String(), Offset: 0, Decimals: 1},
		{Field: Moisture.String(), Offset: 1, Decimals: 1},
		{Field: Nitrogen.String(), Offset: 2, Decimals: 0},
		{Field: Phosphorus.String(), Offset: 3, Decimals: 0},
		{Field: Potassium.String(), Offset: 4, Decimals: 0},
		{Field: PH.String(), Offset: 5, Decimals: 1},
		{Field: Humidity.String(), Offset: 6, Decimals: 1},
	}
}

// RegisterConfig parameterizes the wired RS-485 probe. Framing is fixed at 8-N-1.
type RegisterConfig struct {
	Port         string         `json:"port" yaml:"port"`
	Baud         int            `json:"baud" yaml:"baud"`
	SlaveID      int            `json:"slave_id" yaml:"slave_id"`
	FunctionCode FunctionCode   `json:"function_code" yaml:"function_code"`
	TimeoutMs    int            `json:"timeout_ms" yaml:"timeout_ms"`
	Transport    string         `json:"transport,omitempty" yaml:"transport,omitempty"`
	Map          []RegisterSpec `json:"map,omitempty" yaml:"map,omitempty"`
}

// Timeout returns the per-transaction timeout, defaulting to one second.
func (c RegisterConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

func (c RegisterConfig) transportName() string {
	if c.Transport == "" {
		return "rtu"
	}
	return c.Transport
}

// Validate checks transport parameters and the register map.
func (c RegisterConfig) Validate() error {
	fail := func(format string, args ...any) error {
		return fault.Newf(fault.Configuration, ModeRegister.String(), "validate", format, args...)
	}
	if strings.TrimSpace(c.Port) == "" {
		return fail("serial port is required")
	}
	baudOK := false
	for _, b := range SupportedBauds {
		if c.Baud == b {
			baudOK = true
			break
		}
	}
	if !baudOK {
		return fail("baud %d not in %v", c.Baud, SupportedBauds)
	}
	if c.SlaveID < 1 || c.SlaveID > 247 {
		return fail("slave address %d outside 1-247", c.SlaveID)
	}
	if c.FunctionCode != HoldingRegisters && c.FunctionCode != InputRegisters {
		return fail("function code %d (want 3 or 4)", c.FunctionCode)
	}
	if c.TimeoutMs < 0 {
		return fail("negative timeout")
	}
	if len(c.Map) == 0 {
		return nil
	}
	seen := make(map[Field]bool)
	for _, spec := range c.Map {
		f, err := ParseField(spec.Field)
		if err != nil {
			return fail("register map: %v", err)
		}
		if seen[f] {
			return fail("register map: field %s mapped twice", f)
		}
		if spec.Decimals < 0 || spec.Decimals > 6 {
			return fail("register map: %s decimals %d outside 0-6", f, spec.Decimals)
		}
		seen[f] = true
	}
	if len(seen) != len(Fields) {
		return fail("register map covers %d of %d fields", len(seen), len(Fields))
	}
	return nil
}

// FieldMapping maps a canonical field name to a cloud feed field identifier.
type FieldMapping map[string]string

// DefaultFieldMapping maps fields in reading order to field1..field7.
func DefaultFieldMapping() FieldMapping {
	m := make(FieldMapping, len(Fields))
	for i, f := range Fields {
		m[f.String()] = fmt.Sprintf("field%d", i+1)
	}
	return m
}

// Validate requires exactly one non-empty entry per canonical field.
func (m FieldMapping) Validate() error {
	fail := func(format string, args ...any) error {
		return fault.Newf(fault.Configuration, ModeCloud.String(), "validate mapping", format, args...)
	}
	seen := make(map[Field]bool)
	for name, id := range m {
		f, err := ParseField(name)
		if err != nil {
			return fail("%v", err)
		}
		if seen[f] {
			return fail("field %s mapped twice", f)
		}
		if strings.TrimSpace(id) == "" {
			return fail("field %s has an empty source identifier", f)
		}
		seen[f] = true
	}
	for _, f := range Fields {
		if !seen[f] {
			return fail("field %s is not mapped", f)
		}
	}
	return nil
}

// Source returns the feed identifier for f.
func (m FieldMapping) Source(f Field) string {
	for name, id := range m {
		if strings.EqualFold(name, f.String()) {
			return id
		}
	}
	return ""
}

// CloudConfig parameterizes the cloud telemetry feed.
type CloudConfig struct {
	Host      string       `json:"host" yaml:"host"`
	ChannelID string       `json:"channel_id" yaml:"channel_id"`
	APIKey    string       `json:"api_key" yaml:"api_key"`
	Mapping   FieldMapping `json:"mapping" yaml:"mapping"`
	TimeoutMs int          `json:"timeout_ms" yaml:"timeout_ms"`
}

// DefaultCloudHost is the feed host used when none is configured.
const DefaultCloudHost = "https://api.thingspeak.com"

// Timeout returns the request bound, defaulting to five seconds.
func (c CloudConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// Validate checks the channel and the field mapping.
func (c CloudConfig) Validate() error {
	if strings.TrimSpace(c.ChannelID) == "" {
		return fault.Newf(fault.Configuration, ModeCloud.String(), "validate", "channel id is required")
	}
	if c.TimeoutMs < 0 {
		return fault.Newf(fault.Configuration, ModeCloud.String(), "validate", "negative timeout")
	}
	return c.Mapping.Validate()
}

// Validate checks the section belonging to the active mode.
func (c Config) Validate() error {
	switch c.Mode {
	case ModeSimulated:
		return nil
	case ModeRegister:
		return c.Register.Validate()
	case ModeCloud:
		return c.Cloud.Validate()
	default:
		return fault.Newf(fault.Configuration, "config", "validate", "unknown mode %d", int(c.Mode))
	}
}

// DefaultConfig returns a simulated-mode configuration with sensible
// defaults for the other sources.
func DefaultConfig() Config {
	return Config{
		Mode: ModeSimulated,
		Register: RegisterConfig{
			Port:         "/dev/ttyUSB0",
			Baud:         9600,
			SlaveID:      1,
			FunctionCode: HoldingRegisters,
			TimeoutMs:    1000,
		},
		Cloud: CloudConfig{
			Host:      DefaultCloudHost,
			Mapping:   DefaultFieldMapping(),
			TimeoutMs: 5000,
		},
	}
}
