package soil

import (
	"fmt"
	"strings"
)

// Mode selects the acquisition source. Adding a source means adding a Mode
// here and a case in Dispatcher.Dispatch.
type Mode int

const (
	ModeSimulated Mode = iota
	ModeRegister
	ModeCloud
)

// Modes lists every supported acquisition mode.
var Modes = []Mode{ModeSimulated, ModeRegister, ModeCloud}

func (m Mode) String() string {
	switch m {
	case ModeSimulated:
		return "simulated"
	case ModeRegister:
		return "register"
	case ModeCloud:
		return "cloud"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode accepts the String form of a Mode.
func ParseMode(s string) (Mode, error) {
	for _, m := range Modes {
		if strings.EqualFold(strings.TrimSpace(s), m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown acquisition mode %q (want simulated, register or cloud)", s)
}

func (m Mode) MarshalText() ([]byte, error) {
	for _, known := range Modes {
		if m == known {
			return []byte(m.String()), nil
		}
	}
	return nil, fmt.Errorf("unknown acquisition mode %d", int(m))
}

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Mode) MarshalYAML() (interface{}, error) {
	b, err := m.MarshalText()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *Mode) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return m.UnmarshalText([]byte(s))
}
