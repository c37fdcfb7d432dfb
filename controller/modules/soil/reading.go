// Package soil acquires soil readings from one of three sources (a simulator,
// an RS-485 register probe, or a cloud telemetry feed) and normalizes them
// into a single Reading shape.
package soil

import (
	"fmt"
	"strings"
)

// Field names one of the seven canonical reading fields.
type Field int

const (
	Temperature Field = iota
	Moisture
	Nitrogen
	Phosphorus
	Potassium
	PH
	Humidity
)

// Fields lists every canonical field in reading order.
var Fields = []Field{Temperature, Moisture, Nitrogen, Phosphorus, Potassium, PH, Humidity}

var fieldNames = [...]string{"Temperature", "Moisture", "Nitrogen", "Phosphorus", "Potassium", "pH", "Humidity"}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// ParseField resolves a canonical field name, case-insensitively.
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

// Reading is one normalized snapshot of all seven fields. Absent source
// values are 0.
type Reading struct {
	Temperature float64 `json:"temperature"` // °C
	Moisture    float64 `json:"moisture"`    // %
	Nitrogen    float64 `json:"nitrogen"`    // mg/kg
	Phosphorus  float64 `json:"phosphorus"`  // mg/kg
	Potassium   float64 `json:"potassium"`   // mg/kg
	PH          float64 `json:"ph"`
	Humidity    float64 `json:"humidity"` // %
}

// Get returns the value of field f.
func (r Reading) Get(f Field) float64 {
	switch f {
	case Temperature:
		return r.Temperature
	case Moisture:
		return r.Moisture
	case Nitrogen:
		return r.Nitrogen
	case Phosphorus:
		return r.Phosphorus
	case Potassium:
		return r.Potassium
	case PH:
		return r.PH
	case Humidity:
		return r.Humidity
	}
	return 0
}

func (r *Reading) set(f Field, v float64) {
	switch f {
	case Temperature:
		r.Temperature = v
	case Moisture:
		r.Moisture = v
	case Nitrogen:
		r.Nitrogen = v
	case Phosphorus:
		r.Phosphorus = v
	case Potassium:
		r.Potassium = v
	case PH:
		r.PH = v
	case Humidity:
		r.Humidity = v
	}
}
