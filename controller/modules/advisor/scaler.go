package advisor

import (
	"fmt"
)

// Scaler standardizes a feature vector as (x - mean) / scale.
type Scaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *Scaler) validate() error {
	if len(s.Mean) != FeatureWidth || len(s.Scale) != FeatureWidth {
		return fmt.Errorf("scaler width mean=%d scale=%d, want %d", len(s.Mean), len(s.Scale), FeatureWidth)
	}
	return nil
}

// Transform returns a new scaled vector. A zero scale leaves the centered
// value unscaled.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		scale := s.Scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (v - s.Mean[i]) / scale
	}
	return out
}
