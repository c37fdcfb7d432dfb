package soil

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pepper-guardian/guardian/controller/fault"
)

// bound is the uniform range and display precision of a simulated field.
type bound struct {
	lo, hi   float64
	decimals int
}

// SimulatedBounds are realistic ranges for black pepper soil.
var SimulatedBounds = map[Field]bound{
	Temperature: {22.0, 35.0, 1},
	Moisture:    {40.0, 80.0, 1},
	Nitrogen:    {100, 250, 0},
	Phosphorus:  {10, 60, 0},
	Potassium:   {150, 300, 0},
	PH:          {5.5, 7.5, 2},
	Humidity:    {60.0, 90.0, 1},
}

// Range returns the simulated bounds of f.
func Range(f Field) (lo, hi float64) {
	b := SimulatedBounds[f]
	return b.lo, b.hi
}

// Simulator produces synthetic readings. It never fails unless the caller
// cancels the context during the artificial latency.
type Simulator struct {
	Latency time.Duration
	// Float64 returns a value in [0, 1). Defaults to math/rand/v2.
	Float64 func() float64
}

// NewSimulator returns a Simulator with the standard 500ms acquisition delay.
func NewSimulator() *Simulator {
	return &Simulator{Latency: 500 * time.Millisecond, Float64: rand.Float64}
}

func (s *Simulator) Acquire(ctx context.Context, _ Config) (Reading, error) {
	if s.Latency > 0 {
		timer := time.NewTimer(s.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return Reading{}, fault.New(fault.Timeout, ModeSimulated.String(), "acquire", ctx.Err())
		}
	}
	next := s.Float64
	if next == nil {
		next = rand.Float64
	}
	var r Reading
	for _, f := range Fields {
		b := SimulatedBounds[f]
		r.set(f, round(b.lo+(b.hi-b.lo)*next(), b.decimals))
	}
	return r, nil
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
