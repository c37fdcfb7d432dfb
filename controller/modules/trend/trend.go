// Package trend keeps a bounded rolling window of recent readings for
// charting nutrient levels.
package trend

import (
	"sync"
	"time"

	"github.com/pepper-guardian/guardian/controller/modules/soil"
)

// Capacity is the default number of points kept.
const Capacity = 30

// Point is one charted sample.
type Point struct {
	Time       time.Time `json:"time"`
	Nitrogen   float64   `json:"nitrogen"`
	Phosphorus float64   `json:"phosphorus"`
	PH         float64   `json:"ph"`
}

// Label is the wall-clock label shown on the chart axis.
func (p Point) Label() string { return p.Time.Format("15:04:05") }

// Buffer is a FIFO ring of points. It is safe for concurrent use.
type Buffer struct {
	mu     sync.Mutex
	points []Point
	max    int
}

// NewBuffer creates a buffer holding at most capacity points.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = Capacity
	}
	return &Buffer{
		points: make([]Point, 0, capacity),
		max:    capacity,
	}
}

// Append records r at t, evicting the oldest point when full.
func (b *Buffer) Append(r soil.Reading, t time.Time) {
	p := Point{Time: t, Nitrogen: r.Nitrogen, Phosphorus: r.Phosphorus, PH: r.PH}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.points) >= b.max {
		copy(b.points, b.points[1:])
		b.points[len(b.points)-1] = p
	} else {
		b.points = append(b.points, p)
	}
}

// Points returns a copy of the window, oldest first.
func (b *Buffer) Points() []Point {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Point, len(b.points))
	copy(out, b.points)
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.points)
}

func (b *Buffer) Cap() int { return b.max }
