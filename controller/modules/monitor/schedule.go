package monitor

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"
)

// Schedule yields the next trigger time after t. A zero time ends it.
type Schedule interface {
	Next(t time.Time) time.Time
}

type recurrence struct {
	rule *rrule.RRule
}

func (r recurrence) Next(t time.Time) time.Time { return r.rule.After(t, false) }

// ParseSchedule accepts an RRULE ("FREQ=MINUTELY;INTERVAL=5") or a cron
// spec, including descriptors such as "@every 5s" and "@hourly".
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	if strings.Contains(strings.ToUpper(spec), "FREQ=") {
		start := time.Now().UTC().Format("20060102T150405Z")
		rule, err := rrule.StrToRRule("DTSTART=" + start + ";" + spec)
		if err != nil {
			return nil, fmt.Errorf("rrule %q: %w", spec, err)
		}
		return recurrence{rule: rule}, nil
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("cron %q: %w", spec, err)
	}
	return sched, nil
}

// StartSchedule calls callback at every occurrence of spec until quit is
// closed. The returned channel is closed when the schedule goroutine exits.
func StartSchedule(spec string, quit <-chan struct{}, callback func()) (<-chan struct{}, error) {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			next := sched.Next(time.Now())
			if next.IsZero() {
				return
			}
			timer := time.NewTimer(time.Until(next))
			select {
			case <-timer.C:
				callback()
			case <-quit:
				timer.Stop()
				return
			}
		}
	}()
	return done, nil
}
