package monitor

import (
	"github.com/pepper-guardian/guardian/controller/modules/soil"
)

// Bucket is the DB bucket holding the monitor settings.
const Bucket = "soil"

// DefaultID is the id of the single settings record.
const DefaultID = "default"

// Settings holds the acquisition config and the cycle schedule.
type Settings struct {
	ID string `json:"id"`
	// Enable turns on scheduled cycles. Manual cycles always run.
	Enable   bool        `json:"enable"`
	Schedule string      `json:"schedule"`
	Soil     soil.Config `json:"soil"`
}

// Validate checks the acquisition config and parses the schedule.
func (s Settings) Validate() error {
	if err := s.Soil.Validate(); err != nil {
		return err
	}
	if s.Enable {
		if _, err := ParseSchedule(s.Schedule); err != nil {
			return err
		}
	}
	return nil
}
