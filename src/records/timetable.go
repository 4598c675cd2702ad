package records

import (
	"fmt"
	"regexp"
)

var flightTimeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// TimetableEntry is one scheduled flight. FlightNumber is its key.
type TimetableEntry struct {
	FlightNumber   int32
	FlightTime     string
	Direction      Direction
	AirCompanyName string
}

// Validate checks that the entry is well formed.
func (e *TimetableEntry) Validate() error {
	if e.FlightNumber <= 0 {
		return fmt.Errorf("%w: flight number %d", ErrInvalidRecord, e.FlightNumber)
	}
	if !flightTimeRe.MatchString(e.FlightTime) {
		return fmt.Errorf("%w: flight %d: time %q is not HH:mm", ErrInvalidRecord, e.FlightNumber, e.FlightTime)
	}
	if e.Direction > ToTown {
		return fmt.Errorf("%w: flight %d: direction %s", ErrInvalidRecord, e.FlightNumber, e.Direction)
	}
	if e.AirCompanyName == "" {
		return fmt.Errorf("%w: flight %d: empty air company", ErrInvalidRecord, e.FlightNumber)
	}
	return nil
}

func (e *TimetableEntry) String() string {
	return fmt.Sprintf("%d %s %s %s", e.FlightNumber, e.FlightTime, e.Direction, e.AirCompanyName)
}
