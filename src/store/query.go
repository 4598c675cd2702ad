package store

import (
	"github.com/campnet/helisync/src/records"
)

// SeatsPerFlight is the number of passengers a flight carries.
const SeatsPerFlight = 6

// Unchecked returns the requests the air company has not checked yet.
func Unchecked(s Store) ([]*records.Request, error) {
	all, err := s.AllRequests()
	if err != nil {
		return nil, err
	}

	res := []*records.Request{}
	for _, r := range all {
		if !r.Checked {
			res = append(res, r)
		}
	}
	return res, nil
}

// BookingsByPassenger returns the bookings made for the named passenger.
func BookingsByPassenger(s Store, passenger string) ([]*records.Request, error) {
	bookings, err := s.Bookings()
	if err != nil {
		return nil, err
	}

	res := []*records.Request{}
	for _, r := range bookings {
		if r.Booking.Passenger == passenger {
			res = append(res, r)
		}
	}
	return res, nil
}

// CancellationFor returns the cancellation of the given ticket, or nil if the
// ticket has not been cancelled.
func CancellationFor(s Store, ticket records.Ticket) (*records.Request, error) {
	cancellations, err := s.Cancellations()
	if err != nil {
		return nil, err
	}

	for _, r := range cancellations {
		if r.Cancellation.CancelledTicket == ticket {
			return r, nil
		}
	}
	return nil, nil
}

// SeatsTaken counts the confirmed bookings of a flight on a date, leaving out
// the ones that have a confirmed cancellation.
func SeatsTaken(s Store, flightNumber int32, date string) (int, error) {
	all, err := s.AllRequests()
	if err != nil {
		return 0, err
	}

	cancelled := make(map[records.Ticket]bool)
	for _, r := range all {
		if r.Kind == records.KindCancellation && r.Confirmed {
			cancelled[r.Cancellation.CancelledTicket] = true
		}
	}

	count := 0
	for _, r := range all {
		if r.Kind != records.KindBooking || !r.Confirmed || cancelled[r.Ticket] {
			continue
		}
		if r.Booking.FlightNumber == flightNumber && r.Booking.FlightDate == date {
			count++
		}
	}
	return count, nil
}

// HasFreeSeats reports whether another booking can be confirmed on a flight.
func HasFreeSeats(s Store, flightNumber int32, date string) (bool, error) {
	taken, err := SeatsTaken(s, flightNumber, date)
	if err != nil {
		return false, err
	}
	return taken < SeatsPerFlight, nil
}
