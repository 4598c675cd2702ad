package records

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the layout of FlightDate.
const DateLayout = "2006-01-02"

// ErrInvalidRecord is wrapped by every validation error.
var ErrInvalidRecord = errors.New("invalid record")

// Booking reserves a seat on a flight.
type Booking struct {
	Passenger    string
	FlightNumber int32
	FlightDate   string
	Direction    Direction
	TicketKind   TicketKind
}

// Cancellation withdraws a previously booked ticket.
type Cancellation struct {
	CancelledTicket Ticket
}

// Request is a booking or a cancellation. Exactly one of Booking and
// Cancellation is set, matching Kind. Ticket, Confirmed and Checked are common
// to both; only the air company sets Confirmed and Checked.
type Request struct {
	Ticket       Ticket
	Kind         RequestKind
	Booking      *Booking      `json:",omitempty"`
	Cancellation *Cancellation `json:",omitempty"`
	Confirmed    bool
	Checked      bool
}

// NewBooking returns a booking request with the given ticket.
func NewBooking(ticket Ticket, b Booking) *Request {
	return &Request{
		Ticket:  ticket,
		Kind:    KindBooking,
		Booking: &b,
	}
}

// NewCancellation returns a request cancelling another ticket.
func NewCancellation(ticket Ticket, cancelled Ticket) *Request {
	return &Request{
		Ticket:       ticket,
		Kind:         KindCancellation,
		Cancellation: &Cancellation{CancelledTicket: cancelled},
	}
}

// FlightNumber returns the flight of a booking, and 0 for cancellations.
func (r *Request) FlightNumber() int32 {
	if r.Booking == nil {
		return 0
	}
	return r.Booking.FlightNumber
}

// Validate checks that the request is well formed.
func (r *Request) Validate() error {
	if r.Ticket == 0 {
		return fmt.Errorf("%w: request has no ticket", ErrInvalidRecord)
	}

	switch r.Kind {
	case KindBooking:
		if r.Booking == nil || r.Cancellation != nil {
			return fmt.Errorf("%w: ticket %s: booking payload does not match kind", ErrInvalidRecord, r.Ticket)
		}
		return r.Booking.validate(r.Ticket)
	case KindCancellation:
		if r.Cancellation == nil || r.Booking != nil {
			return fmt.Errorf("%w: ticket %s: cancellation payload does not match kind", ErrInvalidRecord, r.Ticket)
		}
		if r.Cancellation.CancelledTicket == 0 {
			return fmt.Errorf("%w: ticket %s: cancellation of ticket 0", ErrInvalidRecord, r.Ticket)
		}
		return nil
	default:
		return fmt.Errorf("%w: ticket %s: unknown kind %s", ErrInvalidRecord, r.Ticket, r.Kind)
	}
}

func (b *Booking) validate(ticket Ticket) error {
	if b.Passenger == "" {
		return fmt.Errorf("%w: ticket %s: empty passenger", ErrInvalidRecord, ticket)
	}
	if b.TicketKind == SpecifiedFlight && b.FlightNumber <= 0 {
		return fmt.Errorf("%w: ticket %s: flight number %d", ErrInvalidRecord, ticket, b.FlightNumber)
	}
	if b.FlightNumber < 0 {
		return fmt.Errorf("%w: ticket %s: flight number %d", ErrInvalidRecord, ticket, b.FlightNumber)
	}
	if _, err := time.Parse(DateLayout, b.FlightDate); err != nil {
		return fmt.Errorf("%w: ticket %s: flight date %q", ErrInvalidRecord, ticket, b.FlightDate)
	}
	if b.Direction > ToTown {
		return fmt.Errorf("%w: ticket %s: direction %s", ErrInvalidRecord, ticket, b.Direction)
	}
	if b.TicketKind > OnDemand {
		return fmt.Errorf("%w: ticket %s: ticket kind %s", ErrInvalidRecord, ticket, b.TicketKind)
	}
	return nil
}

// Copy returns a deep copy of the request.
func (r *Request) Copy() *Request {
	c := *r
	if r.Booking != nil {
		b := *r.Booking
		c.Booking = &b
	}
	if r.Cancellation != nil {
		cc := *r.Cancellation
		c.Cancellation = &cc
	}
	return &c
}

func (r *Request) String() string {
	flags := "N_ACK N_CHECK"
	switch {
	case r.Confirmed && r.Checked:
		flags = "ACK CHECK"
	case r.Confirmed:
		flags = "ACK N_CHECK"
	case r.Checked:
		flags = "N_ACK CHECK"
	}

	if r.Booking != nil {
		return fmt.Sprintf("%s %s BOOK Flight: %d %s %s %s",
			r.Ticket, r.Booking.Passenger, r.Booking.FlightNumber,
			r.Booking.FlightDate, r.Booking.Direction, flags)
	}
	if r.Cancellation != nil {
		return fmt.Sprintf("%s CANCEL for ticket %s %s",
			r.Ticket, r.Cancellation.CancelledTicket, flags)
	}
	return fmt.Sprintf("%s %s %s", r.Ticket, r.Kind, flags)
}
