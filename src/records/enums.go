package records

import "fmt"

// Direction is the direction of a flight.
type Direction uint8

const (
	// ToCamp flights leave the town for the camp.
	ToCamp Direction = iota
	// ToTown flights leave the camp for the town.
	ToTown
)

func (d Direction) String() string {
	switch d {
	case ToCamp:
		return "ToCamp"
	case ToTown:
		return "ToTown"
	default:
		return fmt.Sprintf("Direction(%d)", uint8(d))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (d Direction) MarshalText() ([]byte, error) {
	if d > ToTown {
		return nil, fmt.Errorf("unknown direction %d", uint8(d))
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Direction) UnmarshalText(text []byte) error {
	switch string(text) {
	case "ToCamp":
		*d = ToCamp
	case "ToTown":
		*d = ToTown
	default:
		return fmt.Errorf("unknown direction %q", text)
	}
	return nil
}

// RequestKind discriminates bookings from cancellations.
type RequestKind uint8

const (
	// KindBooking requests reserve a seat.
	KindBooking RequestKind = iota
	// KindCancellation requests withdraw a previous booking.
	KindCancellation
)

func (k RequestKind) String() string {
	switch k {
	case KindBooking:
		return "Booking"
	case KindCancellation:
		return "Cancellation"
	default:
		return fmt.Sprintf("RequestKind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k RequestKind) MarshalText() ([]byte, error) {
	if k > KindCancellation {
		return nil, fmt.Errorf("unknown request kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *RequestKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Booking":
		*k = KindBooking
	case "Cancellation":
		*k = KindCancellation
	default:
		return fmt.Errorf("unknown request kind %q", text)
	}
	return nil
}

// TicketKind says how strictly a booking is bound to its flight.
type TicketKind uint8

const (
	// SpecifiedFlight bookings are for one flight and may be declined when it
	// is full.
	SpecifiedFlight TicketKind = iota
	// OnDemand bookings are fulfilled by the nearest flight after the
	// requested date.
	OnDemand
)

func (k TicketKind) String() string {
	switch k {
	case SpecifiedFlight:
		return "SpecifiedFlight"
	case OnDemand:
		return "OnDemand"
	default:
		return fmt.Sprintf("TicketKind(%d)", uint8(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k TicketKind) MarshalText() ([]byte, error) {
	if k > OnDemand {
		return nil, fmt.Errorf("unknown ticket kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *TicketKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "SpecifiedFlight":
		*k = SpecifiedFlight
	case "OnDemand":
		*k = OnDemand
	default:
		return fmt.Errorf("unknown ticket kind %q", text)
	}
	return nil
}
