package store

import (
	"github.com/campnet/helisync/src/records"
)

// Outcome describes what an upsert did to the store.
type Outcome uint8

const (
	// Unchanged means the stored row already matched the merged result.
	Unchanged Outcome = iota
	// Inserted means the key was unknown and a new row was created.
	Inserted
	// Updated means an existing row was modified.
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "Inserted"
	case Updated:
		return "Updated"
	default:
		return "Unchanged"
	}
}

// Txn is the view of the store passed to Update. Writes made through a Txn are
// visible to later reads in the same Txn and are committed together.
type Txn interface {
	GetRequest(ticket records.Ticket) (*records.Request, error)
	TimetableEntry(flightNumber int32) (*records.TimetableEntry, error)
	UpsertRequest(r *records.Request) (Outcome, error)
	UpsertTimetable(e *records.TimetableEntry) (Outcome, error)
}

// Store provides identity-keyed access to requests and timetable entries.
// Operations are individually atomic; Update groups several writes into one
// atomic unit. Slices returned by the read methods are ordered by key and hold
// copies.
type Store interface {
	AllRequests() ([]*records.Request, error)
	Bookings() ([]*records.Request, error)
	Cancellations() ([]*records.Request, error)
	Timetable() ([]*records.TimetableEntry, error)
	TimetableEntry(flightNumber int32) (*records.TimetableEntry, error)
	GetRequest(ticket records.Ticket) (*records.Request, error)
	UpsertRequest(r *records.Request) (Outcome, error)
	UpsertTimetable(e *records.TimetableEntry) (Outcome, error)
	HasTicket(ticket records.Ticket) (bool, error)
	HasFlightNumber(flightNumber int32) (bool, error)
	Update(fn func(Txn) error) error
	NextTicket() (records.Ticket, error)
	NodeID() uint32
	Close() error
}
