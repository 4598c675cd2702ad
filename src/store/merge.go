package store

import (
	"fmt"
	"strconv"

	cm "github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/records"
)

// FlagPolicy decides how the Confirmed and Checked flags of a known request are
// merged.
type FlagPolicy uint8

const (
	// Monotonic flags never go back to false once set: the merge is an OR.
	Monotonic FlagPolicy = iota
	// LastWriteWins copies the incoming flags as they are.
	LastWriteWins
)

func (p FlagPolicy) String() string {
	switch p {
	case Monotonic:
		return "monotonic"
	case LastWriteWins:
		return "lww"
	default:
		return fmt.Sprintf("FlagPolicy(%d)", uint8(p))
	}
}

// ParseFlagPolicy parses "monotonic" or "lww".
func ParseFlagPolicy(s string) (FlagPolicy, error) {
	switch s {
	case "", "monotonic":
		return Monotonic, nil
	case "lww":
		return LastWriteWins, nil
	default:
		return 0, fmt.Errorf("unknown flag policy %q", s)
	}
}

// MergeRequest folds incoming into existing. An unknown ticket (existing nil)
// inserts incoming as it is. A known ticket only takes the flags of incoming;
// every other field of existing is kept.
func MergeRequest(existing, incoming *records.Request, policy FlagPolicy) (*records.Request, Outcome) {
	if existing == nil {
		return incoming.Copy(), Inserted
	}

	merged := existing.Copy()
	switch policy {
	case LastWriteWins:
		merged.Confirmed = incoming.Confirmed
		merged.Checked = incoming.Checked
	default:
		merged.Confirmed = existing.Confirmed || incoming.Confirmed
		merged.Checked = existing.Checked || incoming.Checked
	}

	if merged.Confirmed == existing.Confirmed && merged.Checked == existing.Checked {
		return existing, Unchanged
	}
	return merged, Updated
}

// MergeTimetable folds incoming into existing. The last write wins on every
// field.
func MergeTimetable(existing, incoming *records.TimetableEntry) (*records.TimetableEntry, Outcome) {
	if existing == nil {
		e := *incoming
		return &e, Inserted
	}
	if *existing == *incoming {
		return existing, Unchanged
	}
	e := *incoming
	return &e, Updated
}

// backend is the raw key-value access a Store offers to txn. get methods
// return nil, nil for unknown keys.
type backend interface {
	getRequest(ticket records.Ticket) (*records.Request, error)
	putRequest(r *records.Request) error
	getEntry(flightNumber int32) (*records.TimetableEntry, error)
	putEntry(e *records.TimetableEntry) error
}

// txn implements Txn on top of a backend, applying the merge rules.
type txn struct {
	b      backend
	policy FlagPolicy
}

func (t *txn) GetRequest(ticket records.Ticket) (*records.Request, error) {
	r, err := t.b.getRequest(ticket)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, cm.NewStoreErr("Request", cm.KeyNotFound, ticket.String())
	}
	return r, nil
}

func (t *txn) TimetableEntry(flightNumber int32) (*records.TimetableEntry, error) {
	e, err := t.b.getEntry(flightNumber)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, cm.NewStoreErr("TimetableEntry", cm.KeyNotFound, strconv.Itoa(int(flightNumber)))
	}
	return e, nil
}

func (t *txn) UpsertRequest(r *records.Request) (Outcome, error) {
	if err := r.Validate(); err != nil {
		return Unchanged, fmt.Errorf("%w: %w", cm.NewStoreErr("Request", cm.InvalidRecord, r.Ticket.String()), err)
	}

	existing, err := t.b.getRequest(r.Ticket)
	if err != nil {
		return Unchanged, err
	}

	merged, outcome := MergeRequest(existing, r, t.policy)
	if outcome == Unchanged {
		return outcome, nil
	}
	return outcome, t.b.putRequest(merged)
}

func (t *txn) UpsertTimetable(e *records.TimetableEntry) (Outcome, error) {
	if err := e.Validate(); err != nil {
		return Unchanged, fmt.Errorf("%w: %w", cm.NewStoreErr("TimetableEntry", cm.InvalidRecord, strconv.Itoa(int(e.FlightNumber))), err)
	}

	existing, err := t.b.getEntry(e.FlightNumber)
	if err != nil {
		return Unchanged, err
	}

	merged, outcome := MergeTimetable(existing, e)
	if outcome == Unchanged {
		return outcome, nil
	}
	return outcome, t.b.putEntry(merged)
}

func filterKind(all []*records.Request, kind records.RequestKind) []*records.Request {
	res := []*records.Request{}
	for _, r := range all {
		if r.Kind == kind {
			res = append(res, r)
		}
	}
	return res
}
