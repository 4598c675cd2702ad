package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	cm "github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/records"
)

type storeCtor struct {
	name string
	make func(t *testing.T, policy FlagPolicy) Store
}

var backends = []storeCtor{
	{"inmem", func(t *testing.T, policy FlagPolicy) Store {
		return NewInmemStore(policy)
	}},
	{"badger", func(t *testing.T, policy FlagPolicy) Store {
		s, err := NewBadgerStore(filepath.Join(t.TempDir(), "badger"), policy, cm.NewTestEntry(t, cm.TestLogLevel))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}},
}

func forEachBackend(t *testing.T, policy FlagPolicy, f func(t *testing.T, s Store)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			s := b.make(t, policy)
			defer s.Close()
			f(t, s)
		})
	}
}

func booking(ticket records.Ticket, passenger string, flight int32) *records.Request {
	return records.NewBooking(ticket, records.Booking{
		Passenger:    passenger,
		FlightNumber: flight,
		FlightDate:   "2026-10-18",
		Direction:    records.ToTown,
	})
}

func entry(flight int32, at string, company string) *records.TimetableEntry {
	return &records.TimetableEntry{
		FlightNumber:   flight,
		FlightTime:     at,
		Direction:      records.ToCamp,
		AirCompanyName: company,
	}
}

func TestUpsertRequest(t *testing.T) {
	forEachBackend(t, Monotonic, func(t *testing.T, s Store) {
		r := booking(1001, "Alice", 7)

		outcome, err := s.UpsertRequest(r)
		if err != nil {
			t.Fatal(err)
		}
		if outcome != Inserted {
			t.Fatalf("outcome should be Inserted, not %s", outcome)
		}

		// identity fields of a known ticket are left alone
		changed := booking(1001, "Mallory", 9)
		changed.Confirmed = true
		if outcome, err = s.UpsertRequest(changed); err != nil {
			t.Fatal(err)
		}
		if outcome != Updated {
			t.Fatalf("outcome should be Updated, not %s", outcome)
		}

		got, err := s.GetRequest(1001)
		if err != nil {
			t.Fatal(err)
		}
		if got.Booking.Passenger != "Alice" || got.Booking.FlightNumber != 7 || !got.Confirmed {
			t.Fatalf("bad merge: %s", got)
		}

		if outcome, _ = s.UpsertRequest(changed); outcome != Unchanged {
			t.Fatalf("outcome should be Unchanged, not %s", outcome)
		}

		ok, err := s.HasTicket(1001)
		if err != nil || !ok {
			t.Fatalf("HasTicket(1001) = %v, %v", ok, err)
		}
		if ok, _ = s.HasTicket(1002); ok {
			t.Fatal("HasTicket(1002) should be false")
		}

		if _, err := s.GetRequest(1002); !cm.IsStore(err, cm.KeyNotFound) {
			t.Fatalf("expected KeyNotFound, got %v", err)
		}
	})
}

func TestUpsertRequestInvalid(t *testing.T) {
	forEachBackend(t, Monotonic, func(t *testing.T, s Store) {
		r := booking(1001, "", 7)
		_, err := s.UpsertRequest(r)
		if !cm.IsStore(err, cm.InvalidRecord) {
			t.Fatalf("expected InvalidRecord, got %v", err)
		}
		if !errors.Is(err, records.ErrInvalidRecord) {
			t.Fatalf("error should wrap ErrInvalidRecord: %v", err)
		}
		if ok, _ := s.HasTicket(1001); ok {
			t.Fatal("invalid record should not be stored")
		}
	})
}

func TestUpsertTimetable(t *testing.T) {
	forEachBackend(t, Monotonic, func(t *testing.T, s Store) {
		if _, err := s.UpsertTimetable(entry(7, "09:00", "A")); err != nil {
			t.Fatal(err)
		}
		outcome, err := s.UpsertTimetable(entry(7, "10:30", "B"))
		if err != nil {
			t.Fatal(err)
		}
		if outcome != Updated {
			t.Fatalf("outcome should be Updated, not %s", outcome)
		}

		got, err := s.TimetableEntry(7)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(got, entry(7, "10:30", "B")) {
			t.Fatalf("last write should win: %s", got)
		}

		if ok, _ := s.HasFlightNumber(7); !ok {
			t.Fatal("HasFlightNumber(7) should be true")
		}
		if _, err := s.TimetableEntry(8); !cm.IsStore(err, cm.KeyNotFound) {
			t.Fatalf("expected KeyNotFound, got %v", err)
		}
	})
}

func TestListings(t *testing.T) {
	forEachBackend(t, Monotonic, func(t *testing.T, s Store) {
		for _, r := range []*records.Request{
			booking(30, "Carol", 1),
			records.NewCancellation(20, 30),
			booking(10, "Alice", 1),
		} {
			if _, err := s.UpsertRequest(r); err != nil {
				t.Fatal(err)
			}
		}
		for _, f := range []int32{12, 3} {
			if _, err := s.UpsertTimetable(entry(f, "08:00", "A")); err != nil {
				t.Fatal(err)
			}
		}

		all, err := s.AllRequests()
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 3 || all[0].Ticket != 10 || all[1].Ticket != 20 || all[2].Ticket != 30 {
			t.Fatalf("requests should be ordered by ticket: %v", all)
		}

		bookings, _ := s.Bookings()
		if len(bookings) != 2 {
			t.Fatalf("expected 2 bookings, got %d", len(bookings))
		}
		cancellations, _ := s.Cancellations()
		if len(cancellations) != 1 || cancellations[0].Cancellation.CancelledTicket != 30 {
			t.Fatalf("bad cancellations: %v", cancellations)
		}

		tt, _ := s.Timetable()
		if len(tt) != 2 || tt[0].FlightNumber != 3 || tt[1].FlightNumber != 12 {
			t.Fatalf("timetable should be ordered by flight number: %v", tt)
		}
	})
}

func TestUpdateAtomic(t *testing.T) {
	forEachBackend(t, Monotonic, func(t *testing.T, s Store) {
		boom := fmt.Errorf("boom")
		err := s.Update(func(tx Txn) error {
			if _, err := tx.UpsertRequest(booking(1, "Alice", 1)); err != nil {
				return err
			}
			if _, err := tx.UpsertTimetable(entry(1, "08:00", "A")); err != nil {
				return err
			}
			// staged writes are visible inside the transaction
			if _, err := tx.GetRequest(1); err != nil {
				return err
			}
			return boom
		})
		if err != boom {
			t.Fatalf("expected boom, got %v", err)
		}

		if ok, _ := s.HasTicket(1); ok {
			t.Fatal("rolled back request is visible")
		}
		if ok, _ := s.HasFlightNumber(1); ok {
			t.Fatal("rolled back timetable entry is visible")
		}
	})
}

func TestFlagPolicies(t *testing.T) {
	confirmed := booking(5, "Alice", 1)
	confirmed.Confirmed = true
	confirmed.Checked = true
	plain := booking(5, "Alice", 1)

	forEachBackend(t, Monotonic, func(t *testing.T, s Store) {
		s.UpsertRequest(confirmed)
		s.UpsertRequest(plain)
		got, _ := s.GetRequest(5)
		if !got.Confirmed || !got.Checked {
			t.Fatalf("monotonic flags went back to false: %s", got)
		}
	})

	forEachBackend(t, LastWriteWins, func(t *testing.T, s Store) {
		s.UpsertRequest(confirmed)
		s.UpsertRequest(plain)
		got, _ := s.GetRequest(5)
		if got.Confirmed || got.Checked {
			t.Fatalf("lww flags should follow the last write: %s", got)
		}
	})
}

func TestNextTicket(t *testing.T) {
	forEachBackend(t, Monotonic, func(t *testing.T, s Store) {
		a, err := s.NextTicket()
		if err != nil {
			t.Fatal(err)
		}
		b, err := s.NextTicket()
		if err != nil {
			t.Fatal(err)
		}
		if a.NodeID() != s.NodeID() || b.NodeID() != s.NodeID() {
			t.Fatalf("tickets should carry the node id %d: %d %d", s.NodeID(), a.NodeID(), b.NodeID())
		}
		if b.Seq() != a.Seq()+1 || a == 0 {
			t.Fatalf("tickets should be sequential: %d %d", a.Seq(), b.Seq())
		}
	})
}

func TestBadgerReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badger")
	logger := cm.NewTestEntry(t, cm.TestLogLevel)

	s, err := NewBadgerStore(path, Monotonic, logger)
	if err != nil {
		t.Fatal(err)
	}
	if s.StorePath() != path {
		t.Fatalf("StorePath() = %s, want %s", s.StorePath(), path)
	}
	if _, err := s.UpsertRequest(booking(1001, "Alice", 7)); err != nil {
		t.Fatal(err)
	}
	first, _ := s.NextTicket()
	nodeID := s.NodeID()
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = NewBadgerStore(path, Monotonic, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.NodeID() != nodeID {
		t.Fatalf("node id changed across restarts: %d != %d", s.NodeID(), nodeID)
	}
	second, _ := s.NextTicket()
	if second.Seq() != first.Seq()+1 {
		t.Fatalf("ticket counter was not persisted: %d then %d", first.Seq(), second.Seq())
	}
	if ok, _ := s.HasTicket(1001); !ok {
		t.Fatal("request was not persisted")
	}
}

func TestInmemClosed(t *testing.T) {
	s := NewInmemStore(Monotonic)
	s.Close()
	if _, err := s.AllRequests(); !cm.IsStore(err, cm.Closed) {
		t.Fatalf("expected Closed, got %v", err)
	}
}
