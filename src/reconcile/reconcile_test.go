package reconcile

import (
	"errors"
	"testing"

	"github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/metrics"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T, policy store.FlagPolicy) (*Engine, store.Store, *metrics.Metrics) {
	s := store.NewInmemStore(policy)
	m := metrics.NewMetrics()
	return NewEngine(s, m, common.NewTestEntry(t, common.TestLogLevel)), s, m
}

func booking(ticket records.Ticket, flight int32) *records.Request {
	return records.NewBooking(ticket, records.Booking{
		Passenger:    "Alice",
		FlightNumber: flight,
		FlightDate:   "2026-10-18",
		Direction:    records.ToCamp,
	})
}

func TestConfirmedMergeScenario(t *testing.T) {
	e, s, _ := newEngine(t, store.Monotonic)

	_, err := s.UpsertRequest(booking(1001, 7))
	require.NoError(t, err)

	incoming := booking(1001, 7)
	incoming.Confirmed = true

	report, err := e.Requests([]*records.Request{incoming})
	require.NoError(t, err)
	assert.Equal(t, Report{Updated: 1}, report)

	all, err := s.AllRequests()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, records.Ticket(1001), all[0].Ticket)
	assert.True(t, all[0].Confirmed)
	assert.Equal(t, int32(7), all[0].FlightNumber())
}

func TestRequestsIdempotent(t *testing.T) {
	for _, policy := range []store.FlagPolicy{store.Monotonic, store.LastWriteWins} {
		e, s, _ := newEngine(t, policy)

		r := booking(42, 3)
		r.Checked = true

		first, err := e.Requests([]*records.Request{r})
		require.NoError(t, err)
		assert.Equal(t, 1, first.Inserted)

		before, _ := s.GetRequest(42)

		second, err := e.Requests([]*records.Request{r})
		require.NoError(t, err)
		assert.Equal(t, Report{Unchanged: 1}, second, policy.String())

		after, _ := s.GetRequest(42)
		assert.Equal(t, before, after, policy.String())
	}
}

func TestIdentityFieldsNeverChange(t *testing.T) {
	e, s, _ := newEngine(t, store.LastWriteWins)

	_, err := e.Requests([]*records.Request{booking(5, 3)})
	require.NoError(t, err)

	forged := records.NewBooking(5, records.Booking{
		Passenger:    "Mallory",
		FlightNumber: 9,
		FlightDate:   "2027-01-01",
		Direction:    records.ToTown,
		TicketKind:   records.OnDemand,
	})
	forged.Confirmed = true
	_, err = e.Requests([]*records.Request{forged})
	require.NoError(t, err)

	got, err := s.GetRequest(5)
	require.NoError(t, err)
	assert.Equal(t, booking(5, 3).Booking, got.Booking)
	assert.True(t, got.Confirmed)
}

func TestTimetableLastWriteWins(t *testing.T) {
	e, s, _ := newEngine(t, store.Monotonic)

	t1 := &records.TimetableEntry{FlightNumber: 4, FlightTime: "08:00", Direction: records.ToCamp, AirCompanyName: "A"}
	t2 := &records.TimetableEntry{FlightNumber: 4, FlightTime: "17:45", Direction: records.ToTown, AirCompanyName: "B"}

	_, err := e.Timetable([]*records.TimetableEntry{t1})
	require.NoError(t, err)
	report, err := e.Timetable([]*records.TimetableEntry{t2})
	require.NoError(t, err)
	assert.Equal(t, Report{Updated: 1}, report)

	got, err := s.TimetableEntry(4)
	require.NoError(t, err)
	assert.Equal(t, t2, got)
}

func TestDuplicatesInBatch(t *testing.T) {
	e, s, _ := newEngine(t, store.LastWriteWins)

	confirmed := booking(8, 1)
	confirmed.Confirmed = true
	plain := booking(8, 1)

	report, err := e.Requests([]*records.Request{confirmed, plain})
	require.NoError(t, err)
	assert.Equal(t, Report{Inserted: 1, Updated: 1}, report)

	got, _ := s.GetRequest(8)
	assert.False(t, got.Confirmed, "the last copy in the batch wins")
}

func TestConfirmationBeforeBooking(t *testing.T) {
	e, s, _ := newEngine(t, store.Monotonic)

	r := booking(77, 2)
	r.Confirmed = true
	_, err := e.Requests([]*records.Request{r})
	require.NoError(t, err)

	got, err := s.GetRequest(77)
	require.NoError(t, err)
	assert.True(t, got.Confirmed)
}

func TestRejectedRecords(t *testing.T) {
	e, s, m := newEngine(t, store.Monotonic)

	bad := booking(0, 1)
	report, err := e.Requests([]*records.Request{bad, booking(1, 1), nil})
	require.NoError(t, err)
	assert.Equal(t, Report{Inserted: 1, Rejected: 2}, report)

	all, _ := s.AllRequests()
	assert.Len(t, all, 1)

	badEntry := &records.TimetableEntry{FlightNumber: 1, FlightTime: "noon", AirCompanyName: "A"}
	report, err = e.Timetable([]*records.TimetableEntry{badEntry})
	require.NoError(t, err)
	assert.Equal(t, Report{Rejected: 1}, report)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsReconciled.WithLabelValues("requests", "rejected")))
}

func TestBroadcastOrder(t *testing.T) {
	e, s, _ := newEngine(t, store.Monotonic)

	reqs := []*records.Request{booking(1, 1), records.NewCancellation(2, 1)}
	tt := []*records.TimetableEntry{{FlightNumber: 1, FlightTime: "10:00", AirCompanyName: "A"}}

	reqReport, ttReport, err := e.Broadcast(reqs, tt)
	require.NoError(t, err)
	assert.Equal(t, 2, reqReport.Inserted)
	assert.Equal(t, 1, ttReport.Inserted)

	cancellations, _ := s.Cancellations()
	assert.Len(t, cancellations, 1)
}

// failingStore makes every transaction fail after fn has run.
type failingStore struct {
	store.Store
}

var errDisk = errors.New("disk full")

func (f *failingStore) Update(fn func(store.Txn) error) error {
	return f.Store.Update(func(tx store.Txn) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errDisk
	})
}

func TestBatchRollback(t *testing.T) {
	inner := store.NewInmemStore(store.Monotonic)
	e := NewEngine(&failingStore{inner}, nil, common.NewTestEntry(t, common.TestLogLevel))

	_, _, err := e.Broadcast(
		[]*records.Request{booking(1, 1), booking(2, 1)},
		[]*records.TimetableEntry{{FlightNumber: 1, FlightTime: "10:00", AirCompanyName: "A"}},
	)
	assert.ErrorIs(t, err, errDisk)

	all, _ := inner.AllRequests()
	assert.Empty(t, all)
	tt, _ := inner.Timetable()
	assert.Empty(t, tt)
}

func TestPackageFunctions(t *testing.T) {
	s := store.NewInmemStore(store.Monotonic)

	report, err := Requests(s, []*records.Request{booking(1, 1)})
	require.NoError(t, err)
	assert.True(t, report.Changed())
	assert.Equal(t, 1, report.Total())

	report, err = Timetable(s, nil)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}
