package store

import (
	"sort"
	"strconv"
	"sync"

	cm "github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/records"
	"github.com/google/uuid"
)

// InmemStore implements the Store interface with in-memory maps. Nothing
// survives a restart.
type InmemStore struct {
	sync.Mutex

	requests  map[records.Ticket]*records.Request
	timetable map[int32]*records.TimetableEntry

	policy FlagPolicy
	nodeID uint32
	seq    uint32
	closed bool
}

// NewInmemStore creates an empty InmemStore with a fresh node id.
func NewInmemStore(policy FlagPolicy) *InmemStore {
	id := uuid.New()
	return &InmemStore{
		requests:  make(map[records.Ticket]*records.Request),
		timetable: make(map[int32]*records.TimetableEntry),
		policy:    policy,
		nodeID:    cm.Hash32(id[:]),
	}
}

func (s *InmemStore) checkOpen() error {
	if s.closed {
		return cm.NewStoreErr("InmemStore", cm.Closed, "")
	}
	return nil
}

// AllRequests implements the Store interface.
func (s *InmemStore) AllRequests() ([]*records.Request, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	res := make([]*records.Request, 0, len(s.requests))
	for _, r := range s.requests {
		res = append(res, r.Copy())
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Ticket < res[j].Ticket })
	return res, nil
}

// Bookings implements the Store interface.
func (s *InmemStore) Bookings() ([]*records.Request, error) {
	all, err := s.AllRequests()
	if err != nil {
		return nil, err
	}
	return filterKind(all, records.KindBooking), nil
}

// Cancellations implements the Store interface.
func (s *InmemStore) Cancellations() ([]*records.Request, error) {
	all, err := s.AllRequests()
	if err != nil {
		return nil, err
	}
	return filterKind(all, records.KindCancellation), nil
}

// Timetable implements the Store interface.
func (s *InmemStore) Timetable() ([]*records.TimetableEntry, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	res := make([]*records.TimetableEntry, 0, len(s.timetable))
	for _, e := range s.timetable {
		c := *e
		res = append(res, &c)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].FlightNumber < res[j].FlightNumber })
	return res, nil
}

// TimetableEntry implements the Store interface.
func (s *InmemStore) TimetableEntry(flightNumber int32) (*records.TimetableEntry, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	e, ok := s.timetable[flightNumber]
	if !ok {
		return nil, cm.NewStoreErr("TimetableEntry", cm.KeyNotFound, strconv.Itoa(int(flightNumber)))
	}
	c := *e
	return &c, nil
}

// GetRequest implements the Store interface.
func (s *InmemStore) GetRequest(ticket records.Ticket) (*records.Request, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	r, ok := s.requests[ticket]
	if !ok {
		return nil, cm.NewStoreErr("Request", cm.KeyNotFound, ticket.String())
	}
	return r.Copy(), nil
}

// HasTicket implements the Store interface.
func (s *InmemStore) HasTicket(ticket records.Ticket) (bool, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkOpen(); err != nil {
		return false, err
	}
	_, ok := s.requests[ticket]
	return ok, nil
}

// HasFlightNumber implements the Store interface.
func (s *InmemStore) HasFlightNumber(flightNumber int32) (bool, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkOpen(); err != nil {
		return false, err
	}
	_, ok := s.timetable[flightNumber]
	return ok, nil
}

// UpsertRequest implements the Store interface.
func (s *InmemStore) UpsertRequest(r *records.Request) (Outcome, error) {
	var outcome Outcome
	err := s.Update(func(tx Txn) error {
		var err error
		outcome, err = tx.UpsertRequest(r)
		return err
	})
	return outcome, err
}

// UpsertTimetable implements the Store interface.
func (s *InmemStore) UpsertTimetable(e *records.TimetableEntry) (Outcome, error) {
	var outcome Outcome
	err := s.Update(func(tx Txn) error {
		var err error
		outcome, err = tx.UpsertTimetable(e)
		return err
	})
	return outcome, err
}

// Update runs fn against a staging area and commits the staged writes only if
// fn returns nil.
func (s *InmemStore) Update(fn func(Txn) error) error {
	s.Lock()
	defer s.Unlock()

	if err := s.checkOpen(); err != nil {
		return err
	}

	stage := &inmemStage{
		store:     s,
		requests:  make(map[records.Ticket]*records.Request),
		timetable: make(map[int32]*records.TimetableEntry),
	}

	if err := fn(&txn{b: stage, policy: s.policy}); err != nil {
		return err
	}

	for k, r := range stage.requests {
		s.requests[k] = r
	}
	for k, e := range stage.timetable {
		s.timetable[k] = e
	}
	return nil
}

// NextTicket implements the Store interface.
func (s *InmemStore) NextTicket() (records.Ticket, error) {
	s.Lock()
	defer s.Unlock()

	if err := s.checkOpen(); err != nil {
		return 0, err
	}
	s.seq++
	return records.NewTicket(s.nodeID, s.seq), nil
}

// NodeID implements the Store interface.
func (s *InmemStore) NodeID() uint32 {
	return s.nodeID
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	s.Lock()
	defer s.Unlock()
	s.closed = true
	return nil
}

// inmemStage holds the writes of an Update until they are committed. It is
// only used while the store lock is held.
type inmemStage struct {
	store     *InmemStore
	requests  map[records.Ticket]*records.Request
	timetable map[int32]*records.TimetableEntry
}

func (st *inmemStage) getRequest(ticket records.Ticket) (*records.Request, error) {
	if r, ok := st.requests[ticket]; ok {
		return r.Copy(), nil
	}
	if r, ok := st.store.requests[ticket]; ok {
		return r.Copy(), nil
	}
	return nil, nil
}

func (st *inmemStage) putRequest(r *records.Request) error {
	st.requests[r.Ticket] = r.Copy()
	return nil
}

func (st *inmemStage) getEntry(flightNumber int32) (*records.TimetableEntry, error) {
	if e, ok := st.timetable[flightNumber]; ok {
		c := *e
		return &c, nil
	}
	if e, ok := st.store.timetable[flightNumber]; ok {
		c := *e
		return &c, nil
	}
	return nil, nil
}

func (st *inmemStage) putEntry(e *records.TimetableEntry) error {
	c := *e
	st.timetable[e.FlightNumber] = &c
	return nil
}
