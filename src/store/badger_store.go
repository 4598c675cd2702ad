package store

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"sync"

	cm "github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/records"
	"github.com/dgraph-io/badger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestPrefix   = "req"
	timetablePrefix = "tt"
	nodeIDKey       = "meta_node"
	seqKey          = "meta_seq"
)

// BadgerStore implements the Store interface on top of a Badger database.
// Writers are serialized by a mutex so that the read-merge-write cycle of an
// upsert never races with another writer.
type BadgerStore struct {
	sync.Mutex

	db     *badger.DB
	path   string
	policy FlagPolicy
	nodeID uint32
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path. The node id is created on first open and read back afterwards.
func NewBadgerStore(path string, policy FlagPolicy, logger *logrus.Entry) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		db:     handle,
		path:   path,
		policy: policy,
	}

	if err := store.loadNodeID(); err != nil {
		handle.Close()
		return nil, err
	}

	return store, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func requestKey(ticket records.Ticket) []byte {
	return []byte(fmt.Sprintf("%s_%020d", requestPrefix, uint64(ticket)))
}

func timetableKey(flightNumber int32) []byte {
	return []byte(fmt.Sprintf("%s_%010d", timetablePrefix, flightNumber))
}

/*******************************************************************************
Implement the Store interface
*******************************************************************************/

// AllRequests implements the Store interface.
func (s *BadgerStore) AllRequests() ([]*records.Request, error) {
	res := []*records.Request{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(requestPrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(data []byte) error {
				r := new(records.Request)
				if err := r.Unmarshal(data); err != nil {
					return err
				}
				res = append(res, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Bookings implements the Store interface.
func (s *BadgerStore) Bookings() ([]*records.Request, error) {
	all, err := s.AllRequests()
	if err != nil {
		return nil, err
	}
	return filterKind(all, records.KindBooking), nil
}

// Cancellations implements the Store interface.
func (s *BadgerStore) Cancellations() ([]*records.Request, error) {
	all, err := s.AllRequests()
	if err != nil {
		return nil, err
	}
	return filterKind(all, records.KindCancellation), nil
}

// Timetable implements the Store interface.
func (s *BadgerStore) Timetable() ([]*records.TimetableEntry, error) {
	res := []*records.TimetableEntry{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(timetablePrefix + "_")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(data []byte) error {
				e := new(records.TimetableEntry)
				if err := e.Unmarshal(data); err != nil {
					return err
				}
				res = append(res, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// TimetableEntry implements the Store interface.
func (s *BadgerStore) TimetableEntry(flightNumber int32) (*records.TimetableEntry, error) {
	var e *records.TimetableEntry
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		e, err = (&badgerTxn{txn}).getEntry(flightNumber)
		return err
	})
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, cm.NewStoreErr("TimetableEntry", cm.KeyNotFound, strconv.Itoa(int(flightNumber)))
	}
	return e, nil
}

// GetRequest implements the Store interface.
func (s *BadgerStore) GetRequest(ticket records.Ticket) (*records.Request, error) {
	var r *records.Request
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		r, err = (&badgerTxn{txn}).getRequest(ticket)
		return err
	})
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, cm.NewStoreErr("Request", cm.KeyNotFound, ticket.String())
	}
	return r, nil
}

// HasTicket implements the Store interface.
func (s *BadgerStore) HasTicket(ticket records.Ticket) (bool, error) {
	return s.has(requestKey(ticket))
}

// HasFlightNumber implements the Store interface.
func (s *BadgerStore) HasFlightNumber(flightNumber int32) (bool, error) {
	return s.has(timetableKey(flightNumber))
}

func (s *BadgerStore) has(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if isDBKeyNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// UpsertRequest implements the Store interface.
func (s *BadgerStore) UpsertRequest(r *records.Request) (Outcome, error) {
	var outcome Outcome
	err := s.Update(func(tx Txn) error {
		var err error
		outcome, err = tx.UpsertRequest(r)
		return err
	})
	return outcome, err
}

// UpsertTimetable implements the Store interface.
func (s *BadgerStore) UpsertTimetable(e *records.TimetableEntry) (Outcome, error) {
	var outcome Outcome
	err := s.Update(func(tx Txn) error {
		var err error
		outcome, err = tx.UpsertTimetable(e)
		return err
	})
	return outcome, err
}

// Update runs fn in a single read-write Badger transaction, which is committed
// only if fn returns nil.
func (s *BadgerStore) Update(fn func(Txn) error) error {
	s.Lock()
	defer s.Unlock()

	return s.db.Update(func(btx *badger.Txn) error {
		return fn(&txn{b: &badgerTxn{btx}, policy: s.policy})
	})
}

// NextTicket implements the Store interface. The counter is persisted so
// tickets keep increasing across restarts.
func (s *BadgerStore) NextTicket() (records.Ticket, error) {
	s.Lock()
	defer s.Unlock()

	var seq uint32
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(seqKey))
		switch {
		case isDBKeyNotFound(err):
		case err != nil:
			return err
		default:
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(val) != 4 {
				return fmt.Errorf("corrupt ticket counter (%d bytes)", len(val))
			}
			seq = binary.BigEndian.Uint32(val)
		}

		seq++
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, seq)
		return txn.Set([]byte(seqKey), buf)
	})
	if err != nil {
		return 0, err
	}
	return records.NewTicket(s.nodeID, seq), nil
}

// NodeID implements the Store interface.
func (s *BadgerStore) NodeID() uint32 {
	return s.nodeID
}

// Close closes the underlying Badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// StorePath returns the full path of the underlying Badger database directory.
func (s *BadgerStore) StorePath() string {
	return s.path
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) loadNodeID() error {
	return s.db.Update(func(txn *badger.Txn) error {
		var id []byte

		item, err := txn.Get([]byte(nodeIDKey))
		switch {
		case isDBKeyNotFound(err):
			u := uuid.New()
			id = []byte(u.String())
			if err := txn.Set([]byte(nodeIDKey), id); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if id, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}

		u, err := uuid.ParseBytes(id)
		if err != nil {
			return fmt.Errorf("corrupt node id: %w", err)
		}
		s.nodeID = cm.Hash32(u[:])
		return nil
	})
}

// badgerTxn is the backend of a txn running inside a Badger transaction.
type badgerTxn struct {
	txn *badger.Txn
}

func (b *badgerTxn) getRequest(ticket records.Ticket) (*records.Request, error) {
	item, err := b.txn.Get(requestKey(ticket))
	if isDBKeyNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "Request", ticket.String())
	}

	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	r := new(records.Request)
	if err := r.Unmarshal(data); err != nil {
		return nil, err
	}
	return r, nil
}

func (b *badgerTxn) putRequest(r *records.Request) error {
	val, err := r.Marshal()
	if err != nil {
		return err
	}
	//insert [ticket] => [Request bytes]
	return b.txn.Set(requestKey(r.Ticket), val)
}

func (b *badgerTxn) getEntry(flightNumber int32) (*records.TimetableEntry, error) {
	item, err := b.txn.Get(timetableKey(flightNumber))
	if isDBKeyNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err, "TimetableEntry", strconv.Itoa(int(flightNumber)))
	}

	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}

	e := new(records.TimetableEntry)
	if err := e.Unmarshal(data); err != nil {
		return nil, err
	}
	return e, nil
}

func (b *badgerTxn) putEntry(e *records.TimetableEntry) error {
	val, err := e.Marshal()
	if err != nil {
		return err
	}
	//insert [flight number] => [TimetableEntry bytes]
	return b.txn.Set(timetableKey(e.FlightNumber), val)
}

//++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++++

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
