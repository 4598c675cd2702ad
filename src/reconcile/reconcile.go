// Package reconcile folds batches received from peers into the local store.
//
// A request with an unknown ticket is inserted. A known ticket only takes the
// Confirmed and Checked flags of the incoming copy, according to the store's
// flag policy. A timetable entry overwrites the entry with the same flight
// number. Invalid records are counted and skipped; everything else in a batch
// is applied in one store transaction, so a store failure leaves no trace of
// the batch.
package reconcile

import (
	"fmt"
	"time"

	"github.com/campnet/helisync/src/metrics"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/store"
	"github.com/sirupsen/logrus"
)

// Report counts what a batch did to the store.
type Report struct {
	Inserted  int
	Updated   int
	Unchanged int
	Rejected  int
}

// Total is the number of records in the batch.
func (r Report) Total() int {
	return r.Inserted + r.Updated + r.Unchanged + r.Rejected
}

// Changed reports whether the batch modified the store.
func (r Report) Changed() bool {
	return r.Inserted+r.Updated > 0
}

func (r Report) String() string {
	return fmt.Sprintf("inserted=%d updated=%d unchanged=%d rejected=%d",
		r.Inserted, r.Updated, r.Unchanged, r.Rejected)
}

func (r *Report) add(o store.Outcome) {
	switch o {
	case store.Inserted:
		r.Inserted++
	case store.Updated:
		r.Updated++
	default:
		r.Unchanged++
	}
}

// Engine reconciles batches into a store, logging and measuring each one.
type Engine struct {
	store   store.Store
	metrics *metrics.Metrics
	logger  *logrus.Entry
}

// NewEngine creates an Engine. m may be nil.
func NewEngine(s store.Store, m *metrics.Metrics, logger *logrus.Entry) *Engine {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Engine{
		store:   s,
		metrics: m,
		logger:  logger,
	}
}

// Requests reconciles a batch of requests.
func (e *Engine) Requests(batch []*records.Request) (Report, error) {
	var report Report
	start := time.Now()

	err := e.store.Update(func(tx store.Txn) error {
		var err error
		report, err = applyRequests(tx, batch, e.logger)
		return err
	})

	return e.done("requests", report, start, err)
}

// Timetable reconciles a batch of timetable entries.
func (e *Engine) Timetable(batch []*records.TimetableEntry) (Report, error) {
	var report Report
	start := time.Now()

	err := e.store.Update(func(tx store.Txn) error {
		var err error
		report, err = applyTimetable(tx, batch, e.logger)
		return err
	})

	return e.done("timetable", report, start, err)
}

// Broadcast reconciles the requests then the timetable of a broadcast, both
// in the same transaction.
func (e *Engine) Broadcast(requests []*records.Request, timetable []*records.TimetableEntry) (Report, Report, error) {
	var reqReport, ttReport Report
	start := time.Now()

	err := e.store.Update(func(tx store.Txn) error {
		var err error
		if reqReport, err = applyRequests(tx, requests, e.logger); err != nil {
			return err
		}
		ttReport, err = applyTimetable(tx, timetable, e.logger)
		return err
	})

	if _, err := e.done("requests", reqReport, start, err); err != nil {
		return Report{}, Report{}, err
	}
	e.done("timetable", ttReport, start, nil)
	return reqReport, ttReport, nil
}

func (e *Engine) done(table string, report Report, start time.Time, err error) (Report, error) {
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"table": table,
			"error": err,
		}).Error("Reconciliation rolled back")
		return Report{}, err
	}

	e.metrics.Reconciled(table, report.Inserted, report.Updated, report.Unchanged, report.Rejected, time.Since(start))

	e.logger.WithFields(logrus.Fields{
		"table":     table,
		"inserted":  report.Inserted,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
		"rejected":  report.Rejected,
	}).Debug("Reconciled batch")

	return report, nil
}

// Requests reconciles a batch of requests into s without an Engine.
func Requests(s store.Store, batch []*records.Request) (Report, error) {
	return NewEngine(s, nil, nil).Requests(batch)
}

// Timetable reconciles a batch of timetable entries into s without an Engine.
func Timetable(s store.Store, batch []*records.TimetableEntry) (Report, error) {
	return NewEngine(s, nil, nil).Timetable(batch)
}

func applyRequests(tx store.Txn, batch []*records.Request, logger *logrus.Entry) (Report, error) {
	var report Report
	for _, r := range batch {
		if r == nil {
			report.Rejected++
			continue
		}
		if err := r.Validate(); err != nil {
			logger.WithField("error", err).Warn("Rejected request")
			report.Rejected++
			continue
		}

		outcome, err := tx.UpsertRequest(r)
		if err != nil {
			return report, err
		}
		report.add(outcome)
	}
	return report, nil
}

func applyTimetable(tx store.Txn, batch []*records.TimetableEntry, logger *logrus.Entry) (Report, error) {
	var report Report
	for _, te := range batch {
		if te == nil {
			report.Rejected++
			continue
		}
		if err := te.Validate(); err != nil {
			logger.WithField("error", err).Warn("Rejected timetable entry")
			report.Rejected++
			continue
		}

		outcome, err := tx.UpsertTimetable(te)
		if err != nil {
			return report, err
		}
		report.add(outcome)
	}
	return report, nil
}
