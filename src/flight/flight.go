// Package flight implements the flight lifecycle of a helicopter node.
//
// A helicopter is Grounded until a camp or an air company sends it the
// takeOff command. It then pulls the requests and the timetable of the
// commanding node, folds them into its own store and stays InFlight for a
// fixed duration. When the landing timer fires it is Grounded again and the
// landing is reported once, so that the node can hand its records to the air
// companies.
package flight

import (
	"sync"
	"time"

	"github.com/campnet/helisync/src/metrics"
	"github.com/campnet/helisync/src/reconcile"
	"github.com/campnet/helisync/src/records"
	"github.com/sirupsen/logrus"
)

// DefaultDuration is the time a helicopter stays in flight.
const DefaultDuration = 10 * time.Second

// TimerFactory returns a channel that fires once after the given duration.
type TimerFactory func(time.Duration) <-chan time.Time

// Locator maps the remote address of a takeOff connection to the address the
// commanding node listens on.
type Locator func(from string) (string, bool)

// Puller fetches the tables of a remote node.
type Puller interface {
	GiveMeRequests(target string) ([]*records.Request, error)
	GiveMeTimetable(target string) ([]*records.TimetableEntry, error)
}

// Sink folds pulled records into the local store.
type Sink interface {
	Broadcast(requests []*records.Request, timetable []*records.TimetableEntry) (reconcile.Report, reconcile.Report, error)
}

// Landing describes a completed flight.
type Landing struct {
	TakeOff   time.Time
	Landed    time.Time
	Commander string
	Requests  int
	Timetable int
}

// Config tunes a Flight. Zero values fall back to defaults: DefaultDuration,
// time.After, no locator and no landing callback.
type Config struct {
	Duration time.Duration
	Timer    TimerFactory
	Locator  Locator
	OnLanded func(Landing)
}

// Flight drives the Grounded/InFlight state machine of a helicopter.
type Flight struct {
	state

	puller Puller
	sink   Sink
	conf   Config

	// shutdownLock orders wg.Add in TakeOff before wg.Wait in Shutdown.
	shutdownLock sync.Mutex
	shutdown     bool
	shutdownCh   chan struct{}
	wg           sync.WaitGroup

	metrics *metrics.Metrics
	logger  *logrus.Entry
}

// NewFlight creates a grounded Flight. m may be nil.
func NewFlight(
	puller Puller,
	sink Sink,
	conf Config,
	m *metrics.Metrics,
	logger *logrus.Entry,
) *Flight {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if conf.Duration <= 0 {
		conf.Duration = DefaultDuration
	}

	if conf.Timer == nil {
		conf.Timer = time.After
	}

	return &Flight{
		puller:     puller,
		sink:       sink,
		conf:       conf,
		shutdownCh: make(chan struct{}),
		metrics:    m,
		logger:     logger,
	}
}

// State returns the current state.
func (f *Flight) State() State {
	return f.getState()
}

// Duration returns the time the helicopter stays in flight.
func (f *Flight) Duration() time.Duration {
	return f.conf.Duration
}

// TakeOff moves a grounded helicopter to InFlight. from is the remote address
// of the node that gave the order. The pulls from the commanding node and the
// landing happen in the background; TakeOff returns as soon as the
// transition is made. It returns ErrInvalidTransition if the helicopter is
// already in flight.
func (f *Flight) TakeOff(from string) error {
	f.shutdownLock.Lock()
	defer f.shutdownLock.Unlock()

	if f.shutdown {
		return ErrInvalidTransition
	}

	if !f.transition(Grounded, InFlight) {
		f.logger.WithField("from", from).Warn("Already in flight")
		return ErrInvalidTransition
	}

	f.metrics.TookOff()

	landing := Landing{TakeOff: time.Now()}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.fly(from, landing)
	}()

	return nil
}

func (f *Flight) fly(from string, landing Landing) {
	commander, ok := from, true
	if f.conf.Locator != nil {
		commander, ok = f.conf.Locator(from)
	}

	if ok {
		landing.Commander = commander
		landing.Requests, landing.Timetable = f.load(commander)
	} else {
		f.logger.WithField("from", from).Warn("Commanding node not found, flying with local data")
	}

	f.logger.WithFields(logrus.Fields{
		"commander": landing.Commander,
		"duration":  f.conf.Duration,
	}).Info("Took off")

	select {
	case <-f.conf.Timer(f.conf.Duration):
	case <-f.shutdownCh:
		f.setState(Grounded)
		f.metrics.Landed()
		f.logger.Debug("Flight aborted by shutdown")
		return
	}

	landing.Landed = time.Now()
	f.setState(Grounded)
	f.metrics.Landed()

	f.logger.WithFields(logrus.Fields{
		"commander": landing.Commander,
		"requests":  landing.Requests,
		"timetable": landing.Timetable,
	}).Info("Landed")

	if f.conf.OnLanded != nil {
		f.conf.OnLanded(landing)
	}
}

// load pulls both tables from the commanding node and reconciles them. A
// failed pull is logged and leaves the store as it is.
func (f *Flight) load(commander string) (int, int) {
	if f.puller == nil || f.sink == nil {
		return 0, 0
	}

	requests, err := f.puller.GiveMeRequests(commander)
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"commander": commander,
			"error":     err,
		}).Error("Failed to pull requests")
		requests = nil
	}

	timetable, err := f.puller.GiveMeTimetable(commander)
	if err != nil {
		f.logger.WithFields(logrus.Fields{
			"commander": commander,
			"error":     err,
		}).Error("Failed to pull timetable")
		timetable = nil
	}

	if len(requests) == 0 && len(timetable) == 0 {
		return 0, 0
	}

	reqReport, ttReport, err := f.sink.Broadcast(requests, timetable)
	if err != nil {
		f.logger.WithError(err).Error("Failed to store pulled records")
		return 0, 0
	}

	return reqReport.Total() - reqReport.Rejected, ttReport.Total() - ttReport.Rejected
}

// Shutdown aborts a flight in progress and waits for it to end. The landing
// callback is not invoked for an aborted flight.
func (f *Flight) Shutdown() {
	f.shutdownLock.Lock()
	if !f.shutdown {
		f.shutdown = true
		close(f.shutdownCh)
	}
	f.shutdownLock.Unlock()

	f.wg.Wait()
}
