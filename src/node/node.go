package node

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/campnet/helisync/src/flight"
	"github.com/campnet/helisync/src/metrics"
	hnet "github.com/campnet/helisync/src/net"
	"github.com/campnet/helisync/src/peers"
	"github.com/campnet/helisync/src/reconcile"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/replicate"
	"github.com/campnet/helisync/src/store"
	"github.com/sirupsen/logrus"
)

// Node defines a helisync node
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	store  store.Store
	engine *reconcile.Engine

	trans hnet.Transport
	netCh <-chan hnet.RPC

	replicator *replicate.Replicator
	flight     *flight.Flight
	metrics    *metrics.Metrics

	onConfirmation func([]*records.Request)

	shutdownCh  chan struct{}
	pendingLock sync.Mutex

	start         time.Time
	sessions      int64
	sessionErrors int64
}

// NewNode is a factory method that returns a Node instance. m may be nil.
func NewNode(conf *Config,
	s store.Store,
	trans hnet.Transport,
	dir peers.Directory,
	m *metrics.Metrics,
) *Node {

	if conf.Logger == nil {
		conf.Logger = logrus.New()
		conf.Logger.Level = logrus.DebugLevel
	}

	logger := conf.Logger.WithFields(logrus.Fields{
		"role":    conf.Role,
		"moniker": conf.Moniker,
	})

	node := &Node{
		conf:       conf,
		logger:     logger,
		store:      s,
		engine:     reconcile.NewEngine(s, m, logger.WithField("prefix", "reconcile")),
		trans:      trans,
		netCh:      trans.Consumer(),
		metrics:    m,
		shutdownCh: make(chan struct{}),
		start:      time.Now(),
	}

	node.replicator = replicate.NewReplicator(
		trans,
		dir,
		trans.AdvertiseAddr(),
		conf.Moniker,
		m,
		logger.WithField("prefix", "replicate"),
	)

	node.onConfirmation = conf.OnConfirmation
	if node.onConfirmation == nil {
		node.onConfirmation = node.reportConfirmations
	}

	if conf.Role == records.Helicopter {
		onLanded := conf.OnLanded
		if onLanded == nil {
			onLanded = node.deliverCargo
		}

		node.flight = flight.NewFlight(trans, node.engine, flight.Config{
			Duration: conf.FlightDuration,
			Timer:    conf.FlightTimer,
			Locator:  node.locateCommander,
			OnLanded: onLanded,
		}, m, logger.WithField("prefix", "flight"))
	}

	return node
}

// RunAsync calls Run as a separate thread
func (n *Node) RunAsync() {
	n.logger.Debug("runasync")

	go n.Run()
}

// Run starts the transport listener and serves the commands it delivers
// until Shutdown is called.
func (n *Node) Run() {
	n.logger.WithFields(logrus.Fields{
		"addr":     n.trans.AdvertiseAddr(),
		"accepted": AcceptedCommands(n.conf.Role),
	}).Info("Node running")

	go n.trans.Listen()

	for {
		select {
		case rpc := <-n.netCh:
			n.processRPC(rpc)
		case <-n.shutdownCh:
			return
		}
	}
}

// Shutdown shuts down the node
func (n *Node) Shutdown() {
	if n.getState() != Shutdown {
		n.logger.Debug("Shutdown")

		n.setState(Shutdown)

		close(n.shutdownCh)

		if n.flight != nil {
			n.flight.Shutdown()
		}

		n.waitRoutines()

		// transport and store should only be closed once all concurrent
		// operations are finished
		n.trans.Close()

		n.store.Close()
	}
}

// Role returns the role of the node.
func (n *Node) Role() records.Role {
	return n.conf.Role
}

// Moniker returns the moniker of the node.
func (n *Node) Moniker() string {
	return n.conf.Moniker
}

// Store returns the store of the node.
func (n *Node) Store() store.Store {
	return n.store
}

// Metrics returns the metrics of the node, possibly nil.
func (n *Node) Metrics() *metrics.Metrics {
	return n.metrics
}

// FlightState returns the flight state of a helicopter. Other roles are
// always Grounded.
func (n *Node) FlightState() flight.State {
	if n.flight == nil {
		return flight.Grounded
	}
	return n.flight.State()
}

// FlightDuration returns the time a helicopter stays in flight, zero for
// other roles.
func (n *Node) FlightDuration() time.Duration {
	if n.flight == nil {
		return 0
	}
	return n.flight.Duration()
}

// Peers returns the known peers of a role, without this node.
func (n *Node) Peers(role records.Role) ([]*peers.Peer, error) {
	return n.replicator.Resolve(role)
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	count := func(items int, err error) string {
		if err != nil {
			return "error"
		}
		return strconv.Itoa(items)
	}

	all, err := n.store.AllRequests()
	requests := count(len(all), err)

	unchecked, err := store.Unchecked(n.store)
	pending := count(len(unchecked), err)

	tt, err := n.store.Timetable()
	timetable := count(len(tt), err)

	sessions := atomic.LoadInt64(&n.sessions)
	sessionErrors := atomic.LoadInt64(&n.sessionErrors)

	s := map[string]string{
		"id":             fmt.Sprint(n.store.NodeID()),
		"moniker":        n.conf.Moniker,
		"role":           n.conf.Role.String(),
		"state":          n.getState().String(),
		"flight_state":   n.FlightState().String(),
		"addr":           n.trans.AdvertiseAddr(),
		"requests":       requests,
		"unchecked":      pending,
		"timetable":      timetable,
		"sessions":       strconv.FormatInt(sessions, 10),
		"session_errors": strconv.FormatInt(sessionErrors, 10),
		"uptime":         time.Since(n.start).Round(time.Second).String(),
	}
	return s
}

func (n *Node) logStats() {
	stats := n.GetStats()

	n.logger.WithFields(logrus.Fields{
		"requests":       stats["requests"],
		"unchecked":      stats["unchecked"],
		"timetable":      stats["timetable"],
		"sessions":       stats["sessions"],
		"session_errors": stats["session_errors"],
		"flight_state":   stats["flight_state"],
	}).Debug("Stats")
}

// locateCommander finds the camp or air company a takeOff came from. The
// remote address of the connection carries an ephemeral port, so peers are
// matched on their host when the exact address is unknown.
func (n *Node) locateCommander(from string) (string, bool) {
	candidates := n.replicator.ResolveAll(records.Camp, records.AirCompany)

	for _, p := range candidates {
		if p.NetAddr == from {
			return p.NetAddr, true
		}
	}

	host, _, err := net.SplitHostPort(from)
	if err != nil {
		host = from
	}
	for _, p := range candidates {
		if p.Host() == host {
			return p.NetAddr, true
		}
	}

	return "", false
}

// deliverCargo pushes the requests of a landed helicopter to the air
// companies.
func (n *Node) deliverCargo(l flight.Landing) {
	requests, err := n.store.AllRequests()
	if err != nil {
		n.logger.WithError(err).Error("Failed to read requests after landing")
		return
	}

	companies, err := n.replicator.Resolve(records.AirCompany)
	if err != nil {
		n.logger.WithError(err).Error("Failed to resolve air companies")
		return
	}

	for _, p := range companies {
		err := n.trans.TakeMyRequests(p.NetAddr, requests)
		n.metrics.Delivered(hnet.TakeMyRequests.String(), hnet.ErrorKind(err))
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"peer":  p.NetAddr,
				"error": err,
			}).Warn("Failed to hand requests to air company")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"peer":     p.NetAddr,
			"requests": len(requests),
		}).Info("Handed requests to air company")
	}

	n.logStats()
}
