// Package replicate pushes new records to the peers of a node.
//
// Delivery is best-effort: every peer is tried once, concurrently, and the
// failure of one peer never holds back the others. The outcome for each peer
// is reported so that callers can tell which peers missed a record and decide
// whether to try again.
package replicate

import (
	"sync"

	"github.com/campnet/helisync/src/metrics"
	hnet "github.com/campnet/helisync/src/net"
	"github.com/campnet/helisync/src/peers"
	"github.com/campnet/helisync/src/records"
	"github.com/sirupsen/logrus"
)

// Transport is the part of net.Transport used to push records.
type Transport interface {
	Broadcast(target string, requests []*records.Request, timetable []*records.TimetableEntry) error
	TakeMyRequest(target string, request *records.Request) error
	Confirmation(target string, requests []*records.Request) error
}

// Result is the outcome of a delivery to one peer.
type Result struct {
	Peer *peers.Peer
	Err  error
}

// Report lists the outcome of a fan-out, one Result per peer, in the order
// the peers were given.
type Report struct {
	Results []Result
}

// OK reports whether every peer acknowledged the delivery. A fan-out to no
// peers is OK.
func (r Report) OK() bool {
	ok := true
	for _, res := range r.Results {
		ok = ok && res.Err == nil
	}
	return ok
}

// Failed returns the peers the delivery did not reach.
func (r Report) Failed() []*peers.Peer {
	failed := []*peers.Peer{}
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res.Peer)
		}
	}
	return failed
}

// Delivered returns the number of peers that acknowledged the delivery.
func (r Report) Delivered() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Replicator sends records to peers found in a Directory.
type Replicator struct {
	trans   Transport
	dir     peers.Directory
	self    string
	moniker string

	metrics *metrics.Metrics
	logger  *logrus.Entry
}

// NewReplicator creates a Replicator. self and moniker identify the local node
// so that it is left out of resolved peers. m may be nil.
func NewReplicator(
	trans Transport,
	dir peers.Directory,
	self string,
	moniker string,
	m *metrics.Metrics,
	logger *logrus.Entry,
) *Replicator {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &Replicator{
		trans:   trans,
		dir:     dir,
		self:    self,
		moniker: moniker,
		metrics: m,
		logger:  logger,
	}
}

// Resolve returns the peers playing role, without the local node.
func (r *Replicator) Resolve(role records.Role) ([]*peers.Peer, error) {
	resolved, err := r.dir.ResolvePeers(role.ServiceType())
	if err != nil {
		return nil, err
	}

	_, others := peers.ExcludePeer(resolved, r.self)

	res := make([]*peers.Peer, 0, len(others))
	for _, p := range others {
		if r.moniker != "" && p.Moniker == r.moniker {
			continue
		}
		res = append(res, p)
	}
	return res, nil
}

// ResolveAll returns the peers of several roles, without the local node. A
// role that cannot be resolved is logged and skipped.
func (r *Replicator) ResolveAll(roles ...records.Role) []*peers.Peer {
	res := []*peers.Peer{}
	seen := make(map[string]bool)
	for _, role := range roles {
		ps, err := r.Resolve(role)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"role":  role,
				"error": err,
			}).Warn("Failed to resolve peers")
			continue
		}
		for _, p := range ps {
			if !seen[p.NetAddr] {
				seen[p.NetAddr] = true
				res = append(res, p)
			}
		}
	}
	return res
}

// Broadcast pushes requests and timetable entries to every peer with the
// broadcast command.
func (r *Replicator) Broadcast(targets []*peers.Peer, requests []*records.Request, timetable []*records.TimetableEntry) Report {
	if requests == nil {
		requests = []*records.Request{}
	}
	if timetable == nil {
		timetable = []*records.TimetableEntry{}
	}
	return r.fanOut(hnet.Broadcast, targets, func(p *peers.Peer) error {
		return r.trans.Broadcast(p.NetAddr, requests, timetable)
	})
}

// BroadcastRequest pushes a single request to every peer.
func (r *Replicator) BroadcastRequest(targets []*peers.Peer, request *records.Request) Report {
	return r.Broadcast(targets, []*records.Request{request}, nil)
}

// BroadcastEntry pushes a single timetable entry to every peer.
func (r *Replicator) BroadcastEntry(targets []*peers.Peer, entry *records.TimetableEntry) Report {
	return r.Broadcast(targets, nil, []*records.TimetableEntry{entry})
}

// Confirm pushes confirmed requests to every peer with the confirmation
// command.
func (r *Replicator) Confirm(targets []*peers.Peer, requests []*records.Request) Report {
	return r.fanOut(hnet.Confirmation, targets, func(p *peers.Peer) error {
		return r.trans.Confirmation(p.NetAddr, requests)
	})
}

// Send pushes one request to every peer with the takeMyRequest command.
func (r *Replicator) Send(targets []*peers.Peer, request *records.Request) Report {
	return r.fanOut(hnet.TakeMyRequest, targets, func(p *peers.Peer) error {
		return r.trans.TakeMyRequest(p.NetAddr, request)
	})
}

// SendRecord pushes one request to one peer with the takeMyRequest command.
func (r *Replicator) SendRecord(target *peers.Peer, request *records.Request) error {
	err := r.trans.TakeMyRequest(target.NetAddr, request)
	r.record(hnet.TakeMyRequest, target, err)
	return err
}

func (r *Replicator) fanOut(cmd hnet.Command, targets []*peers.Peer, deliver func(p *peers.Peer) error) Report {
	results := make([]Result, len(targets))

	var wg sync.WaitGroup
	for i, p := range targets {
		wg.Add(1)
		go func(i int, p *peers.Peer) {
			defer wg.Done()
			err := deliver(p)
			results[i] = Result{Peer: p, Err: err}
			r.record(cmd, p, err)
		}(i, p)
	}
	wg.Wait()

	report := Report{Results: results}

	r.logger.WithFields(logrus.Fields{
		"command":   cmd,
		"peers":     len(targets),
		"delivered": report.Delivered(),
	}).Debug("Fan-out complete")

	return report
}

func (r *Replicator) record(cmd hnet.Command, p *peers.Peer, err error) {
	r.metrics.Delivered(cmd.String(), hnet.ErrorKind(err))

	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"command": cmd,
			"peer":    p.NetAddr,
			"error":   err,
		}).Warn("Delivery failed")
	}
}
