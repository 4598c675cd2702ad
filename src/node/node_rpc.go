package node

import (
	"fmt"
	"sync/atomic"

	hnet "github.com/campnet/helisync/src/net"
	"github.com/campnet/helisync/src/records"
	"github.com/sirupsen/logrus"
)

func (n *Node) processRPC(rpc hnet.RPC) {
	atomic.AddInt64(&n.sessions, 1)

	cmd, ok := commandOf(rpc.Command)
	if !ok {
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		n.respond(rpc, "unknown", nil, fmt.Errorf("unexpected command %T", rpc.Command))
		return
	}

	if !Accepts(n.conf.Role, cmd) {
		n.logger.WithFields(logrus.Fields{
			"cmd":  cmd,
			"from": rpc.From,
		}).Warn("Command not accepted")
		n.respond(rpc, cmd.String(), nil, fmt.Errorf("%w: %s", ErrNotAccepted, cmd))
		return
	}

	switch c := rpc.Command.(type) {
	case *hnet.GiveMeRequestsCmd:
		n.processGiveMeRequests(rpc)
	case *hnet.GiveMeTimetableCmd:
		n.processGiveMeTimetable(rpc)
	case *hnet.TakeMyRequestsCmd:
		n.processTakeMyRequests(rpc, c)
	case *hnet.TakeMyTimetableCmd:
		n.processTakeMyTimetable(rpc, c)
	case *hnet.TakeMyRequestCmd:
		n.processTakeMyRequest(rpc, c)
	case *hnet.BroadcastCmd:
		n.processBroadcast(rpc, c)
	case *hnet.ConfirmationCmd:
		n.processConfirmation(rpc, c)
	case *hnet.TakeOffCmd:
		n.processTakeOff(rpc)
	}
}

func (n *Node) respond(rpc hnet.RPC, cmd string, resp interface{}, err error) {
	if err != nil {
		atomic.AddInt64(&n.sessionErrors, 1)
	}
	n.metrics.SessionServed(cmd, err)
	rpc.Respond(resp, err)
}

// processGiveMeRequests answers with every request. A store failure is
// logged and answered with an empty batch.
func (n *Node) processGiveMeRequests(rpc hnet.RPC) {
	requests, err := n.store.AllRequests()
	if err != nil {
		n.logger.WithError(err).Error("Failed to read requests, answering with none")
		requests = []*records.Request{}
	}

	n.logger.WithFields(logrus.Fields{
		"from":     rpc.From,
		"requests": len(requests),
	}).Debug("process GiveMeRequests")

	n.respond(rpc, hnet.GiveMeRequests.String(), &hnet.RequestsResponse{Requests: requests}, nil)
}

func (n *Node) processGiveMeTimetable(rpc hnet.RPC) {
	timetable, err := n.store.Timetable()
	if err != nil {
		n.logger.WithError(err).Error("Failed to read timetable, answering with none")
		timetable = []*records.TimetableEntry{}
	}

	n.logger.WithFields(logrus.Fields{
		"from":      rpc.From,
		"timetable": len(timetable),
	}).Debug("process GiveMeTimetable")

	n.respond(rpc, hnet.GiveMeTimetable.String(), &hnet.TimetableResponse{Timetable: timetable}, nil)
}

func (n *Node) processTakeMyRequests(rpc hnet.RPC, cmd *hnet.TakeMyRequestsCmd) {
	report, err := n.engine.Requests(cmd.Requests)

	n.logger.WithFields(logrus.Fields{
		"from":   rpc.From,
		"report": report,
	}).Debug("process TakeMyRequests")

	n.respond(rpc, hnet.TakeMyRequests.String(), nil, err)

	// A batch pushed to an air company is a helicopter handing over its
	// cargo.
	if err == nil && n.conf.Role == records.AirCompany {
		if !n.goFunc(n.processPendingAsync) {
			n.logger.Warn("Too many background routines, pending requests left for later")
		}
	}
}

func (n *Node) processTakeMyTimetable(rpc hnet.RPC, cmd *hnet.TakeMyTimetableCmd) {
	report, err := n.engine.Timetable(cmd.Timetable)

	n.logger.WithFields(logrus.Fields{
		"from":   rpc.From,
		"report": report,
	}).Debug("process TakeMyTimetable")

	n.respond(rpc, hnet.TakeMyTimetable.String(), nil, err)
}

func (n *Node) processTakeMyRequest(rpc hnet.RPC, cmd *hnet.TakeMyRequestCmd) {
	report, err := n.engine.Requests([]*records.Request{cmd.Request})

	n.logger.WithFields(logrus.Fields{
		"from":   rpc.From,
		"ticket": cmd.Request.Ticket,
		"report": report,
	}).Debug("process TakeMyRequest")

	n.respond(rpc, hnet.TakeMyRequest.String(), nil, err)
}

func (n *Node) processBroadcast(rpc hnet.RPC, cmd *hnet.BroadcastCmd) {
	reqReport, ttReport, err := n.engine.Broadcast(cmd.Requests, cmd.Timetable)

	n.logger.WithFields(logrus.Fields{
		"from":      rpc.From,
		"requests":  reqReport,
		"timetable": ttReport,
	}).Debug("process Broadcast")

	n.respond(rpc, hnet.Broadcast.String(), nil, err)
}

// processConfirmation hands the confirmed records to the notification hook.
// The store is left alone.
func (n *Node) processConfirmation(rpc hnet.RPC, cmd *hnet.ConfirmationCmd) {
	n.logger.WithFields(logrus.Fields{
		"from":     rpc.From,
		"requests": len(cmd.Requests),
	}).Info("process Confirmation")

	n.respond(rpc, hnet.Confirmation.String(), nil, nil)

	n.onConfirmation(cmd.Requests)
}

// reportConfirmations is the default confirmation hook. It logs every
// record.
func (n *Node) reportConfirmations(requests []*records.Request) {
	for _, r := range requests {
		n.logger.WithFields(logrus.Fields{
			"ticket":    r.Ticket,
			"kind":      r.Kind,
			"confirmed": r.Confirmed,
			"checked":   r.Checked,
			"request":   r.String(),
		}).Info("Confirmation received")
	}
}

func (n *Node) processTakeOff(rpc hnet.RPC) {
	err := n.flight.TakeOff(rpc.From)

	n.logger.WithFields(logrus.Fields{
		"from":  rpc.From,
		"error": err,
	}).Debug("process TakeOff")

	n.respond(rpc, hnet.TakeOff.String(), nil, err)
}

func (n *Node) processPendingAsync() {
	confirmed, err := n.ProcessPending()
	if err != nil {
		n.logger.WithError(err).Error("Failed to process pending requests")
		return
	}
	n.logger.WithField("confirmed", len(confirmed)).Debug("Processed pending requests")
}
