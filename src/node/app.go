package node

import (
	"errors"
	"fmt"

	hnet "github.com/campnet/helisync/src/net"
	"github.com/campnet/helisync/src/reconcile"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/replicate"
	"github.com/campnet/helisync/src/store"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNotBooking is returned when a cancellation targets a ticket that is
	// not a booking.
	ErrNotBooking = errors.New("ticket is not a booking")

	// ErrAlreadyCancelled is returned when a booking already has a
	// cancellation.
	ErrAlreadyCancelled = errors.New("booking already cancelled")
)

// Book stores a new booking and hands it to the peers of the node. The
// returned report lists the peers the booking reached.
func (n *Node) Book(b records.Booking) (*records.Request, replicate.Report, error) {
	if !canCreateRequests(n.conf.Role) {
		return nil, replicate.Report{}, fmt.Errorf("%w: book", ErrNotPermitted)
	}

	ticket, err := n.store.NextTicket()
	if err != nil {
		return nil, replicate.Report{}, err
	}

	r := records.NewBooking(ticket, b)
	if err := r.Validate(); err != nil {
		return nil, replicate.Report{}, err
	}

	if _, err := n.store.UpsertRequest(r); err != nil {
		return nil, replicate.Report{}, err
	}

	n.logger.WithFields(logrus.Fields{
		"ticket":    r.Ticket,
		"passenger": b.Passenger,
		"flight":    b.FlightNumber,
		"date":      b.FlightDate,
	}).Info("Booked")

	return r, n.distribute(r), nil
}

// Cancel stores a cancellation of a known booking and hands it to the peers
// of the node.
func (n *Node) Cancel(ticket records.Ticket) (*records.Request, replicate.Report, error) {
	if !canCreateRequests(n.conf.Role) {
		return nil, replicate.Report{}, fmt.Errorf("%w: cancel", ErrNotPermitted)
	}

	booking, err := n.store.GetRequest(ticket)
	if err != nil {
		return nil, replicate.Report{}, err
	}
	if booking.Kind != records.KindBooking {
		return nil, replicate.Report{}, fmt.Errorf("%w: %s", ErrNotBooking, ticket)
	}

	existing, err := store.CancellationFor(n.store, ticket)
	if err != nil {
		return nil, replicate.Report{}, err
	}
	if existing != nil {
		return existing, replicate.Report{}, fmt.Errorf("%w: %s", ErrAlreadyCancelled, ticket)
	}

	next, err := n.store.NextTicket()
	if err != nil {
		return nil, replicate.Report{}, err
	}

	r := records.NewCancellation(next, ticket)
	if _, err := n.store.UpsertRequest(r); err != nil {
		return nil, replicate.Report{}, err
	}

	n.logger.WithFields(logrus.Fields{
		"ticket":    r.Ticket,
		"cancelled": ticket,
	}).Info("Cancelled")

	return r, n.distribute(r), nil
}

// distribute pushes a request created here. Camps broadcast to camps and air
// companies, towns hand the request to the air companies.
func (n *Node) distribute(r *records.Request) replicate.Report {
	switch n.conf.Role {
	case records.Town:
		companies, err := n.replicator.Resolve(records.AirCompany)
		if err != nil {
			n.logger.WithError(err).Warn("Failed to resolve air companies")
			return replicate.Report{}
		}
		return n.replicator.Send(companies, r)
	default:
		targets := n.replicator.ResolveAll(records.Camp, records.AirCompany)
		return n.replicator.BroadcastRequest(targets, r)
	}
}

// Confirm marks a request confirmed and checked, broadcasts it to camps and
// air companies, and sends the confirmation to the towns.
func (n *Node) Confirm(ticket records.Ticket) (*records.Request, error) {
	if n.conf.Role != records.AirCompany {
		return nil, fmt.Errorf("%w: confirm", ErrNotPermitted)
	}

	r, err := n.setFlags(ticket, true, true)
	if err != nil {
		return nil, err
	}

	n.logger.WithField("ticket", ticket).Info("Confirmed")

	n.publish([]*records.Request{r})

	return r, nil
}

// MarkChecked marks a request checked without confirming it and broadcasts
// it to camps and air companies.
func (n *Node) MarkChecked(ticket records.Ticket) (*records.Request, error) {
	if n.conf.Role != records.AirCompany {
		return nil, fmt.Errorf("%w: mark checked", ErrNotPermitted)
	}

	r, err := n.setFlags(ticket, false, true)
	if err != nil {
		return nil, err
	}

	targets := n.replicator.ResolveAll(records.Camp, records.AirCompany)
	n.replicator.BroadcastRequest(targets, r)

	return r, nil
}

// setFlags raises the flags of a stored request. Flags are never lowered.
func (n *Node) setFlags(ticket records.Ticket, confirmed, checked bool) (*records.Request, error) {
	var updated *records.Request

	err := n.store.Update(func(tx store.Txn) error {
		r, err := tx.GetRequest(ticket)
		if err != nil {
			return err
		}

		c := r.Copy()
		c.Confirmed = c.Confirmed || confirmed
		c.Checked = c.Checked || checked

		if _, err := tx.UpsertRequest(c); err != nil {
			return err
		}
		updated = c
		return nil
	})

	return updated, err
}

// publish broadcasts updated requests to camps and air companies and
// sends them to the towns as confirmations.
func (n *Node) publish(requests []*records.Request) {
	if len(requests) == 0 {
		return
	}

	targets := n.replicator.ResolveAll(records.Camp, records.AirCompany)
	n.replicator.Broadcast(targets, requests, nil)

	towns, err := n.replicator.Resolve(records.Town)
	if err != nil {
		n.logger.WithError(err).Warn("Failed to resolve towns")
		return
	}
	n.replicator.Confirm(towns, requests)
}

// ProcessPending checks every request the air company has not checked yet.
// A booking is confirmed if its flight still has a free seat on that date,
// on-demand bookings and cancellations are always confirmed. Every processed
// request is marked checked, broadcast, and sent to the towns. It returns the
// processed requests.
func (n *Node) ProcessPending() ([]*records.Request, error) {
	if n.conf.Role != records.AirCompany {
		return nil, fmt.Errorf("%w: process pending", ErrNotPermitted)
	}

	n.pendingLock.Lock()
	defer n.pendingLock.Unlock()

	pending, err := store.Unchecked(n.store)
	if err != nil {
		return nil, err
	}

	processed := make([]*records.Request, 0, len(pending))
	for _, r := range pending {
		confirm := true
		if r.Kind == records.KindBooking && r.Booking.TicketKind == records.SpecifiedFlight {
			confirm, err = store.HasFreeSeats(n.store, r.Booking.FlightNumber, r.Booking.FlightDate)
			if err != nil {
				return processed, err
			}
		}

		updated, err := n.setFlags(r.Ticket, confirm, true)
		if err != nil {
			return processed, err
		}
		processed = append(processed, updated)

		n.logger.WithFields(logrus.Fields{
			"ticket":    updated.Ticket,
			"kind":      updated.Kind,
			"confirmed": updated.Confirmed,
		}).Debug("Checked request")
	}

	n.publish(processed)

	return processed, nil
}

// AddFlight stores a timetable entry and broadcasts it to camps and air
// companies.
func (n *Node) AddFlight(entry records.TimetableEntry) (replicate.Report, error) {
	if n.conf.Role != records.AirCompany {
		return replicate.Report{}, fmt.Errorf("%w: add flight", ErrNotPermitted)
	}

	if _, err := n.store.UpsertTimetable(&entry); err != nil {
		return replicate.Report{}, err
	}

	n.logger.WithField("entry", entry.String()).Info("Flight added")

	targets := n.replicator.ResolveAll(records.Camp, records.AirCompany)
	return n.replicator.BroadcastEntry(targets, &entry), nil
}

// SyncFrom pulls both tables of a peer and reconciles them.
func (n *Node) SyncFrom(peer string) (reconcile.Report, reconcile.Report, error) {
	requests, err := n.trans.GiveMeRequests(peer)
	if err != nil {
		return reconcile.Report{}, reconcile.Report{}, err
	}

	timetable, err := n.trans.GiveMeTimetable(peer)
	if err != nil {
		return reconcile.Report{}, reconcile.Report{}, err
	}

	reqReport, ttReport, err := n.engine.Broadcast(requests, timetable)

	n.logger.WithFields(logrus.Fields{
		"peer":      peer,
		"requests":  reqReport,
		"timetable": ttReport,
	}).Info("Synced")

	return reqReport, ttReport, err
}

// SendTakeOff tells a helicopter to take off.
func (n *Node) SendTakeOff(peer string) error {
	if !canCommandFlights(n.conf.Role) {
		return fmt.Errorf("%w: take off", ErrNotPermitted)
	}

	err := n.trans.TakeOff(peer)
	n.metrics.Delivered(hnet.TakeOff.String(), hnet.ErrorKind(err))
	return err
}
