package net

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/campnet/helisync/src/records"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTimeout bounds a whole client session.
	DefaultTimeout = 5 * time.Second

	// DefaultDialTimeout bounds the connection attempt of a client session.
	DefaultDialTimeout = 2 * time.Second
)

// Options tune a NetworkTransport.
type Options struct {
	// Timeout is the I/O deadline of a client session. Zero means no
	// deadline.
	Timeout time.Duration

	// DialTimeout bounds connection attempts.
	DialTimeout time.Duration

	// ServerTimeout is the I/O deadline of a served session. Zero means the
	// server waits for the client as long as it takes.
	ServerTimeout time.Duration

	// Serial serves connections one at a time, in the accept loop. Otherwise
	// each connection gets its own goroutine.
	Serial bool

	// MaxBatch is the largest count accepted for a batch.
	MaxBatch int
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Timeout:     DefaultTimeout,
		DialTimeout: DefaultDialTimeout,
		Serial:      true,
		MaxBatch:    DefaultMaxBatch,
	}
}

/*
NetworkTransport provides a network based transport that can be used to
communicate with helisync nodes on remote machines. It requires an underlying
stream layer to provide a stream abstraction, which can be simple TCP or an
in-memory pipe.

Connections are never pooled: each session dials a new connection, sends one
command and its payload, and ends with the goodbye handshake.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	consumeCh chan RPC

	shutdown     bool
	shutdownCh   chan struct{}
	shutdownLock sync.Mutex

	stream StreamLayer

	opts Options

	wg sync.WaitGroup
}

// NewNetworkTransport creates a new network transport with the given stream
// layer.
func NewNetworkTransport(
	stream StreamLayer,
	opts Options,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if opts.MaxBatch <= 0 {
		opts.MaxBatch = DefaultMaxBatch
	}

	trans := &NetworkTransport{
		consumeCh:  make(chan RPC),
		logger:     logger,
		shutdownCh: make(chan struct{}),
		stream:     stream,
		opts:       opts,
	}

	return trans
}

// Close is used to stop the network transport. It waits for the sessions being
// served to finish.
func (n *NetworkTransport) Close() error {
	n.shutdownLock.Lock()

	if !n.shutdown {
		close(n.shutdownCh)
		n.stream.Close()

		n.shutdown = true
	}
	n.shutdownLock.Unlock()

	n.wg.Wait()
	return nil
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	addr := n.stream.Addr()

	if addr != nil {
		return addr.String()
	}

	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

/*******************************************************************************
Client
*******************************************************************************/

// GiveMeRequests implements the Transport interface.
func (n *NetworkTransport) GiveMeRequests(target string) ([]*records.Request, error) {
	var requests []*records.Request
	err := n.session(target, GiveMeRequests, func(sc *sessionConn) error {
		var err error
		requests, err = sc.readRequests()
		return err
	})
	return requests, err
}

// GiveMeTimetable implements the Transport interface.
func (n *NetworkTransport) GiveMeTimetable(target string) ([]*records.TimetableEntry, error) {
	var timetable []*records.TimetableEntry
	err := n.session(target, GiveMeTimetable, func(sc *sessionConn) error {
		var err error
		timetable, err = sc.readTimetable()
		return err
	})
	return timetable, err
}

// TakeMyRequests implements the Transport interface.
func (n *NetworkTransport) TakeMyRequests(target string, requests []*records.Request) error {
	return n.session(target, TakeMyRequests, func(sc *sessionConn) error {
		return sc.writeRequests(requests)
	})
}

// TakeMyTimetable implements the Transport interface.
func (n *NetworkTransport) TakeMyTimetable(target string, timetable []*records.TimetableEntry) error {
	return n.session(target, TakeMyTimetable, func(sc *sessionConn) error {
		return sc.writeTimetable(timetable)
	})
}

// TakeMyRequest implements the Transport interface.
func (n *NetworkTransport) TakeMyRequest(target string, request *records.Request) error {
	return n.session(target, TakeMyRequest, func(sc *sessionConn) error {
		return sc.writeSingleRequest(request)
	})
}

// Broadcast implements the Transport interface.
func (n *NetworkTransport) Broadcast(target string, requests []*records.Request, timetable []*records.TimetableEntry) error {
	return n.session(target, Broadcast, func(sc *sessionConn) error {
		if err := sc.writeRequests(requests); err != nil {
			return err
		}
		return sc.writeTimetable(timetable)
	})
}

// Confirmation implements the Transport interface.
func (n *NetworkTransport) Confirmation(target string, requests []*records.Request) error {
	return n.session(target, Confirmation, func(sc *sessionConn) error {
		return sc.writeRequests(requests)
	})
}

// TakeOff implements the Transport interface.
func (n *NetworkTransport) TakeOff(target string) error {
	return n.session(target, TakeOff, nil)
}

// session drives one outbound exchange: command, payload, goodbye.
func (n *NetworkTransport) session(target string, cmd Command, payload func(*sessionConn) error) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	conn, err := n.stream.Dial(target, n.opts.DialTimeout)
	if err != nil {
		return &ConnectionError{Target: target, Err: err}
	}

	sc := newSessionConn(target, conn, n.opts.MaxBatch)
	defer sc.Release()

	// Set a deadline
	if n.opts.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(n.opts.Timeout))
	}

	fail := func(stage string, err error) error {
		return &ProtocolError{Target: target, Stage: stage, Err: err}
	}

	if err := sc.writeToken(cmd.String()); err != nil {
		return fail("command", err)
	}

	if !cmd.IsPull() && payload != nil {
		if err := payload(sc); err != nil {
			return fail("payload", err)
		}
	}

	if err := sc.flush(); err != nil {
		return fail("command", err)
	}

	if cmd.IsPull() && payload != nil {
		if err := payload(sc); err != nil {
			return fail("payload", err)
		}
	}

	if err := sc.writeToken(GoodbyeToken); err != nil {
		return fail("goodbye", err)
	}
	if err := sc.flush(); err != nil {
		return fail("goodbye", err)
	}

	if err := sc.expect(GoodbyeToken); err != nil {
		return fail("goodbye", err)
	}

	n.logger.WithFields(logrus.Fields{
		"target":  target,
		"command": cmd,
	}).Debug("Session complete")

	return nil
}

/*******************************************************************************
Server
*******************************************************************************/

// Listen opens the stream and handles incoming connections. It returns when
// the transport is closed.
func (n *NetworkTransport) Listen() {
	for {
		// Accept incoming connections
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithField("error", err).Error("Failed to accept connection")
			continue
		}
		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("accepted connection")

		if n.opts.Serial {
			n.handleConn(conn)
			continue
		}

		// Handle the connection in dedicated routine
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.handleConn(conn)
		}()
	}
}

// handleConn serves the single session carried by an inbound connection.
func (n *NetworkTransport) handleConn(conn net.Conn) {
	defer conn.Close()

	from := ""
	if conn.RemoteAddr() != nil {
		from = conn.RemoteAddr().String()
	}

	if n.opts.ServerTimeout > 0 {
		conn.SetDeadline(time.Now().Add(n.opts.ServerTimeout))
	}

	sc := newSessionConn(from, conn, n.opts.MaxBatch)

	if err := n.handleSession(sc); err != nil {
		switch {
		case errors.Is(err, ErrTransportShutdown):
			n.logger.WithField("error", err).Warn("Session aborted")
		case errors.Is(err, io.EOF):
			n.logger.WithField("from", from).Debug("Connection closed by peer")
		default:
			n.logger.WithFields(logrus.Fields{
				"from":  from,
				"error": err,
			}).Error("Session failed")
		}
	}
}

// handleSession reads the command and its payload, dispatches it to the
// consumer, writes the response payload and runs the goodbye handshake.
func (n *NetworkTransport) handleSession(sc *sessionConn) error {
	token, err := sc.readToken()
	if err != nil {
		return err
	}

	cmd, err := ParseCommand(token)
	if err != nil {
		// Nothing to dispatch. If the peer sent a payload, the handshake
		// below reads it instead of goodbye and the session is dropped.
		n.logger.WithFields(logrus.Fields{
			"from":  sc.target,
			"token": token,
		}).Warn("Unknown command")
		return n.finish(sc)
	}

	command, err := n.readPayload(cmd, sc)
	if err != nil {
		return &ProtocolError{Target: sc.target, Stage: cmd.String(), Err: err}
	}

	// Create the RPC object
	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Command:  command,
		From:     sc.target,
		RespChan: respCh,
	}

	// Dispatch the RPC
	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	// Wait for response
	var resp RPCResponse
	select {
	case resp = <-respCh:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	if resp.Error != nil {
		// No goodbye: the client sees the session fail.
		return fmt.Errorf("%s: %w", cmd, resp.Error)
	}

	if err := n.writeResponse(cmd, resp.Response, sc); err != nil {
		return &ProtocolError{Target: sc.target, Stage: cmd.String(), Err: err}
	}

	return n.finish(sc)
}

func (n *NetworkTransport) readPayload(cmd Command, sc *sessionConn) (interface{}, error) {
	switch cmd {
	case GiveMeRequests:
		return &GiveMeRequestsCmd{}, nil
	case GiveMeTimetable:
		return &GiveMeTimetableCmd{}, nil
	case TakeMyRequests:
		requests, err := sc.readRequests()
		if err != nil {
			return nil, err
		}
		return &TakeMyRequestsCmd{Requests: requests}, nil
	case TakeMyTimetable:
		timetable, err := sc.readTimetable()
		if err != nil {
			return nil, err
		}
		return &TakeMyTimetableCmd{Timetable: timetable}, nil
	case TakeMyRequest:
		request, err := sc.readSingleRequest()
		if err != nil {
			return nil, err
		}
		return &TakeMyRequestCmd{Request: request}, nil
	case Broadcast:
		requests, err := sc.readRequests()
		if err != nil {
			return nil, err
		}
		timetable, err := sc.readTimetable()
		if err != nil {
			return nil, err
		}
		return &BroadcastCmd{Requests: requests, Timetable: timetable}, nil
	case TakeOff:
		return &TakeOffCmd{}, nil
	case Confirmation:
		requests, err := sc.readRequests()
		if err != nil {
			return nil, err
		}
		return &ConfirmationCmd{Requests: requests}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, cmd)
	}
}

func (n *NetworkTransport) writeResponse(cmd Command, resp interface{}, sc *sessionConn) error {
	switch cmd {
	case GiveMeRequests:
		var requests []*records.Request
		if resp != nil {
			r, ok := resp.(*RequestsResponse)
			if !ok {
				return fmt.Errorf("%w: %T", ErrBadResponse, resp)
			}
			requests = r.Requests
		}
		if err := sc.writeRequests(requests); err != nil {
			return err
		}
	case GiveMeTimetable:
		var timetable []*records.TimetableEntry
		if resp != nil {
			r, ok := resp.(*TimetableResponse)
			if !ok {
				return fmt.Errorf("%w: %T", ErrBadResponse, resp)
			}
			timetable = r.Timetable
		}
		if err := sc.writeTimetable(timetable); err != nil {
			return err
		}
	default:
		return nil
	}
	return sc.flush()
}

// finish expects the client's goodbye and answers it.
func (n *NetworkTransport) finish(sc *sessionConn) error {
	if err := sc.expect(GoodbyeToken); err != nil {
		return err
	}
	if err := sc.writeToken(GoodbyeToken); err != nil {
		return err
	}
	return sc.flush()
}
