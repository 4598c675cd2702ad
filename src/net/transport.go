package net

import (
	"net"
	"time"

	"github.com/campnet/helisync/src/records"
)

// StreamLayer carries the sessions of a NetworkTransport. TCPStreamLayer
// serves the LAN and InmemStreamLayer serves tests.
type StreamLayer interface {
	net.Listener

	// Dial opens a connection to a peer's advertised address.
	Dial(address string, timeout time.Duration) (net.Conn, error)

	// AdvertiseAddr is the address peers dial to reach this layer.
	AdvertiseAddr() string
}

// Transport provides an interface for network transports to allow a node to
// communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// GiveMeRequests and GiveMeTimetable pull a table from the target node.
	GiveMeRequests(target string) ([]*records.Request, error)

	GiveMeTimetable(target string) ([]*records.TimetableEntry, error)

	// TakeMyRequests, TakeMyTimetable, TakeMyRequest, Broadcast and
	// Confirmation push records to the target node.

	TakeMyRequests(target string, requests []*records.Request) error

	TakeMyTimetable(target string, timetable []*records.TimetableEntry) error

	TakeMyRequest(target string, request *records.Request) error

	Broadcast(target string, requests []*records.Request, timetable []*records.TimetableEntry) error

	Confirmation(target string, requests []*records.Request) error

	// TakeOff signals the target helicopter to take off.
	TakeOff(target string) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
