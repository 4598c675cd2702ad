package node

import (
	"errors"

	"github.com/campnet/helisync/src/net"
	"github.com/campnet/helisync/src/records"
)

var (
	// ErrNotAccepted is returned to the transport when a command is not
	// accepted by the role of the node. The session ends without goodbye.
	ErrNotAccepted = errors.New("command not accepted by this role")

	// ErrNotPermitted is returned by application calls the role of the node
	// cannot make.
	ErrNotPermitted = errors.New("operation not permitted for this role")
)

var acceptedCommands = map[records.Role][]net.Command{
	records.Camp: {
		net.GiveMeRequests,
		net.GiveMeTimetable,
		net.TakeMyRequests,
		net.TakeMyTimetable,
		net.Broadcast,
	},
	records.Town: {
		net.Confirmation,
	},
	records.AirCompany: {
		net.GiveMeRequests,
		net.GiveMeTimetable,
		net.TakeMyRequests,
		net.TakeMyRequest,
		net.Broadcast,
		net.TakeMyTimetable,
	},
	records.Helicopter: {
		net.GiveMeRequests,
		net.GiveMeTimetable,
		net.TakeMyRequests,
		net.TakeMyTimetable,
		net.TakeOff,
	},
}

// AcceptedCommands returns the commands a node of the given role serves.
func AcceptedCommands(role records.Role) []net.Command {
	return append([]net.Command(nil), acceptedCommands[role]...)
}

// Accepts reports whether a node of the given role serves cmd.
func Accepts(role records.Role, cmd net.Command) bool {
	for _, c := range acceptedCommands[role] {
		if c == cmd {
			return true
		}
	}
	return false
}

// commandOf maps an RPC payload to its command.
func commandOf(rpcCmd interface{}) (net.Command, bool) {
	switch rpcCmd.(type) {
	case *net.GiveMeRequestsCmd:
		return net.GiveMeRequests, true
	case *net.GiveMeTimetableCmd:
		return net.GiveMeTimetable, true
	case *net.TakeMyRequestsCmd:
		return net.TakeMyRequests, true
	case *net.TakeMyTimetableCmd:
		return net.TakeMyTimetable, true
	case *net.TakeMyRequestCmd:
		return net.TakeMyRequest, true
	case *net.BroadcastCmd:
		return net.Broadcast, true
	case *net.TakeOffCmd:
		return net.TakeOff, true
	case *net.ConfirmationCmd:
		return net.Confirmation, true
	default:
		return 0, false
	}
}

// canCreateRequests reports whether the role books and cancels seats.
func canCreateRequests(role records.Role) bool {
	return role == records.Camp || role == records.Town
}

// canCommandFlights reports whether the role may send takeOff.
func canCommandFlights(role records.Role) bool {
	return role == records.Camp || role == records.AirCompany
}
