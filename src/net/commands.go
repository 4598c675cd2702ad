package net

import (
	"fmt"

	"github.com/campnet/helisync/src/records"
)

// Command is one of the commands a session can carry.
type Command uint8

const (
	// GiveMeRequests pulls every request of the server.
	GiveMeRequests Command = iota + 1
	// GiveMeTimetable pulls the timetable of the server.
	GiveMeTimetable
	// TakeMyRequests pushes a batch of requests.
	TakeMyRequests
	// TakeMyTimetable pushes a batch of timetable entries.
	TakeMyTimetable
	// TakeMyRequest pushes a single request.
	TakeMyRequest
	// Broadcast pushes a batch of requests then a batch of timetable entries.
	Broadcast
	// TakeOff tells a helicopter to take off.
	TakeOff
	// Confirmation pushes confirmed requests to a town.
	Confirmation
)

// GoodbyeToken terminates every session.
const GoodbyeToken = "goodbye"

var commandTokens = map[Command]string{
	GiveMeRequests:  "giveMeRequests",
	GiveMeTimetable: "giveMeTimetable",
	TakeMyRequests:  "takeMyRequests",
	TakeMyTimetable: "takeMyTimetable",
	TakeMyRequest:   "takeMyRequest",
	Broadcast:       "broadcast",
	TakeOff:         "takeOff",
	Confirmation:    "confirmation",
}

var tokenCommands = func() map[string]Command {
	m := make(map[string]Command, len(commandTokens))
	for c, t := range commandTokens {
		m[t] = c
	}
	return m
}()

// Commands lists every command.
var Commands = []Command{
	GiveMeRequests,
	GiveMeTimetable,
	TakeMyRequests,
	TakeMyTimetable,
	TakeMyRequest,
	Broadcast,
	TakeOff,
	Confirmation,
}

// String returns the wire token of the command.
func (c Command) String() string {
	if t, ok := commandTokens[c]; ok {
		return t
	}
	return fmt.Sprintf("Command(%d)", uint8(c))
}

// IsPull reports whether the server answers the command with a payload.
func (c Command) IsPull() bool {
	return c == GiveMeRequests || c == GiveMeTimetable
}

// ParseCommand decodes a wire token.
func ParseCommand(token string) (Command, error) {
	c, ok := tokenCommands[token]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCommand, token)
	}
	return c, nil
}

// GiveMeRequestsCmd asks for every request. The response is a
// *RequestsResponse.
type GiveMeRequestsCmd struct{}

// GiveMeTimetableCmd asks for the timetable. The response is a
// *TimetableResponse.
type GiveMeTimetableCmd struct{}

// TakeMyRequestsCmd carries a batch of requests to reconcile.
type TakeMyRequestsCmd struct {
	Requests []*records.Request
}

// TakeMyTimetableCmd carries a batch of timetable entries to reconcile.
type TakeMyTimetableCmd struct {
	Timetable []*records.TimetableEntry
}

// TakeMyRequestCmd carries a single request to reconcile.
type TakeMyRequestCmd struct {
	Request *records.Request
}

// BroadcastCmd carries both tables. Requests are reconciled before the
// timetable.
type BroadcastCmd struct {
	Requests  []*records.Request
	Timetable []*records.TimetableEntry
}

// TakeOffCmd has no payload.
type TakeOffCmd struct{}

// ConfirmationCmd carries requests confirmed by an air company. They are
// delivered to a notification hook, not written to the store.
type ConfirmationCmd struct {
	Requests []*records.Request
}

// RequestsResponse answers GiveMeRequestsCmd.
type RequestsResponse struct {
	Requests []*records.Request
}

// TimetableResponse answers GiveMeTimetableCmd.
type TimetableResponse struct {
	Timetable []*records.TimetableEntry
}
