// Package net implements the session protocol that helisync nodes use to
// exchange requests and timetable entries.
//
// Every exchange opens a fresh connection and carries exactly one command:
//
//	client                                server
//	command token       ------------->
//	payload (push)      ------------->    reconcile
//	                    <-------------    payload (pull)
//	"goodbye"           ------------->
//	                    <-------------    "goodbye"
//
// Batches are a count followed by that many records. Every value on the wire,
// tokens and counts included, is a MessagePack object, so the same codec serves
// both ends of a session.
//
// The NetworkTransport decodes the command and its whole payload before handing
// a typed command (TakeMyRequestsCmd, GiveMeTimetableCmd, ...) to the node
// through the Consumer channel. When the node responds with an error, the
// server closes the connection without saying goodbye and the client observes a
// ProtocolError. Failing to reach a peer at all is a ConnectionError.
//
// Two stream layers are provided: TCPStreamLayer for real networks and
// InmemStreamLayer, built on net.Pipe, for tests.
package net
