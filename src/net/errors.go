package net

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")

	// ErrUnknownCommand is returned by ParseCommand.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnexpectedToken is wrapped when a token other than the expected one
	// is read.
	ErrUnexpectedToken = errors.New("unexpected token")

	// ErrBadCount is wrapped when a batch count is out of range.
	ErrBadCount = errors.New("bad count")

	// ErrBadResponse is returned when a handler answers a pull command with
	// the wrong response type.
	ErrBadResponse = errors.New("bad response")
)

// ConnectionError means the peer could not be reached.
type ConnectionError struct {
	Target string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s: %v", e.Target, e.Err)
}

// Unwrap returns the dial error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError means a session was aborted after the connection was made.
// Stage names the step that failed.
type ProtocolError struct {
	Target string
	Stage  string
	Err    error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("session with %s failed at %s: %v", e.Target, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err, or an error it wraps, is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// ErrorKind classifies the outcome of a session for metrics and logs: "ok",
// "connection", "protocol" or "error".
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsConnectionError(err):
		return "connection"
	case IsProtocolError(err):
		return "protocol"
	default:
		return "error"
	}
}

// IsProtocolError reports whether err, or an error it wraps, is a
// ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
