package flight

import (
	"errors"
	"sync/atomic"
)

// State captures the state of a helicopter: Grounded or InFlight.
type State uint32

const (
	// Grounded is the initial state of a helicopter.
	Grounded State = iota
	// InFlight lasts from take-off until the landing timer fires.
	InFlight
)

// ErrInvalidTransition is returned when a helicopter is told to take off while
// it is already in flight.
var ErrInvalidTransition = errors.New("invalid flight transition")

// String ...
func (s State) String() string {
	switch s {
	case Grounded:
		return "Grounded"
	case InFlight:
		return "InFlight"
	default:
		return "Unknown"
	}
}

// MarshalText renders the state in JSON documents.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type state struct {
	state State
}

func (s *state) getState() State {
	stateAddr := (*uint32)(&s.state)
	return State(atomic.LoadUint32(stateAddr))
}

func (s *state) setState(st State) {
	stateAddr := (*uint32)(&s.state)
	atomic.StoreUint32(stateAddr, uint32(st))
}

// transition moves from one state to another only if the current state is
// from.
func (s *state) transition(from, to State) bool {
	stateAddr := (*uint32)(&s.state)
	return atomic.CompareAndSwapUint32(stateAddr, uint32(from), uint32(to))
}
