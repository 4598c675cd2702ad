package peers

import (
	"sync"

	"github.com/campnet/helisync/src/records"
)

// Directory publishes the local node and resolves the peers of a role.
type Directory interface {
	// Advertise publishes the local node under serviceName, reachable on port.
	Advertise(serviceName string, port int) error

	// ResolvePeers returns the peers advertised under a service type such as
	// "_camp._tcp". A role name is accepted too.
	ResolvePeers(serviceType string) ([]*Peer, error)

	// Close withdraws the local advertisement, if any, and releases
	// resources.
	Close() error
}

// StaticDirectory is a Directory over a fixed list of peers.
type StaticDirectory struct {
	l     sync.Mutex
	peers []*Peer
}

// NewStaticDirectory creates a StaticDirectory.
func NewStaticDirectory(peers []*Peer) *StaticDirectory {
	return &StaticDirectory{peers: peers}
}

// Advertise implements the Directory interface. Nothing is published.
func (s *StaticDirectory) Advertise(serviceName string, port int) error {
	return nil
}

// ResolvePeers implements the Directory interface.
func (s *StaticDirectory) ResolvePeers(serviceType string) ([]*Peer, error) {
	role, err := records.ParseRole(serviceType)
	if err != nil {
		return nil, err
	}

	s.l.Lock()
	defer s.l.Unlock()
	return FilterRole(s.peers, role), nil
}

// SetPeers replaces the list of peers.
func (s *StaticDirectory) SetPeers(peers []*Peer) {
	s.l.Lock()
	s.peers = peers
	s.l.Unlock()
}

// Close implements the Directory interface.
func (s *StaticDirectory) Close() error {
	return nil
}
