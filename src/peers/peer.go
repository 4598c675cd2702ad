package peers

import (
	"fmt"
	"net"

	"github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/records"
)

// Peer is a node that can be reached on the network.
type Peer struct {
	ID      uint32 `json:"-"`
	NetAddr string
	Moniker string
	Role    records.Role
}

// NewPeer returns a Peer with its ID computed from its address.
func NewPeer(moniker, netAddr string, role records.Role) *Peer {
	peer := &Peer{
		NetAddr: netAddr,
		Moniker: moniker,
		Role:    role,
	}

	peer.computeID()

	return peer
}

func (p *Peer) computeID() {
	p.ID = common.Hash32([]byte(p.NetAddr))
}

// Host returns the host part of the peer address.
func (p *Peer) Host() string {
	host, _, err := net.SplitHostPort(p.NetAddr)
	if err != nil {
		return p.NetAddr
	}
	return host
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s <-> %s (%s)", p.Moniker, p.NetAddr, p.Role)
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, peer string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.NetAddr != peer {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}

// FilterRole returns the peers that play the given role.
func FilterRole(peers []*Peer, role records.Role) []*Peer {
	res := make([]*Peer, 0, len(peers))
	for _, p := range peers {
		if p.Role == role {
			res = append(res, p)
		}
	}
	return res
}
