package records

import (
	"strconv"
)

// Ticket identifies a Request. The high 32 bits carry the id of the node that
// created the request and the low 32 bits a counter persisted by that node, so
// tickets do not collide across nodes or restarts.
type Ticket uint64

// NewTicket composes a Ticket from a node id and a sequence number.
func NewTicket(nodeID uint32, seq uint32) Ticket {
	return Ticket(uint64(nodeID)<<32 | uint64(seq))
}

// NodeID returns the id of the node that issued the ticket.
func (t Ticket) NodeID() uint32 {
	return uint32(t >> 32)
}

// Seq returns the per-node sequence number of the ticket.
func (t Ticket) Seq() uint32 {
	return uint32(t)
}

func (t Ticket) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// ParseTicket parses the decimal form returned by String.
func ParseTicket(s string) (Ticket, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Ticket(v), nil
}
