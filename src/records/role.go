package records

import (
	"fmt"
	"strings"
)

// Role is the part a node plays in the network.
type Role uint8

const (
	// Camp kiosks take bookings at the camp.
	Camp Role = iota
	// Town kiosks take bookings in town and receive confirmations.
	Town
	// AirCompany servers confirm and check requests.
	AirCompany
	// Helicopter units carry the records between camp and town.
	Helicopter
)

// Roles lists every role.
var Roles = []Role{Camp, Town, AirCompany, Helicopter}

var roleNames = map[Role]string{
	Camp:       "camp",
	Town:       "town",
	AirCompany: "aircompany",
	Helicopter: "helicopter",
}

func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("Role(%d)", uint8(r))
}

// ServiceType is the DNS-SD service type under which nodes of this role
// advertise themselves, without the domain.
func (r Role) ServiceType() string {
	return "_" + r.String() + "._tcp"
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if _, ok := roleNames[r]; !ok {
		return nil, fmt.Errorf("unknown role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	role, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = role
	return nil
}

// ParseRole accepts a role name, case-insensitively, or a service type such as
// "_camp._tcp".
func ParseRole(s string) (Role, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	name = strings.TrimPrefix(name, "_")
	if i := strings.Index(name, "._"); i >= 0 {
		name = name[:i]
	}
	for r, n := range roleNames {
		if n == name {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}
