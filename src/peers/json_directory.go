package peers

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/campnet/helisync/src/records"
)

const (
	jsonPeerPath = "peers.json"
)

// JSONDirectory is a Directory backed by a JSON file. This allows human
// operators to manipulate the file, and nodes that share the file to find each
// other.
type JSONDirectory struct {
	l    sync.Mutex
	path string
	role records.Role
	host string

	// self is the entry written by the last Advertise.
	self *Peer
}

// NewJSONDirectory creates a JSONDirectory reading base/peers.json, or base
// itself if it names a .json file. Advertise records the local node, playing
// role, at host.
func NewJSONDirectory(base string, role records.Role, host string) *JSONDirectory {
	path := base
	if filepath.Ext(base) != ".json" {
		path = filepath.Join(base, jsonPeerPath)
	}
	return &JSONDirectory{
		path: path,
		role: role,
		host: host,
	}
}

// Path returns the location of the JSON file.
func (j *JSONDirectory) Path() string {
	return j.path
}

// Peers parses the underlying JSON file. A missing or empty file holds no
// peers.
func (j *JSONDirectory) Peers() ([]*Peer, error) {
	j.l.Lock()
	defer j.l.Unlock()

	return j.read()
}

func (j *JSONDirectory) read() ([]*Peer, error) {
	// Read the file
	buf, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return []*Peer{}, nil
	}
	if err != nil {
		return nil, err
	}

	// Check for no peers
	if len(bytes.TrimSpace(buf)) == 0 {
		return []*Peer{}, nil
	}

	// Decode the peers
	var peers []*Peer
	dec := json.NewDecoder(bytes.NewReader(buf))
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	for _, p := range peers {
		p.computeID()
	}

	return peers, nil
}

// Write persists a list of peers to the JSON file.
func (j *JSONDirectory) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	return j.write(peers)
}

func (j *JSONDirectory) write(peers []*Peer) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "\t")
	if err := enc.Encode(peers); err != nil {
		return err
	}

	// Write out as JSON
	return os.WriteFile(j.path, buf.Bytes(), 0644)
}

// Advertise implements the Directory interface. The local node is added to
// the file, replacing any previous entry with the same moniker or address.
func (j *JSONDirectory) Advertise(serviceName string, port int) error {
	j.l.Lock()
	defer j.l.Unlock()

	peers, err := j.read()
	if err != nil {
		return err
	}

	self := NewPeer(serviceName, net.JoinHostPort(j.host, strconv.Itoa(port)), j.role)

	res := make([]*Peer, 0, len(peers)+1)
	for _, p := range peers {
		if p.Moniker == self.Moniker || p.NetAddr == self.NetAddr {
			continue
		}
		res = append(res, p)
	}
	res = append(res, self)

	if err := j.write(res); err != nil {
		return err
	}
	j.self = self
	return nil
}

// ResolvePeers implements the Directory interface.
func (j *JSONDirectory) ResolvePeers(serviceType string) ([]*Peer, error) {
	role, err := records.ParseRole(serviceType)
	if err != nil {
		return nil, err
	}

	peers, err := j.Peers()
	if err != nil {
		return nil, err
	}
	return FilterRole(peers, role), nil
}

// Close implements the Directory interface. The entry written by Advertise
// is removed from the file; entries of other nodes are kept.
func (j *JSONDirectory) Close() error {
	j.l.Lock()
	defer j.l.Unlock()

	if j.self == nil {
		return nil
	}

	peers, err := j.read()
	if err != nil {
		return err
	}

	_, others := ExcludePeer(peers, j.self.NetAddr)
	j.self = nil

	if len(others) == len(peers) {
		return nil
	}
	return j.write(others)
}
