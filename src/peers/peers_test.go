package peers

import (
	"net"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/campnet/helisync/src/records"
	"github.com/hashicorp/mdns"
)

func TestJSONDirectory(t *testing.T) {
	dir := t.TempDir()

	store := NewJSONDirectory(dir, records.Camp, "127.0.0.1")

	// Try a read, should get nothing
	peers, err := store.Peers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("peers: %v", peers)
	}

	newPeers := []*Peer{
		NewPeer("town", "10.0.0.2:2000", records.Town),
		NewPeer("company", "10.0.0.3:3000", records.AirCompany),
		NewPeer("chopper", "10.0.0.4:4000", records.Helicopter),
	}
	if err := store.Write(newPeers); err != nil {
		t.Fatalf("err: %v", err)
	}

	peers, err = store.Peers()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !reflect.DeepEqual(peers, newPeers) {
		t.Fatalf("peers should be %v, not %v", newPeers, peers)
	}

	resolved, err := store.ResolvePeers("_aircompany._tcp")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(resolved) != 1 || resolved[0].NetAddr != "10.0.0.3:3000" {
		t.Fatalf("bad resolution: %v", resolved)
	}

	if _, err := store.ResolvePeers("_submarine._tcp"); err == nil {
		t.Fatal("unknown service type should fail")
	}
}

func TestJSONDirectoryAdvertise(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.json")

	camp := NewJSONDirectory(path, records.Camp, "127.0.0.1")
	town := NewJSONDirectory(path, records.Town, "127.0.0.1")

	if err := camp.Advertise("camp-1", 1500); err != nil {
		t.Fatal(err)
	}
	if err := town.Advertise("town-1", 1600); err != nil {
		t.Fatal(err)
	}
	// a restart on another port replaces the entry
	if err := camp.Advertise("camp-1", 1501); err != nil {
		t.Fatal(err)
	}

	camps, err := town.ResolvePeers("camp")
	if err != nil {
		t.Fatal(err)
	}
	if len(camps) != 1 || camps[0].NetAddr != "127.0.0.1:1501" || camps[0].Moniker != "camp-1" {
		t.Fatalf("bad camps: %v", camps)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("file should not be empty")
	}
}

func TestJSONDirectoryCloseWithdraws(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.json")

	camp := NewJSONDirectory(path, records.Camp, "127.0.0.1")
	town := NewJSONDirectory(path, records.Town, "127.0.0.1")

	if err := camp.Advertise("camp-1", 1500); err != nil {
		t.Fatal(err)
	}
	if err := town.Advertise("town-1", 1600); err != nil {
		t.Fatal(err)
	}

	if err := camp.Close(); err != nil {
		t.Fatal(err)
	}

	all, err := town.Peers()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0].Moniker != "town-1" {
		t.Fatalf("only the town should be left: %v", all)
	}

	// a second Close, or one without Advertise, leaves the file alone
	if err := camp.Close(); err != nil {
		t.Fatal(err)
	}
	reader := NewJSONDirectory(path, records.Camp, "")
	if err := reader.Close(); err != nil {
		t.Fatal(err)
	}
	if all, _ := reader.Peers(); len(all) != 1 {
		t.Fatalf("file should still hold the town: %v", all)
	}
}

func TestStaticDirectory(t *testing.T) {
	d := NewStaticDirectory([]*Peer{
		NewPeer("a", "a:1", records.Camp),
		NewPeer("b", "b:1", records.Town),
		NewPeer("c", "c:1", records.Camp),
	})

	camps, err := d.ResolvePeers(records.Camp.ServiceType())
	if err != nil {
		t.Fatal(err)
	}
	if len(camps) != 2 {
		t.Fatalf("expected 2 camps, got %v", camps)
	}

	index, others := ExcludePeer(camps, "c:1")
	if index != 1 || len(others) != 1 || others[0].Moniker != "a" {
		t.Fatalf("bad exclusion: %d %v", index, others)
	}
}

func TestPeerHost(t *testing.T) {
	p := NewPeer("x", "192.168.1.10:5000", records.Camp)
	if p.Host() != "192.168.1.10" {
		t.Fatalf("bad host %s", p.Host())
	}
	if p.ID == 0 {
		t.Fatal("id should be computed")
	}
}

func TestNormalizeServiceType(t *testing.T) {
	cases := map[string]string{
		"camp":                    "_camp._tcp",
		"_town._tcp":              "_town._tcp",
		"_aircompany._tcp.local.": "_aircompany._tcp",
		"_helicopter._tcp.local":  "_helicopter._tcp",
	}
	for in, want := range cases {
		got, _, err := normalizeServiceType(in, "local")
		if err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}

	if _, _, err := normalizeServiceType("_camp._udp", "local"); err == nil {
		t.Fatal("udp services should be rejected")
	}
}

func TestPeerFromEntry(t *testing.T) {
	entry := &mdns.ServiceEntry{
		Name:   `north\ camp._camp._tcp.local.`,
		AddrV4: net.ParseIP("192.168.1.20"),
		Port:   4242,
	}

	p := peerFromEntry(entry, "_camp._tcp", "local", records.Camp)
	if p == nil {
		t.Fatal("peer should not be nil")
	}
	if p.Moniker != "north camp" || p.NetAddr != "192.168.1.20:4242" || p.Role != records.Camp {
		t.Fatalf("bad peer %v", p)
	}

	if peerFromEntry(&mdns.ServiceEntry{Name: "x", Port: 1}, "_camp._tcp", "local", records.Camp) != nil {
		t.Fatal("entries without IPv4 address should be dropped")
	}
}
