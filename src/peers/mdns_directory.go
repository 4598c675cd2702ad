package peers

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/campnet/helisync/src/records"
	"github.com/hashicorp/mdns"
	"github.com/miekg/dns"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultMDNSDomain is the multicast DNS domain.
	DefaultMDNSDomain = "local"

	defaultQueryTimeout = time.Second
)

// MDNSDirectory is a Directory that advertises the local node as a DNS-SD
// service of its role and browses the services of other roles with multicast
// DNS. Resolved peers are cached for a configurable time since every browse
// blocks for the whole query timeout.
type MDNSDirectory struct {
	sync.Mutex

	role    records.Role
	domain  string
	ips     []net.IP
	timeout time.Duration

	server *mdns.Server
	cache  *cache.Cache

	logger *logrus.Entry
}

// NewMDNSDirectory creates an MDNSDirectory for a node playing role. The ips
// are the addresses put in the advertisement; when empty the addresses of the
// host name are used. A cacheTTL of zero disables the cache.
func NewMDNSDirectory(
	role records.Role,
	domain string,
	ips []net.IP,
	queryTimeout time.Duration,
	cacheTTL time.Duration,
	logger *logrus.Entry,
) *MDNSDirectory {

	if domain == "" {
		domain = DefaultMDNSDomain
	}

	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	d := &MDNSDirectory{
		role:    role,
		domain:  strings.TrimSuffix(domain, "."),
		ips:     ips,
		timeout: queryTimeout,
		logger:  logger,
	}

	if cacheTTL > 0 {
		d.cache = cache.New(cacheTTL, 2*cacheTTL)
	}

	return d
}

// Advertise implements the Directory interface. A second call replaces the
// previous advertisement.
func (d *MDNSDirectory) Advertise(serviceName string, port int) error {
	d.Lock()
	defer d.Unlock()

	service, err := mdns.NewMDNSService(
		serviceName,
		d.role.ServiceType(),
		d.domain+".",
		"",
		port,
		d.ips,
		[]string{"role=" + d.role.String()},
	)
	if err != nil {
		return err
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return err
	}

	if d.server != nil {
		d.server.Shutdown()
	}
	d.server = server

	d.logger.WithFields(logrus.Fields{
		"instance": serviceName,
		"service":  d.role.ServiceType(),
		"port":     port,
	}).Debug("Advertised mDNS service")

	return nil
}

// ResolvePeers implements the Directory interface.
func (d *MDNSDirectory) ResolvePeers(serviceType string) ([]*Peer, error) {
	service, role, err := normalizeServiceType(serviceType, d.domain)
	if err != nil {
		return nil, err
	}

	key := dns.Fqdn(service + "." + d.domain)
	if d.cache != nil {
		if cached, ok := d.cache.Get(key); ok {
			return cached.([]*Peer), nil
		}
	}

	entriesCh := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []*Peer)

	go func() {
		found := []*Peer{}
		seen := make(map[string]bool)
		for entry := range entriesCh {
			p := peerFromEntry(entry, service, d.domain, role)
			if p == nil || seen[p.NetAddr] {
				continue
			}
			seen[p.NetAddr] = true
			found = append(found, p)
		}
		done <- found
	}()

	params := mdns.DefaultParams(service)
	params.Domain = d.domain
	params.Timeout = d.timeout
	params.Entries = entriesCh
	params.DisableIPv6 = true

	err = mdns.Query(params)
	close(entriesCh)
	found := <-done

	if err != nil {
		return nil, err
	}

	d.logger.WithFields(logrus.Fields{
		"service": service,
		"peers":   len(found),
	}).Debug("Resolved mDNS peers")

	if d.cache != nil {
		d.cache.Set(key, found, cache.DefaultExpiration)
	}

	return found, nil
}

// Close implements the Directory interface.
func (d *MDNSDirectory) Close() error {
	d.Lock()
	defer d.Unlock()

	if d.cache != nil {
		d.cache.Flush()
	}

	if d.server != nil {
		err := d.server.Shutdown()
		d.server = nil
		return err
	}
	return nil
}

// normalizeServiceType turns "camp", "_camp._tcp" or "_camp._tcp.local." into
// "_camp._tcp".
func normalizeServiceType(serviceType, domain string) (string, records.Role, error) {
	role, err := records.ParseRole(serviceType)
	if err != nil {
		return "", 0, err
	}

	if !strings.HasPrefix(serviceType, "_") {
		return role.ServiceType(), role, nil
	}

	fqdn := dns.Fqdn(serviceType)
	suffix := "." + dns.Fqdn(domain)
	service := strings.TrimSuffix(strings.TrimSuffix(fqdn, suffix), ".")

	labels := dns.SplitDomainName(service)
	if len(labels) != 2 || labels[1] != "_tcp" {
		return "", 0, fmt.Errorf("bad service type %q", serviceType)
	}

	return service, role, nil
}

// peerFromEntry converts a browse result into a Peer. Entries without an IPv4
// address are dropped.
func peerFromEntry(entry *mdns.ServiceEntry, service, domain string, role records.Role) *Peer {
	if entry == nil || entry.AddrV4 == nil || entry.Port == 0 {
		return nil
	}

	moniker := strings.TrimSuffix(entry.Name, "."+dns.Fqdn(service+"."+domain))
	moniker = strings.ReplaceAll(moniker, `\ `, " ")

	addr := net.JoinHostPort(entry.AddrV4.String(), strconv.Itoa(entry.Port))
	return NewPeer(moniker, addr, role)
}
