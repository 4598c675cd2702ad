// Package helisync assembles a complete node from a Config: store, transport,
// peer directory, node and HTTP service.
package helisync

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/campnet/helisync/src/config"
	"github.com/campnet/helisync/src/metrics"
	hnet "github.com/campnet/helisync/src/net"
	"github.com/campnet/helisync/src/node"
	"github.com/campnet/helisync/src/peers"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/service"
	"github.com/campnet/helisync/src/store"
	"github.com/sirupsen/logrus"
)

// Helisync is a helisync node with everything it runs on.
type Helisync struct {
	Config    *config.Config
	Role      records.Role
	Node      *node.Node
	Transport *hnet.NetworkTransport
	Store     store.Store
	Directory peers.Directory
	Metrics   *metrics.Metrics
	Service   *service.Service

	logger *logrus.Entry
}

// NewHelisync creates an uninitialised engine. Call Init before Run.
func NewHelisync(c *config.Config) *Helisync {
	engine := &Helisync{
		Config:  c,
		Metrics: metrics.NewMetrics(),
		logger:  c.Logger(),
	}

	return engine
}

func (h *Helisync) initStore() error {
	policy, err := h.Config.Policy()
	if err != nil {
		return err
	}

	if !h.Config.Store {
		h.Store = store.NewInmemStore(policy)

		h.logger.Debug("created new in-mem store")

		return nil
	}

	h.logger.WithField("path", h.Config.DatabaseDir).Debug("Attempting to load or create database")

	bs, err := store.NewBadgerStore(h.Config.DatabaseDir, policy, h.logger.WithField("prefix", "badger"))
	if err != nil {
		return err
	}
	h.Store = bs

	h.logger.WithFields(logrus.Fields{
		"node_id": bs.NodeID(),
		"path":    bs.StorePath(),
	}).Debug("loaded badger store")

	return nil
}

func (h *Helisync) initTransport() error {
	stream, err := hnet.NewTCPStreamLayer(
		h.Config.BindAddr,
		h.Config.AdvertiseAddr,
		h.Config.PortRange(),
	)
	if err != nil {
		return err
	}

	h.Transport = hnet.NewNetworkTransport(
		stream,
		h.Config.TransportOptions(),
		h.logger.WithField("prefix", "net"),
	)

	return nil
}

func (h *Helisync) initDirectory() error {
	host, portStr, err := net.SplitHostPort(h.Transport.AdvertiseAddr())
	if err != nil {
		return err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}

	switch h.Config.Directory {
	case config.MDNSDirectory:
		var ips []net.IP
		if ip := net.ParseIP(host); ip != nil && !ip.IsUnspecified() {
			ips = []net.IP{ip}
		}
		h.Directory = peers.NewMDNSDirectory(
			h.Role,
			h.Config.MDNSDomain,
			ips,
			0,
			h.Config.PeerCacheTTL,
			h.logger.WithField("prefix", "mdns"),
		)
	default:
		h.Directory = peers.NewJSONDirectory(h.Config.PeersPath(), h.Role, host)
	}

	if h.Config.Moniker == "" {
		h.Config.Moniker = fmt.Sprintf("%s-%d", h.Role, port)
	}

	if err := h.Directory.Advertise(h.Config.Moniker, port); err != nil {
		return fmt.Errorf("advertising %s: %w", h.Config.Moniker, err)
	}

	h.logger.WithFields(logrus.Fields{
		"directory": h.Config.Directory,
		"moniker":   h.Config.Moniker,
		"addr":      h.Transport.AdvertiseAddr(),
	}).Debug("Advertised node")

	return nil
}

func (h *Helisync) initNode() error {
	conf := node.NewConfig(
		h.Role,
		h.Config.Moniker,
		h.Config.FlightDuration,
		h.Config.BaseLogger(),
	)

	h.Node = node.NewNode(conf, h.Store, h.Transport, h.Directory, h.Metrics)

	return nil
}

func (h *Helisync) initService() error {
	if !h.Config.NoService && h.Config.ServiceAddr != "" {
		h.Service = service.NewService(h.Config.ServiceAddr, h.Node, h.logger.WithField("prefix", "service"))
	}
	return nil
}

// Init builds every component. On failure, the components already built are
// released.
func (h *Helisync) Init() (err error) {
	if err := h.Config.Validate(); err != nil {
		return err
	}

	h.Role, err = h.Config.NodeRole()
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			h.release()
		}
	}()

	if err := h.initStore(); err != nil {
		return err
	}

	if err := h.initTransport(); err != nil {
		return err
	}

	if err := h.initDirectory(); err != nil {
		return err
	}

	if err := h.initNode(); err != nil {
		return err
	}

	if err := h.initService(); err != nil {
		return err
	}

	return nil
}

func (h *Helisync) release() {
	if h.Directory != nil {
		h.Directory.Close()
	}
	if h.Transport != nil {
		h.Transport.Close()
	}
	if h.Store != nil {
		h.Store.Close()
	}
}

// Run starts the HTTP service, if any, and runs the node until Shutdown.
func (h *Helisync) Run() {
	if h.Service != nil {
		go h.Service.Serve()
	}

	h.Node.Run()
}

// RunAsync calls Run in a separate goroutine.
func (h *Helisync) RunAsync() {
	go h.Run()
}

// Shutdown stops the node, the service and withdraws the advertisement.
func (h *Helisync) Shutdown() {
	if h.Service != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Service.Shutdown(ctx); err != nil {
			h.logger.WithError(err).Warn("Failed to stop service")
		}
	}

	h.Node.Shutdown()

	if err := h.Directory.Close(); err != nil {
		h.logger.WithError(err).Warn("Failed to close directory")
	}
}
