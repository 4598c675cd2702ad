package net

import (
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	errNotAdvertisable = errors.New("local bind address is not advertisable")
	errNotTCP          = errors.New("local address is not a TCP address")
	errNoFreePort      = errors.New("no free port in range")
)

// PortRange bounds the random port picked when the bind address does not name
// one. Max is excluded.
type PortRange struct {
	Min int
	Max int
}

// DefaultPortRange is the range nodes pick their listening port from.
var DefaultPortRange = PortRange{Min: 1024, Max: 16384}

const portAttempts = 32

// TCPStreamLayer implements StreamLayer interface for plain TCP.
type TCPStreamLayer struct {
	advertise string
	listener  *net.TCPListener
}

// Dial implements the StreamLayer interface.
func (t *TCPStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", address, timeout)
}

// Accept implements the net.Listener interface.
func (t *TCPStreamLayer) Accept() (c net.Conn, err error) {
	return t.listener.Accept()
}

// Close implements the net.Listener interface.
func (t *TCPStreamLayer) Close() (err error) {
	return t.listener.Close()
}

// Addr implements the net.Listener interface.
func (t *TCPStreamLayer) Addr() net.Addr {
	return t.listener.Addr()
}

// AdvertiseAddr implements the SteamLayer interface.
func (t *TCPStreamLayer) AdvertiseAddr() string {
	// Use an advertise addr if provided
	if t.advertise != "" {
		return t.advertise
	}
	return t.listener.Addr().String()
}

// Port returns the port the layer listens on.
func (t *TCPStreamLayer) Port() int {
	return t.listener.Addr().(*net.TCPAddr).Port
}

// NewTCPTransport returns a NetworkTransport that is built on top of a TCP
// streaming transport layer, with log output going to the supplied Logger. A
// bindAddr without a port ("10.0.0.5" or "10.0.0.5:") listens on a random
// port of ports.
func NewTCPTransport(
	bindAddr string,
	advertise string,
	ports PortRange,
	opts Options,
	logger *logrus.Entry,
) (*NetworkTransport, error) {
	stream, err := NewTCPStreamLayer(bindAddr, advertise, ports)
	if err != nil {
		return nil, err
	}
	return NewNetworkTransport(stream, opts, logger), nil
}

// NewTCPStreamLayer binds a TCPStreamLayer.
func NewTCPStreamLayer(bindAddr string, advertiseAddr string, ports PortRange) (*TCPStreamLayer, error) {
	// Try to bind
	list, err := listenTCP(bindAddr, ports)
	if err != nil {
		return nil, err
	}

	// Try to resolve the advertise address
	var resolvedAdvertise net.Addr
	if advertiseAddr != "" {
		resolvedAdvertise, err = net.ResolveTCPAddr("tcp", advertiseAddr)
		if err != nil {
			list.Close()
			return nil, err
		}
	}

	if resolvedAdvertise == nil {
		resolvedAdvertise = list.Addr()
	}

	// Verify that we have a usable advertise address
	addr, ok := resolvedAdvertise.(*net.TCPAddr)
	if !ok {
		list.Close()
		return nil, errNotTCP
	}
	if addr.IP.IsUnspecified() {
		list.Close()
		return nil, errNotAdvertisable
	}

	return &TCPStreamLayer{
		advertise: advertiseAddr,
		listener:  list.(*net.TCPListener),
	}, nil
}

func listenTCP(bindAddr string, ports PortRange) (net.Listener, error) {
	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		// no port at all
		host, port = bindAddr, ""
	}

	if port != "" {
		return net.Listen("tcp", bindAddr)
	}

	if ports.Min <= 0 || ports.Max <= ports.Min {
		ports = DefaultPortRange
	}

	var lastErr error
	for i := 0; i < portAttempts; i++ {
		p := ports.Min + rand.Intn(ports.Max-ports.Min)
		list, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(p)))
		if err == nil {
			return list, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w [%d, %d): %v", errNoFreePort, ports.Min, ports.Max, lastErr)
}
