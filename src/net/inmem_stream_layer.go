package net

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	errNoRoute      = errors.New("no route to inmem address")
	errLayerClosed  = errors.New("inmem stream layer closed")
	errAcceptTimout = errors.New("inmem accept timeout")
)

// NewInmemAddr returns a new in-memory addr with a random UUID.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemNetwork routes connections between InmemStreamLayers. It allows
// transports to be tested without going over a network.
type InmemNetwork struct {
	sync.Mutex
	layers map[string]*InmemStreamLayer
}

// NewInmemNetwork creates an empty InmemNetwork.
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		layers: make(map[string]*InmemStreamLayer),
	}
}

// NewStreamLayer registers a layer listening on addr. An empty addr gets a
// random one.
func (in *InmemNetwork) NewStreamLayer(addr string) *InmemStreamLayer {
	if addr == "" {
		addr = NewInmemAddr()
	}

	layer := &InmemStreamLayer{
		network:  in,
		addr:     inmemAddr(addr),
		acceptCh: make(chan net.Conn),
		closeCh:  make(chan struct{}),
	}

	in.Lock()
	in.layers[addr] = layer
	in.Unlock()

	return layer
}

func (in *InmemNetwork) lookup(addr string) *InmemStreamLayer {
	in.Lock()
	defer in.Unlock()
	return in.layers[addr]
}

func (in *InmemNetwork) remove(addr string) {
	in.Lock()
	delete(in.layers, addr)
	in.Unlock()
}

type inmemAddr string

func (a inmemAddr) Network() string { return "inmem" }
func (a inmemAddr) String() string  { return string(a) }

// inmemConn reports the addresses of the two layers instead of "pipe".
type inmemConn struct {
	net.Conn
	local  net.Addr
	remote net.Addr
}

func (c *inmemConn) LocalAddr() net.Addr  { return c.local }
func (c *inmemConn) RemoteAddr() net.Addr { return c.remote }

// InmemStreamLayer implements the StreamLayer interface with net.Pipe.
type InmemStreamLayer struct {
	network   *InmemNetwork
	addr      inmemAddr
	acceptCh  chan net.Conn
	closeCh   chan struct{}
	closeOnce sync.Once
}

// Dial implements the StreamLayer interface.
func (l *InmemStreamLayer) Dial(address string, timeout time.Duration) (net.Conn, error) {
	peer := l.network.lookup(address)
	if peer == nil {
		return nil, fmt.Errorf("%w %s", errNoRoute, address)
	}

	client, server := net.Pipe()

	var timer <-chan time.Time
	if timeout > 0 {
		timer = time.After(timeout)
	}

	select {
	case peer.acceptCh <- &inmemConn{Conn: server, local: peer.addr, remote: l.addr}:
		return &inmemConn{Conn: client, local: l.addr, remote: peer.addr}, nil
	case <-peer.closeCh:
		client.Close()
		server.Close()
		return nil, fmt.Errorf("%w %s", errNoRoute, address)
	case <-timer:
		client.Close()
		server.Close()
		return nil, errAcceptTimout
	}
}

// Accept implements the net.Listener interface.
func (l *InmemStreamLayer) Accept() (net.Conn, error) {
	select {
	case conn := <-l.acceptCh:
		return conn, nil
	case <-l.closeCh:
		return nil, errLayerClosed
	}
}

// Close implements the net.Listener interface.
func (l *InmemStreamLayer) Close() error {
	l.closeOnce.Do(func() {
		close(l.closeCh)
		l.network.remove(string(l.addr))
	})
	return nil
}

// Addr implements the net.Listener interface.
func (l *InmemStreamLayer) Addr() net.Addr {
	return l.addr
}

// AdvertiseAddr implements the StreamLayer interface.
func (l *InmemStreamLayer) AdvertiseAddr() string {
	return string(l.addr)
}
