package replicate

import (
	"errors"
	"testing"
	"time"

	"github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/metrics"
	hnet "github.com/campnet/helisync/src/net"
	"github.com/campnet/helisync/src/peers"
	"github.com/campnet/helisync/src/records"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startPeer runs a transport on network that accepts every command and
// forwards it to the returned channel.
func startPeer(t *testing.T, network *hnet.InmemNetwork, addr string) <-chan interface{} {
	trans := hnet.NewNetworkTransport(network.NewStreamLayer(addr), hnet.DefaultOptions(), common.NewTestEntry(t, common.TestLogLevel))
	go trans.Listen()

	received := make(chan interface{}, 16)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case rpc := <-trans.Consumer():
				received <- rpc.Command
				rpc.Respond(nil, nil)
			case <-done:
				return
			}
		}
	}()

	t.Cleanup(func() {
		close(done)
		trans.Close()
	})
	return received
}

func newReplicator(t *testing.T, network *hnet.InmemNetwork, dir peers.Directory, m *metrics.Metrics) *Replicator {
	opts := hnet.DefaultOptions()
	opts.DialTimeout = 200 * time.Millisecond
	trans := hnet.NewNetworkTransport(network.NewStreamLayer("self"), opts, common.NewTestEntry(t, common.TestLogLevel))
	t.Cleanup(func() { trans.Close() })
	return NewReplicator(trans, dir, "self", "me", m, common.NewTestEntry(t, common.TestLogLevel))
}

func request() *records.Request {
	return records.NewBooking(records.NewTicket(1, 1), records.Booking{
		Passenger:    "Alice",
		FlightNumber: 3,
		FlightDate:   "2026-10-18",
	})
}

func TestBroadcastPartialFailure(t *testing.T) {
	network := hnet.NewInmemNetwork()
	a := startPeer(t, network, "a")
	b := startPeer(t, network, "b")

	targets := []*peers.Peer{
		peers.NewPeer("a", "a", records.Camp),
		peers.NewPeer("ghost", "ghost", records.Camp),
		peers.NewPeer("b", "b", records.AirCompany),
	}

	m := metrics.NewMetrics()
	r := newReplicator(t, network, peers.NewStaticDirectory(nil), m)

	report := r.BroadcastRequest(targets, request())

	assert.False(t, report.OK(), "one unreachable peer must fail the broadcast")
	require.Len(t, report.Results, 3)
	assert.NoError(t, report.Results[0].Err)
	assert.True(t, hnet.IsConnectionError(report.Results[1].Err))
	assert.NoError(t, report.Results[2].Err)
	assert.Equal(t, 2, report.Delivered())

	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "ghost", failed[0].NetAddr)

	for _, ch := range []<-chan interface{}{a, b} {
		cmd := (<-ch).(*hnet.BroadcastCmd)
		assert.Len(t, cmd.Requests, 1)
		assert.Empty(t, cmd.Timetable)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("broadcast", "connection")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("broadcast", "ok")))
}

func TestBroadcastAllDelivered(t *testing.T) {
	network := hnet.NewInmemNetwork()
	startPeer(t, network, "a")
	startPeer(t, network, "b")

	r := newReplicator(t, network, peers.NewStaticDirectory(nil), nil)
	report := r.BroadcastEntry([]*peers.Peer{
		peers.NewPeer("a", "a", records.Camp),
		peers.NewPeer("b", "b", records.Camp),
	}, &records.TimetableEntry{FlightNumber: 1, FlightTime: "10:00", AirCompanyName: "A"})

	assert.True(t, report.OK())
	assert.Empty(t, report.Failed())
}

func TestBroadcastNoPeers(t *testing.T) {
	r := newReplicator(t, hnet.NewInmemNetwork(), peers.NewStaticDirectory(nil), nil)
	report := r.BroadcastRequest(nil, request())
	assert.True(t, report.OK())
	assert.Empty(t, report.Results)
}

func TestSendRecordAndConfirm(t *testing.T) {
	network := hnet.NewInmemNetwork()
	company := startPeer(t, network, "company")
	town := startPeer(t, network, "town")

	r := newReplicator(t, network, peers.NewStaticDirectory(nil), nil)

	err := r.SendRecord(peers.NewPeer("company", "company", records.AirCompany), request())
	require.NoError(t, err)
	single := (<-company).(*hnet.TakeMyRequestCmd)
	assert.Equal(t, request(), single.Request)

	report := r.Confirm([]*peers.Peer{peers.NewPeer("town", "town", records.Town)}, []*records.Request{request()})
	assert.True(t, report.OK())
	conf := (<-town).(*hnet.ConfirmationCmd)
	assert.Len(t, conf.Requests, 1)

	err = r.SendRecord(peers.NewPeer("gone", "gone", records.AirCompany), request())
	assert.True(t, hnet.IsConnectionError(err))
}

type brokenDirectory struct {
	peers.StaticDirectory
}

func (b *brokenDirectory) ResolvePeers(string) ([]*peers.Peer, error) {
	return nil, errors.New("no network")
}

func TestResolveExcludesSelf(t *testing.T) {
	dir := peers.NewStaticDirectory([]*peers.Peer{
		peers.NewPeer("me", "10.0.0.1:1000", records.Camp),
		peers.NewPeer("other", "self", records.Camp),
		peers.NewPeer("camp-2", "10.0.0.2:1000", records.Camp),
		peers.NewPeer("company", "10.0.0.3:1000", records.AirCompany),
	})
	r := newReplicator(t, hnet.NewInmemNetwork(), dir, nil)

	camps, err := r.Resolve(records.Camp)
	require.NoError(t, err)
	require.Len(t, camps, 1)
	assert.Equal(t, "camp-2", camps[0].Moniker)

	all := r.ResolveAll(records.Camp, records.AirCompany, records.Camp)
	assert.Len(t, all, 2)

	broken := newReplicator(t, hnet.NewInmemNetwork(), &brokenDirectory{}, nil)
	assert.Empty(t, broken.ResolveAll(records.Town))
	_, err = broken.Resolve(records.Town)
	assert.Error(t, err)
}
