package helisync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/config"
	"github.com/campnet/helisync/src/peers"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, dir string, role string) *config.Config {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)
	conf.Role = role
	conf.BindAddr = "127.0.0.1"
	conf.NoService = true
	return conf
}

func start(t *testing.T, conf *config.Config) *Helisync {
	engine := NewHelisync(conf)
	require.NoError(t, engine.Init())
	engine.RunAsync()
	t.Cleanup(engine.Shutdown)
	return engine
}

func TestStaticDirectoryBooking(t *testing.T) {
	dir := t.TempDir()

	company := start(t, testConfig(t, dir, "aircompany"))
	camp := start(t, testConfig(t, dir, "camp"))

	// both nodes advertised themselves in the shared peers file
	ps, err := peers.NewJSONDirectory(dir, records.Camp, "").Peers()
	require.NoError(t, err)
	assert.Len(t, ps, 2)

	found, err := camp.Node.Peers(records.AirCompany)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, company.Transport.AdvertiseAddr(), found[0].NetAddr)

	r, report, err := camp.Node.Book(records.Booking{
		Passenger:    "Jack",
		FlightNumber: 1,
		FlightDate:   "2026-10-18",
	})
	require.NoError(t, err)
	assert.True(t, report.OK())

	got, err := company.Store.GetRequest(r.Ticket)
	require.NoError(t, err)
	assert.Equal(t, "Jack", got.Booking.Passenger)
	// a stopped node leaves the shared file
	camp.Shutdown()
	ps, err = peers.NewJSONDirectory(dir, records.Camp, "").Peers()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, records.AirCompany, ps[0].Role)
}

func TestBadgerStorePersistsTickets(t *testing.T) {
	dir := t.TempDir()

	conf := testConfig(t, dir, "town")
	conf.Store = true

	engine := NewHelisync(conf)
	require.NoError(t, engine.Init())
	_, ok := engine.Store.(*store.BadgerStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, config.DefaultBadgerFile), conf.DatabaseDir)

	first, err := engine.Store.NextTicket()
	require.NoError(t, err)
	nodeID := engine.Store.NodeID()
	engine.Shutdown()

	conf = testConfig(t, dir, "town")
	conf.Store = true
	engine = NewHelisync(conf)
	require.NoError(t, engine.Init())
	defer engine.Shutdown()

	second, err := engine.Store.NextTicket()
	require.NoError(t, err)
	assert.Equal(t, nodeID, engine.Store.NodeID())
	assert.Greater(t, second.Seq(), first.Seq())
}

func TestInitErrors(t *testing.T) {
	conf := testConfig(t, t.TempDir(), "submarine")
	assert.Error(t, NewHelisync(conf).Init())

	conf = testConfig(t, t.TempDir(), "camp")
	conf.BindAddr = "0.0.0.0"
	assert.Error(t, NewHelisync(conf).Init(), "an unspecified address cannot be advertised")
}

func TestMonikerDefaultsToRoleAndPort(t *testing.T) {
	conf := testConfig(t, t.TempDir(), "helicopter")
	conf.FlightDuration = time.Second
	engine := start(t, conf)

	assert.Contains(t, engine.Config.Moniker, "helicopter-")
	assert.Equal(t, records.Helicopter, engine.Node.Role())
}
