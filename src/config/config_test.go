package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	conf := NewDefaultConfig()
	require.NoError(t, conf.Validate())

	role, err := conf.NodeRole()
	require.NoError(t, err)
	assert.Equal(t, records.Camp, role)

	policy, err := conf.Policy()
	require.NoError(t, err)
	assert.Equal(t, store.Monotonic, policy)

	opts := conf.TransportOptions()
	assert.True(t, opts.Serial)
	assert.Equal(t, DefaultTCPTimeout, opts.Timeout)
	assert.Equal(t, DefaultDialTimeout, opts.DialTimeout)

	ports := conf.PortRange()
	assert.Equal(t, 1024, ports.Min)
	assert.Equal(t, 16384, ports.Max)
}

func TestSetDataDir(t *testing.T) {
	conf := NewDefaultConfig()
	conf.SetDataDir("/tmp/helisync")
	assert.Equal(t, "/tmp/helisync/badger_db", conf.DatabaseDir)
	assert.Equal(t, "/tmp/helisync/peers.json", conf.PeersPath())

	conf.DatabaseDir = "/data/db"
	conf.SetDataDir("/tmp/other")
	assert.Equal(t, "/data/db", conf.DatabaseDir)

	conf.PeersFile = "/etc/helisync/peers.json"
	assert.Equal(t, "/etc/helisync/peers.json", conf.PeersPath())
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"role":      func(c *Config) { c.Role = "submarine" },
		"policy":    func(c *Config) { c.FlagPolicy = "random" },
		"directory": func(c *Config) { c.Directory = "dht" },
		"ports":     func(c *Config) { c.PortMin, c.PortMax = 2000, 1000 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			conf := NewDefaultConfig()
			mutate(conf)
			assert.Error(t, conf.Validate())
		})
	}

	conf := NewDefaultConfig()
	conf.Role = "_helicopter._tcp"
	conf.FlagPolicy = "lww"
	conf.Directory = MDNSDirectory
	conf.FlightDuration = time.Second
	require.NoError(t, conf.Validate())
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, LogLevel("info"))
	assert.Equal(t, logrus.ErrorLevel, LogLevel("error"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("chatty"))
}

func TestLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	conf := NewDefaultConfig()
	conf.LogLevel = "info"
	conf.LogDir = dir

	conf.Logger().Info("hello")

	assert.Equal(t, logrus.InfoLevel, conf.BaseLogger().Level)

	data, err := os.ReadFile(filepath.Join(dir, "helisync_info.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}

func TestTestConfigLogger(t *testing.T) {
	conf := NewTestConfig(t, common.TestLogLevel)
	assert.Same(t, conf.BaseLogger(), conf.Logger().Logger)
}
