package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/flight"
	hnet "github.com/campnet/helisync/src/net"
	"github.com/campnet/helisync/src/peers"
	"github.com/campnet/helisync/src/records"
	"github.com/campnet/helisync/src/store"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultPeersFile is the default name of the file listing static peers.
	DefaultPeersFile = "peers.json"
)

// Directory kinds.
const (
	// StaticDirectory reads peers from a JSON file.
	StaticDirectory = "static"
	// MDNSDirectory advertises and resolves peers with multicast DNS.
	MDNSDirectory = "mdns"
)

// Default configuration values.
const (
	DefaultLogLevel       = "debug"
	DefaultRole           = "camp"
	DefaultBindAddr       = "127.0.0.1"
	DefaultServiceAddr    = "127.0.0.1:8000"
	DefaultPortMin        = 1024
	DefaultPortMax        = 16384
	DefaultTCPTimeout     = 5000 * time.Millisecond
	DefaultDialTimeout    = 2000 * time.Millisecond
	DefaultSerial         = true
	DefaultStore          = false
	DefaultFlagPolicy     = "monotonic"
	DefaultFlightDuration = flight.DefaultDuration
	DefaultDirectory      = StaticDirectory
	DefaultMDNSDomain     = peers.DefaultMDNSDomain
	DefaultPeerCacheTTL   = 5000 * time.Millisecond
	DefaultMaxBatch       = hnet.DefaultMaxBatch
)

// Config contains all the configuration properties of a helisync node.
type Config struct {
	// DataDir is the top-level directory containing helisync configuration and
	// data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogDir, when set, receives one log file per level in addition to the
	// standard output.
	LogDir string `mapstructure:"log-dir"`

	// Role is one of camp, town, aircompany or helicopter.
	Role string `mapstructure:"role"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// BindAddr is the local address where this node accepts sessions. Without
	// a port, a random port between PortMin and PortMax is used.
	BindAddr string `mapstructure:"listen"`

	// AdvertiseAddr is used to change the address that we advertise to other
	// nodes.
	AdvertiseAddr string `mapstructure:"advertise"`

	PortMin int `mapstructure:"port-min"`
	PortMax int `mapstructure:"port-max"`

	// TCPTimeout bounds a whole session.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// DialTimeout bounds the connection to a peer.
	DialTimeout time.Duration `mapstructure:"dial-timeout"`

	// Serial serves one session at a time. When false, every connection is
	// served in its own goroutine.
	Serial bool `mapstructure:"serial"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// FlagPolicy decides how the Confirmed and Checked flags of a known
	// request are merged: monotonic or lww.
	FlagPolicy string `mapstructure:"flag-policy"`

	// FlightDuration is the time a helicopter stays in flight.
	FlightDuration time.Duration `mapstructure:"flight-duration"`

	// Directory selects how peers are found: static or mdns.
	Directory string `mapstructure:"directory"`

	// PeersFile is the JSON file of the static directory. Defaults to
	// peers.json in DataDir.
	PeersFile string `mapstructure:"peers-file"`

	// MDNSDomain is the multicast DNS domain.
	MDNSDomain string `mapstructure:"mdns-domain"`

	// PeerCacheTTL is how long resolved mDNS peers are reused.
	PeerCacheTTL time.Duration `mapstructure:"peer-cache-ttl"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// MaxBatch is the largest batch accepted from a peer.
	MaxBatch int `mapstructure:"max-batch"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:        DefaultDataDir(),
		LogLevel:       DefaultLogLevel,
		Role:           DefaultRole,
		BindAddr:       DefaultBindAddr,
		PortMin:        DefaultPortMin,
		PortMax:        DefaultPortMax,
		TCPTimeout:     DefaultTCPTimeout,
		DialTimeout:    DefaultDialTimeout,
		Serial:         DefaultSerial,
		Store:          DefaultStore,
		DatabaseDir:    DefaultDatabaseDir(),
		FlagPolicy:     DefaultFlagPolicy,
		FlightDuration: DefaultFlightDuration,
		Directory:      DefaultDirectory,
		MDNSDomain:     DefaultMDNSDomain,
		PeerCacheTTL:   DefaultPeerCacheTTL,
		ServiceAddr:    DefaultServiceAddr,
		MaxBatch:       DefaultMaxBatch,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level helisync directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely set
// it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// PeersPath returns the full path of the static peers file.
func (c *Config) PeersPath() string {
	if c.PeersFile != "" {
		return c.PeersFile
	}
	return filepath.Join(c.DataDir, DefaultPeersFile)
}

// NodeRole parses the configured role.
func (c *Config) NodeRole() (records.Role, error) {
	return records.ParseRole(c.Role)
}

// Policy parses the configured flag policy.
func (c *Config) Policy() (store.FlagPolicy, error) {
	return store.ParseFlagPolicy(c.FlagPolicy)
}

// PortRange returns the range random listening ports are picked from.
func (c *Config) PortRange() hnet.PortRange {
	return hnet.PortRange{Min: c.PortMin, Max: c.PortMax}
}

// TransportOptions returns the options of the network transport.
func (c *Config) TransportOptions() hnet.Options {
	opts := hnet.DefaultOptions()
	opts.Timeout = c.TCPTimeout
	opts.ServerTimeout = c.TCPTimeout
	opts.DialTimeout = c.DialTimeout
	opts.Serial = c.Serial
	opts.MaxBatch = c.MaxBatch
	return opts
}

// Validate checks the values that cannot be checked by their consumers.
func (c *Config) Validate() error {
	if _, err := c.NodeRole(); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	switch c.Directory {
	case StaticDirectory, MDNSDirectory:
	default:
		return fmt.Errorf("unknown directory %q, want %s or %s", c.Directory, StaticDirectory, MDNSDirectory)
	}
	if c.PortMin <= 0 || c.PortMax <= c.PortMin {
		return fmt.Errorf("invalid port range [%d, %d)", c.PortMin, c.PortMax)
	}
	return nil
}

// Logger returns a formatted logrus Entry, with prefix set to "helisync".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogDir != "" {
			c.addFileHook()
		}
	}
	return c.logger.WithField("prefix", "helisync")
}

// BaseLogger returns the logger behind Logger.
func (c *Config) BaseLogger() *logrus.Logger {
	c.Logger()
	return c.logger
}

// addFileHook writes every level from info down to its own file in LogDir.
func (c *Config) addFileHook() {
	if err := os.MkdirAll(c.LogDir, 0755); err != nil {
		c.logger.WithError(err).Warn("Failed to create log directory, using stderr only")
		return
	}

	pathMap := lfshook.PathMap{}
	for _, level := range []logrus.Level{
		logrus.DebugLevel,
		logrus.InfoLevel,
		logrus.WarnLevel,
		logrus.ErrorLevel,
	} {
		pathMap[level] = filepath.Join(c.LogDir, fmt.Sprintf("helisync_%s.log", level))
	}

	c.logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level helisync
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Helisync")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Helisync")
		} else {
			return filepath.Join(home, ".helisync")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
