package commands

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/campnet/helisync/src/helisync"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables read by viper, for example
// HELISYNC_ROLE or HELISYNC_PORT_MIN.
const EnvPrefix = "HELISYNC"

// NewRunCmd returns the command that starts a helisync node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runHelisync,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runHelisync(cmd *cobra.Command, args []string) error {
	engine := helisync.NewHelisync(&_config.Helisync)

	if err := engine.Init(); err != nil {
		_config.Helisync.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		_config.Helisync.Logger().Info("Shutting down")
		engine.Shutdown()
	}()

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {
	addCommonFlags(cmd)

	cmd.Flags().String("log-dir", _config.Helisync.LogDir, "Directory for per-level log files")
	cmd.Flags().String("moniker", _config.Helisync.Moniker, "Optional name")

	// Network
	cmd.Flags().StringP("listen", "l", _config.Helisync.BindAddr, "Listen IP[:Port] for helisync node, a random port is picked without one")
	cmd.Flags().StringP("advertise", "a", _config.Helisync.AdvertiseAddr, "Advertise IP:Port for helisync node")
	cmd.Flags().Int("port-min", _config.Helisync.PortMin, "Lowest random listen port")
	cmd.Flags().Int("port-max", _config.Helisync.PortMax, "Highest random listen port, excluded")
	cmd.Flags().DurationP("timeout", "t", _config.Helisync.TCPTimeout, "Session timeout")
	cmd.Flags().Duration("dial-timeout", _config.Helisync.DialTimeout, "Connection timeout")
	cmd.Flags().Bool("serial", _config.Helisync.Serial, "Serve one session at a time")
	cmd.Flags().Int("max-batch", _config.Helisync.MaxBatch, "Largest batch accepted from a peer")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.Helisync.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.Helisync.NoService, "Disable HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Helisync.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Helisync.DatabaseDir, "Dabatabase directory")
	cmd.Flags().String("flag-policy", _config.Helisync.FlagPolicy, "Merge of Confirmed/Checked flags: monotonic or lww")

	// Helicopter
	cmd.Flags().Duration("flight-duration", _config.Helisync.FlightDuration, "Time a helicopter stays in flight")
}

// addCommonFlags adds the flags every command that reads the configuration
// needs.
func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("datadir", _config.Helisync.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Helisync.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().StringP("role", "r", _config.Helisync.Role, "camp, town, aircompany or helicopter")

	// Directory
	cmd.Flags().String("directory", _config.Helisync.Directory, "Peer directory: static or mdns")
	cmd.Flags().String("peers-file", _config.Helisync.PeersFile, "JSON peers file of the static directory, defaults to [datadir]/peers.json")
	cmd.Flags().String("mdns-domain", _config.Helisync.MDNSDomain, "Multicast DNS domain")
	cmd.Flags().Duration("peer-cache-ttl", _config.Helisync.PeerCacheTTL, "How long resolved mDNS peers are reused")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Helisync.SetDataDir(_config.Helisync.DataDir)

	logFields := logrus.Fields{
		"helisync.DataDir":        _config.Helisync.DataDir,
		"helisync.Role":           _config.Helisync.Role,
		"helisync.Moniker":        _config.Helisync.Moniker,
		"helisync.BindAddr":       _config.Helisync.BindAddr,
		"helisync.AdvertiseAddr":  _config.Helisync.AdvertiseAddr,
		"helisync.ServiceAddr":    _config.Helisync.ServiceAddr,
		"helisync.NoService":      _config.Helisync.NoService,
		"helisync.Store":          _config.Helisync.Store,
		"helisync.LogLevel":       _config.Helisync.LogLevel,
		"helisync.TCPTimeout":     _config.Helisync.TCPTimeout,
		"helisync.Serial":         _config.Helisync.Serial,
		"helisync.FlagPolicy":     _config.Helisync.FlagPolicy,
		"helisync.FlightDuration": _config.Helisync.FlightDuration,
		"helisync.Directory":      _config.Helisync.Directory,
	}

	if _config.Helisync.Store {
		logFields["helisync.DatabaseDir"] = _config.Helisync.DatabaseDir
	}

	_config.Helisync.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// HELISYNC_FLIGHT_DURATION overrides --flight-duration's default
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/helisync.toml (.json, .yaml also work)
	viper.SetConfigName("helisync")               // name of config file (without extension)
	viper.AddConfigPath(_config.Helisync.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Helisync.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Helisync.Logger().Debugf("No config file found in: %s", _config.Helisync.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
