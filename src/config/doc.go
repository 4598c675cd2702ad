// Package config defines the configuration for a helisync node.
//
// Regardless of how helisync is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// options, helisync relies on a data directory, defined by Config.DataDir,
// where it may find:
//
//	helisync.toml // (optional) configuration file read by the command line.
//	peers.json    // (optional) static list of peers, see Config.PeersFile.
//	badger_db/    // the database when Config.Store is set.
package config
