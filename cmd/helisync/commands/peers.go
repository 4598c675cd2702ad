package commands

import (
	"encoding/json"
	"os"

	"github.com/campnet/helisync/src/config"
	"github.com/campnet/helisync/src/peers"
	"github.com/campnet/helisync/src/records"
	"github.com/spf13/cobra"
)

// NewPeersCmd returns the command that lists the peers of a role
func NewPeersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "peers [role]",
		Short:   "List the peers found in the directory, all roles by default",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: loadDirectoryConfig,
		RunE:    listPeers,
	}
	addCommonFlags(cmd)
	return cmd
}

func loadDirectoryConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlagsLoadViper(cmd); err != nil {
		return err
	}
	_config.Helisync.SetDataDir(_config.Helisync.DataDir)
	return nil
}

func listPeers(cmd *cobra.Command, args []string) error {
	conf := &_config.Helisync

	roles := records.Roles
	if len(args) == 1 {
		role, err := records.ParseRole(args[0])
		if err != nil {
			return err
		}
		roles = []records.Role{role}
	}

	self, err := conf.NodeRole()
	if err != nil {
		return err
	}

	var dir peers.Directory
	switch conf.Directory {
	case config.MDNSDirectory:
		dir = peers.NewMDNSDirectory(self, conf.MDNSDomain, nil, 0, conf.PeerCacheTTL, conf.Logger())
	default:
		dir = peers.NewJSONDirectory(conf.PeersPath(), self, "")
	}
	defer dir.Close()

	found := []*peers.Peer{}
	for _, role := range roles {
		ps, err := dir.ResolvePeers(role.ServiceType())
		if err != nil {
			return err
		}
		found = append(found, ps...)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "\t")
	return enc.Encode(found)
}
