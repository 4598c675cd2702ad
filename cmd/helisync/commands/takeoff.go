package commands

import (
	"fmt"
	"net"

	hnet "github.com/campnet/helisync/src/net"
	"github.com/spf13/cobra"
)

// NewTakeOffCmd returns the command that tells a helicopter to take off
func NewTakeOffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "takeoff [helicopter address]",
		Short: "Tell a helicopter to take off",
		Long: `Tell a helicopter to take off.

The helicopter pulls the tables of the host the command comes from, so run it
next to a camp or an air company.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: loadDirectoryConfig,
		RunE:    takeOff,
	}
	addCommonFlags(cmd)
	cmd.Flags().StringP("listen", "l", _config.Helisync.BindAddr, "Local IP the session is opened from")
	cmd.Flags().Duration("dial-timeout", _config.Helisync.DialTimeout, "Connection timeout")
	return cmd
}

func takeOff(cmd *cobra.Command, args []string) error {
	conf := &_config.Helisync
	target := args[0]

	if _, _, err := net.SplitHostPort(target); err != nil {
		return fmt.Errorf("helicopter address %q: %w", target, err)
	}

	trans, err := hnet.NewTCPTransport(conf.BindAddr, "", conf.PortRange(), conf.TransportOptions(), conf.Logger())
	if err != nil {
		return err
	}
	defer trans.Close()

	if err := trans.TakeOff(target); err != nil {
		return err
	}

	fmt.Printf("%s took off\n", target)
	return nil
}
