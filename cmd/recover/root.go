// Package recover provides the administrative command group for tablet
// assignment and crash recovery against a running master.
package recover

import (
	"github.com/spf13/cobra"

	"github.com/ramforge/ramforge/cmd/util"
	rpcclient "github.com/ramforge/ramforge/rpc/client"
)

var (
	masterClient rpcclient.MasterClient

	// Commands is the "recover" command group: the cluster-management
	// surface (tablet assignment, crash recovery) that sits above the
	// plain object operations exposed by cmd/client.
	Commands = &cobra.Command{
		Use:               "recover",
		Short:             "Assign tablets to and trigger crash recovery on a master",
		PersistentPreRunE: setupMasterClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupRPCClientFlags(Commands)

	Commands.AddCommand(setTabletsCmd)
	Commands.AddCommand(recoverCmd)
	Commands.AddCommand(pingCmd)
}

func setupMasterClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := util.GetClientConfig()

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	masterClient, err = rpcclient.NewMasterClient(*config, t, s)
	return err
}
