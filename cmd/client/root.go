package client

import (
	"github.com/spf13/cobra"

	"github.com/ramforge/ramforge/cmd/util"
	rpcclient "github.com/ramforge/ramforge/rpc/client"
)

var (
	masterClient rpcclient.MasterClient

	// Commands represents the client command group for the master's
	// object operations (Create/Read/Write/Remove/MultiRead/Ping).
	Commands = &cobra.Command{
		Use:               "client",
		Short:             "Perform object operations against a master",
		PersistentPreRunE: setupMasterClient,
	}
)

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupRPCClientFlags(Commands)
	Commands.PersistentFlags().Uint32("table", 1, util.WrapString("ID of the table the object belongs to"))

	Commands.AddCommand(createCmd)
	Commands.AddCommand(readCmd)
	Commands.AddCommand(writeCmd)
	Commands.AddCommand(removeCmd)
	Commands.AddCommand(multiReadCmd)
	Commands.AddCommand(pingCmd)
	Commands.AddCommand(perfTestCmd)
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
