package client

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ramforge/ramforge/cmd/util"
	"github.com/ramforge/ramforge/master"
)

var (
	ifExists      bool
	ifDoesntExist bool
	ifVersionLe   uint64
	ifVersionNe   uint64

	createCmd = &cobra.Command{
		Use:   "create [payload]",
		Short: "Creates a new object in the configured table",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, version, err := masterClient.Create(util.GetTableID(), []byte(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("objectId=%d, version=%d\n", id, version)
			return nil
		},
	}

	readCmd = &cobra.Command{
		Use:   "read [objectId]",
		Short: "Reads the current payload and version of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			objectID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("objectId must be a number: %w", err)
			}
			payload, version, err := masterClient.Read(util.GetTableID(), objectID, rejectRules())
			if err != nil {
				return err
			}
			fmt.Printf("version=%d, payload=%s\n", version, payload)
			return nil
		},
	}

	writeCmd = &cobra.Command{
		Use:   "write [objectId] [payload]",
		Short: "Overwrites an existing object's payload",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			objectID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("objectId must be a number: %w", err)
			}
			version, err := masterClient.Write(util.GetTableID(), objectID, []byte(args[1]), rejectRules())
			if err != nil {
				return err
			}
			fmt.Printf("version=%d\n", version)
			return nil
		},
	}

	removeCmd = &cobra.Command{
		Use:   "remove [objectId]",
		Short: "Removes an object, leaving a tombstone behind",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			objectID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("objectId must be a number: %w", err)
			}
			version, err := masterClient.Remove(util.GetTableID(), objectID, rejectRules())
			if err != nil {
				return err
			}
			fmt.Printf("version=%d\n", version)
			return nil
		},
	}

	multiReadCmd = &cobra.Command{
		Use:   "multiread [objectId...]",
		Short: "Reads several objects from the configured table in one round trip",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			keys := make([]master.ObjectKey, len(args))
			for i, a := range args {
				objectID, err := strconv.ParseUint(a, 10, 64)
				if err != nil {
					return fmt.Errorf("objectId must be a number: %w", err)
				}
				keys[i] = master.ObjectKey{TableID: util.GetTableID(), ObjectID: objectID}
			}

			results, err := masterClient.MultiRead(keys)
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Printf("objectId=%d, status=%s, version=%d, payload=%s\n", keys[i].ObjectID, r.Status, r.Version, r.Payload)
			}
			return nil
		},
	}

	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Checks that the configured master is reachable",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := masterClient.Ping(); err != nil {
				return err
			}
			fmt.Println("pong")
			return nil
		},
	}
)

func init() {
	for _, cmd := range []*cobra.Command{readCmd, writeCmd, removeCmd} {
		cmd.Flags().BoolVar(&ifExists, "if-exists", false, "reject unless the object currently exists")
		cmd.Flags().BoolVar(&ifDoesntExist, "if-doesnt-exist", false, "reject unless the object currently doesn't exist")
		cmd.Flags().Uint64Var(&ifVersionLe, "if-version-le", 0, "reject if the live version is <= this value (0 disables)")
		cmd.Flags().Uint64Var(&ifVersionNe, "if-version-ne", 0, "reject if the live version is != this value (0 disables)")
	}
}

func rejectRules() master.RejectRules {
	return master.RejectRules{
		Exists:         ifExists,
		DoesntExist:    ifDoesntExist,
		VersionLeGiven: ifVersionLe != 0,
		VersionNeGiven: ifVersionNe != 0,
		GivenVersion:   max(ifVersionLe, ifVersionNe),
	}
}
