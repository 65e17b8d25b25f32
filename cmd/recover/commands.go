package recover

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ramforge/ramforge/master/recovery"
	"github.com/ramforge/ramforge/master/tablet"
)

var (
	recoverOwned    []string
	recoverReplicas []string

	setTabletsCmd = &cobra.Command{
		Use:   "set-tablets [tableId:startId:endId:tableRef...]",
		Short: "Assigns one or more tablet ranges to the configured master",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			tablets, err := parseTablets(args)
			if err != nil {
				return err
			}
			if err := masterClient.SetTablets(tablets); err != nil {
				return err
			}
			fmt.Printf("assigned %d tablet(s)\n", len(tablets))
			return nil
		},
	}

	recoverCmd = &cobra.Command{
		Use:   "recover [crashedMasterId] [partitionId]",
		Short: "Drives crash recovery of a partition previously owned by crashedMasterId",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			crashedMasterID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("crashedMasterId must be a number: %w", err)
			}
			partitionID, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("partitionId must be a number: %w", err)
			}

			owned, err := parseTablets(recoverOwned)
			if err != nil {
				return err
			}
			replicas, err := parseReplicas(recoverReplicas)
			if err != nil {
				return err
			}

			result, err := masterClient.Recover(cmd.Context(), crashedMasterID, partitionID, owned, replicas)
			if err != nil {
				return err
			}
			for _, r := range result {
				fmt.Printf("segment=%d, backup=%s, status=%d\n", r.SegmentID, r.BackupLocator, r.Status)
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
	recoverCmd.Flags().StringSliceVar(&recoverOwned, "owned", nil, "tablets the recovering master should own after recovery, as tableId:startId:endId:tableRef")
	recoverCmd.Flags().StringSliceVar(&recoverReplicas, "replica", nil, "known backup replicas of the crashed partition, as segmentId:backupLocator")
}

// parseTablets parses "tableId:startId:endId:tableRef" descriptors into
// tablet.Tablet values, starting in the NORMAL state.
func parseTablets(args []string) ([]*tablet.Tablet, error) {
	tablets := make([]*tablet.Tablet, len(args))
	for i, a := range args {
		parts := strings.Split(a, ":")
		if len(parts) != 4 {
			return nil, fmt.Errorf("invalid tablet descriptor %q, want tableId:startId:endId:tableRef", a)
		}
		tableID, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid tableId in %q: %w", a, err)
		}
		startID, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid startId in %q: %w", a, err)
		}
		endID, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid endId in %q: %w", a, err)
		}
		tableRef, err := strconv.ParseUint(parts[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tableRef in %q: %w", a, err)
		}
		tablets[i] = &tablet.Tablet{
			TableID:  uint32(tableID),
			StartID:  startID,
			EndID:    endID,
			State:    tablet.Normal,
			TableRef: tableRef,
		}
	}
	return tablets, nil
}

// parseReplicas parses "segmentId:backupLocator" descriptors into
// recovery.ReplicaEntry values, starting in the Pending state.
func parseReplicas(args []string) ([]recovery.ReplicaEntry, error) {
	replicas := make([]recovery.ReplicaEntry, len(args))
	for i, a := range args {
		parts := strings.SplitN(a, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid replica descriptor %q, want segmentId:backupLocator", a)
		}
		segmentID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid segmentId in %q: %w", a, err)
		}
		replicas[i] = recovery.ReplicaEntry{
			SegmentID:     segmentID,
			BackupLocator: parts[1],
			Status:        recovery.Pending,
		}
	}
	return replicas, nil
}
