// Package raft implements coordinator.Coordinator on top of a dragonboat
// raft shard, the coordinator analogue of lib/store/dstore: every
// mutation is a SyncPropose, every read a SyncRead, so the coordinator
// survives the crash of any minority of its own replicas.
package raft

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"

	"github.com/ramforge/ramforge/coordinator"
	"github.com/ramforge/ramforge/coordinator/raft/internal"
	"github.com/ramforge/ramforge/master/recovery"
	"github.com/ramforge/ramforge/master/tablet"
)

var retries = 5

type coordinatorImpl struct {
	nh      *dragonboat.NodeHost
	shardID uint64
	cs      *client.Session
	timeout time.Duration
}

// New creates a coordinator.Coordinator backed by the raft shard shardID
// on nh. The shard's state machine must have been started with
// CreateStateMachineFactory.
func New(nh *dragonboat.NodeHost, shardID uint64, timeout time.Duration) coordinator.Coordinator {
	return &coordinatorImpl{
		nh:      nh,
		shardID: shardID,
		cs:      nh.GetNoOPSession(shardID),
		timeout: timeout,
	}
}

func (c *coordinatorImpl) propose(cmd internal.Command) (uint64, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		res, err := c.nh.SyncPropose(ctx, c.cs, cmd.Serialize())
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			log.Infof("coordinator SyncPropose: system busy, retrying (%d/%d)", i+1, retries)
			time.Sleep(c.timeout / 10)
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("coordinator: propose failed: %w", err)
		}
		if res.Value != 0 {
			return 0, fmt.Errorf("coordinator: %s", res.Data)
		}
		if cmd.Type == internal.CommandTEnlistServer {
			if len(res.Data) != 8 {
				return 0, fmt.Errorf("coordinator: malformed enlist result")
			}
			return binary.BigEndian.Uint64(res.Data), nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("coordinator: propose timed out after %d retries", retries)
}

func (c *coordinatorImpl) readTyped(q internal.Query) (internal.QueryResult, error) {
	for i := 0; i < retries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		res, err := c.nh.SyncRead(ctx, c.shardID, q)
		cancel()

		if errors.Is(err, dragonboat.ErrSystemBusy) {
			time.Sleep(c.timeout / 10)
			continue
		}
		if err != nil {
			return internal.QueryResult{}, fmt.Errorf("coordinator: read failed: %w", err)
		}
		result, ok := res.(internal.QueryResult)
		if !ok {
			return internal.QueryResult{}, fmt.Errorf("coordinator: unexpected lookup result type %T", res)
		}
		return result, nil
	}
	return internal.QueryResult{}, fmt.Errorf("coordinator: read timed out after %d retries", retries)
}

func (c *coordinatorImpl) EnlistServer(serverType coordinator.ServerType, serviceLocator string) (uint64, error) {
	return c.propose(internal.Command{
		Type:           internal.CommandTEnlistServer,
		ServerType:     uint8(serverType),
		ServiceLocator: serviceLocator,
	})
}

func (c *coordinatorImpl) AssignTablet(tableID uint32, startID, endID uint64, serverID uint64) error {
	_, err := c.propose(internal.Command{
		Type:     internal.CommandTAssignTablet,
		TableID:  tableID,
		StartID:  startID,
		EndID:    endID,
		ServerID: serverID,
	})
	return err
}

func (c *coordinatorImpl) SetTabletState(tableID uint32, startID, endID uint64, state tablet.State) error {
	_, err := c.propose(internal.Command{
		Type:    internal.CommandTSetTabletState,
		TableID: tableID,
		StartID: startID,
		EndID:   endID,
		State:   uint8(state),
	})
	return err
}

func (c *coordinatorImpl) GetTabletMap() ([]tablet.Tablet, error) {
	res, err := c.readTyped(internal.Query{Type: internal.QueryTGetTabletMap})
	if err != nil {
		return nil, err
	}
	return res.Tablets, nil
}

func (c *coordinatorImpl) GetServers() ([]coordinator.ServerDescriptor, error) {
	res, err := c.readTyped(internal.Query{Type: internal.QueryTGetServers})
	if err != nil {
		return nil, err
	}
	return res.Servers, nil
}

func (c *coordinatorImpl) TabletsRecovered(crashedServerID, newServerID uint64, tablets []tablet.Tablet, replicas []recovery.ReplicaEntry) error {
	_, err := c.propose(internal.Command{
		Type:            internal.CommandTTabletsRecovered,
		CrashedServerID: crashedServerID,
		NewServerID:     newServerID,
		Tablets:         tablets,
		Replicas:        replicas,
	})
	return err
}
