package raft

import (
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	sm "github.com/lni/dragonboat/v4/statemachine"

	"github.com/ramforge/ramforge/coordinator"
	"github.com/ramforge/ramforge/coordinator/raft/internal"
	"github.com/ramforge/ramforge/master/tablet"
)

var log = logger.GetLogger("coordinator")

// snapshotState is the gob-encodable shape of everything the state
// machine must persist. Unlike dstore's fuzzy db.Save/Load, the
// coordinator's entire state is small and in-memory, so a plain gob
// encode/decode of this struct is the snapshot codec.
type snapshotState struct {
	Tablets []tablet.Tablet
	Servers []coordinator.ServerDescriptor
	NextID  uint64
}

// CoordinatorStateMachine replicates the cluster's tablet map and server
// registry via raft. It is the coordinator analogue of dstore's
// KVStateMachine.
type CoordinatorStateMachine struct {
	replicaID uint64
	shardID   uint64

	tablets *tablet.Map
	servers map[uint64]coordinator.ServerDescriptor
	nextID  atomic.Uint64
}

// CreateStateMachineFactory returns a dragonboat state machine factory for
// the coordinator shard.
func CreateStateMachineFactory() func(shardID, replicaID uint64) sm.IConcurrentStateMachine {
	return func(shardID, replicaID uint64) sm.IConcurrentStateMachine {
		return &CoordinatorStateMachine{
			replicaID: replicaID,
			shardID:   shardID,
			tablets:   tablet.New(),
			servers:   make(map[uint64]coordinator.ServerDescriptor),
		}
	}
}

func (fsm *CoordinatorStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, fmt.Errorf("coordinator: invalid query type %T", itf)
	}

	switch q.Type {
	case internal.QueryTGetTabletMap:
		var out []tablet.Tablet
		fsm.tablets.ForEachInState(tablet.Normal, func(t *tablet.Tablet) { out = append(out, *t) })
		fsm.tablets.ForEachInState(tablet.Recovering, func(t *tablet.Tablet) { out = append(out, *t) })
		return internal.QueryResult{Tablets: out}, nil
	case internal.QueryTGetServers:
		out := make([]coordinator.ServerDescriptor, 0, len(fsm.servers))
		for _, s := range fsm.servers {
			out = append(out, s)
		}
		return internal.QueryResult{Servers: out}, nil
	default:
		return nil, fmt.Errorf("coordinator: unknown query type %d", q.Type)
	}
}

func (fsm *CoordinatorStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	for idx, e := range entries {
		if len(e.Cmd) == 0 {
			entries[idx].Result = sm.Result{Data: []byte("empty command ignored")}
			continue
		}
		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = sm.Result{Value: 1, Data: []byte(fmt.Sprintf("failed to deserialize command: %v", err))}
			continue
		}
		entries[idx].Result = fsm.apply(cmd)
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("coordinator state machine took %.2fms to apply %d entries", float64(elapsed)/float64(time.Millisecond), len(entries))
	}
	return entries, nil
}

func (fsm *CoordinatorStateMachine) apply(cmd internal.Command) sm.Result {
	switch cmd.Type {
	case internal.CommandTEnlistServer:
		for _, s := range fsm.servers {
			if s.ServiceLocator == cmd.ServiceLocator {
				return sm.Result{Value: 1, Data: []byte("server already enlisted")}
			}
		}
		id := fsm.nextID.Add(1)
		fsm.servers[id] = coordinator.ServerDescriptor{
			ServerID:       id,
			ServiceLocator: cmd.ServiceLocator,
			Type:           coordinator.ServerType(cmd.ServerType),
		}
		return sm.Result{Value: 0, Data: binary.BigEndian.AppendUint64(nil, id)}

	case internal.CommandTAssignTablet:
		if _, ok := fsm.servers[cmd.ServerID]; !ok {
			return sm.Result{Value: 1, Data: []byte("server not found")}
		}
		fsm.tablets.Add(&tablet.Tablet{TableID: cmd.TableID, StartID: cmd.StartID, EndID: cmd.EndID, State: tablet.Normal, TableRef: cmd.ServerID})
		return sm.Result{Value: 0}

	case internal.CommandTSetTabletState:
		if !fsm.tablets.SetState(cmd.TableID, cmd.StartID, cmd.EndID, tablet.State(cmd.State)) {
			return sm.Result{Value: 1, Data: []byte("tablet not found")}
		}
		return sm.Result{Value: 0}

	case internal.CommandTTabletsRecovered:
		if _, ok := fsm.servers[cmd.NewServerID]; !ok {
			return sm.Result{Value: 1, Data: []byte("server not found")}
		}
		for _, t := range cmd.Tablets {
			fsm.tablets.Remove(t.TableID, t.StartID, t.EndID)
			fsm.tablets.Add(&tablet.Tablet{TableID: t.TableID, StartID: t.StartID, EndID: t.EndID, State: tablet.Normal, TableRef: cmd.NewServerID})
		}
		return sm.Result{Value: 0}

	default:
		return sm.Result{Value: 1, Data: []byte(fmt.Sprintf("unknown command type %s", cmd.Type))}
	}
}

func (fsm *CoordinatorStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

func (fsm *CoordinatorStateMachine) SaveSnapshot(_ interface{}, w io.Writer, _ sm.ISnapshotFileCollection, _ <-chan struct{}) error {
	state := snapshotState{NextID: fsm.nextID.Load()}
	fsm.tablets.ForEachInState(tablet.Normal, func(t *tablet.Tablet) { state.Tablets = append(state.Tablets, *t) })
	fsm.tablets.ForEachInState(tablet.Recovering, func(t *tablet.Tablet) { state.Tablets = append(state.Tablets, *t) })
	for _, s := range fsm.servers {
		state.Servers = append(state.Servers, s)
	}
	return gob.NewEncoder(w).Encode(state)
}

func (fsm *CoordinatorStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, _ <-chan struct{}) error {
	var state snapshotState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return err
	}

	fsm.tablets = tablet.New()
	for i := range state.Tablets {
		fsm.tablets.Add(&state.Tablets[i])
	}
	fsm.servers = make(map[uint64]coordinator.ServerDescriptor, len(state.Servers))
	for _, s := range state.Servers {
		fsm.servers[s.ServerID] = s
	}
	fsm.nextID.Store(state.NextID)
	return nil
}

func (fsm *CoordinatorStateMachine) Close() error {
	return nil
}
