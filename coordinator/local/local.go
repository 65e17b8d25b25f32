// Package local implements coordinator.Coordinator directly in memory,
// with no replication: the single-node analogue of lstore, for
// development and single-master deployments where a coordinator crash
// means the whole cluster is down anyway.
package local

import (
	"sync"
	"sync/atomic"

	"github.com/ramforge/ramforge/coordinator"
	"github.com/ramforge/ramforge/master/recovery"
	"github.com/ramforge/ramforge/master/tablet"
)

type coordinatorImpl struct {
	mu      sync.RWMutex
	servers map[uint64]coordinator.ServerDescriptor
	nextID  atomic.Uint64

	tablets *tablet.Map
}

// New creates a new in-process coordinator. It owns its own tablet map,
// independent of any master's locally-cached copy.
func New() coordinator.Coordinator {
	return &coordinatorImpl{
		servers: make(map[uint64]coordinator.ServerDescriptor),
		tablets: tablet.New(),
	}
}

func (c *coordinatorImpl) EnlistServer(serverType coordinator.ServerType, serviceLocator string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.servers {
		if s.ServiceLocator == serviceLocator {
			return 0, coordinator.ErrServerAlreadyEnlisted
		}
	}

	id := c.nextID.Add(1)
	c.servers[id] = coordinator.ServerDescriptor{ServerID: id, ServiceLocator: serviceLocator, Type: serverType}
	return id, nil
}

func (c *coordinatorImpl) AssignTablet(tableID uint32, startID, endID uint64, serverID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.servers[serverID]; !ok {
		return coordinator.ErrServerNotFound
	}

	var overlap bool
	c.tablets.ForEachInState(tablet.Normal, func(t *tablet.Tablet) {
		if t.TableID == tableID && startID <= t.EndID && t.StartID <= endID {
			overlap = true
		}
	})
	c.tablets.ForEachInState(tablet.Recovering, func(t *tablet.Tablet) {
		if t.TableID == tableID && startID <= t.EndID && t.StartID <= endID {
			overlap = true
		}
	})
	if overlap {
		return coordinator.ErrTabletOverlap
	}

	c.tablets.Add(&tablet.Tablet{TableID: tableID, StartID: startID, EndID: endID, State: tablet.Normal, TableRef: serverID})
	return nil
}

func (c *coordinatorImpl) SetTabletState(tableID uint32, startID, endID uint64, state tablet.State) error {
	if !c.tablets.SetState(tableID, startID, endID, state) {
		return tablet.ErrTableNotFound
	}
	return nil
}

func (c *coordinatorImpl) GetTabletMap() ([]tablet.Tablet, error) {
	var out []tablet.Tablet
	c.tablets.ForEachInState(tablet.Normal, func(t *tablet.Tablet) { out = append(out, *t) })
	c.tablets.ForEachInState(tablet.Recovering, func(t *tablet.Tablet) { out = append(out, *t) })
	return out, nil
}

func (c *coordinatorImpl) GetServers() ([]coordinator.ServerDescriptor, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]coordinator.ServerDescriptor, 0, len(c.servers))
	for _, s := range c.servers {
		out = append(out, s)
	}
	return out, nil
}

// TabletsRecovered installs newServerID as the owner of every tablet
// listed, moving each back to Normal. replicas is accepted for interface
// symmetry with coordinator.Coordinator and the raft implementation,
// where it is appended to a durable recovery log; the in-process
// coordinator has nowhere durable to put it, so it is otherwise unused.
func (c *coordinatorImpl) TabletsRecovered(crashedServerID, newServerID uint64, tablets []tablet.Tablet, replicas []recovery.ReplicaEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.servers[newServerID]; !ok {
		return coordinator.ErrServerNotFound
	}

	for _, t := range tablets {
		c.tablets.Remove(t.TableID, t.StartID, t.EndID)
		c.tablets.Add(&tablet.Tablet{TableID: t.TableID, StartID: t.StartID, EndID: t.EndID, State: tablet.Normal, TableRef: newServerID})
	}
	return nil
}
