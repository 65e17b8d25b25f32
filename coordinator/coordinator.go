// Package coordinator defines the cluster-membership authority every
// master and backup in the cluster answers to: who owns which tablet,
// which servers are alive, and who takes over a partition after a
// crash. Two implementations exist: coordinator/local (single process,
// no replication) and coordinator/raft (dragonboat-replicated, survives
// a coordinator crash).
package coordinator

import (
	"errors"

	"github.com/ramforge/ramforge/master/recovery"
	"github.com/ramforge/ramforge/master/tablet"
)

// ServerType distinguishes the two roles a cluster member can enlist as.
type ServerType uint8

const (
	ServerTypeMaster ServerType = iota
	ServerTypeBackup
)

// ServerDescriptor is what the coordinator remembers about one enlisted
// cluster member.
type ServerDescriptor struct {
	ServerID       uint64
	ServiceLocator string
	Type           ServerType
}

var (
	ErrServerAlreadyEnlisted = errors.New("coordinator: server already enlisted")
	ErrServerNotFound        = errors.New("coordinator: server not found")
	ErrTabletOverlap         = errors.New("coordinator: tablet range overlaps an existing assignment")
)

// Coordinator is the cluster-membership and tablet-ownership authority.
// Every RPC it exposes is expected to be linearizable with respect to the
// others: a master that has just been told AssignTablet succeeded must be
// visible to the next GetTabletMap call from any client.
type Coordinator interface {
	// EnlistServer registers a new master or backup at serviceLocator,
	// returning the server ID assigned to it.
	EnlistServer(serverType ServerType, serviceLocator string) (serverID uint64, err error)

	// AssignTablet gives ownership of [startID, endID] (endID inclusive) in tableID to
	// serverID, in the Normal state. Used both for initial table
	// creation and to install a tablet on a new owner after recovery.
	AssignTablet(tableID uint32, startID, endID uint64, serverID uint64) error

	// SetTabletState transitions an existing tablet between Normal and
	// Recovering, e.g. when a master serving it is declared crashed.
	SetTabletState(tableID uint32, startID, endID uint64, state tablet.State) error

	// GetTabletMap returns every tablet the coordinator knows about.
	GetTabletMap() ([]tablet.Tablet, error)

	// GetServers returns every enlisted server.
	GetServers() ([]ServerDescriptor, error)

	// TabletsRecovered is called by the master that drove recovery for a
	// crashed server's partition, reporting which replicas it pulled
	// recovery data from and installing newServerID as the new owner of
	// the given tablets, transitioning them back to Normal.
	TabletsRecovered(crashedServerID, newServerID uint64, tablets []tablet.Tablet, replicas []recovery.ReplicaEntry) error
}
