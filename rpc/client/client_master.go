package client

import (
	"context"
	"fmt"

	"github.com/ramforge/ramforge/master"
	"github.com/ramforge/ramforge/master/recovery"
	"github.com/ramforge/ramforge/master/tablet"
	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/serializer"
	"github.com/ramforge/ramforge/rpc/transport"
)

// MasterClient is the RPC client analogue of master.Master's operation
// surface (spec §6/§7): every method here is a round trip to whichever
// master owns the addressed table, returning the same typed *master.Error
// a local call to master.Master would on failure.
type MasterClient interface {
	Create(tableID uint32, payload []byte) (objectID uint64, version uint64, err error)
	Read(tableID uint32, objectID uint64, rules master.RejectRules) (payload []byte, version uint64, err error)
	Write(tableID uint32, objectID uint64, payload []byte, rules master.RejectRules) (version uint64, err error)
	Remove(tableID uint32, objectID uint64, rules master.RejectRules) (version uint64, err error)
	MultiRead(keys []master.ObjectKey) ([]master.MultiReadResult, error)
	SetTablets(tablets []*tablet.Tablet) error
	Recover(ctx context.Context, crashedMasterID, partitionID uint64, owned []*tablet.Tablet, replicas []recovery.ReplicaEntry) ([]recovery.ReplicaEntry, error)
	Ping() error
	Close() error
}

// NewMasterClient dials a master server over t, encoding requests with
// ser. The transport is connected eagerly so construction fails fast on
// a bad endpoint rather than on the first call.
func NewMasterClient(
	config common.ClientConfig,
	t transport.IRPCClientTransport,
	ser serializer.IRPCSerializer,
) (MasterClient, error) {
	if err := t.Connect(config); err != nil {
		return nil, fmt.Errorf("rpc client: failed to connect: %w", err)
	}
	return &masterClient{rpcClientAdapter{config: config, transport: t, serializer: ser}}, nil
}

type masterClient struct {
	rpcClientAdapter
}

func (c *masterClient) Create(tableID uint32, payload []byte) (uint64, uint64, error) {
	req := common.NewCreateRequest(tableID, payload)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return 0, master.VersionNonexistent, err
	}
	return resp.ObjectID, resp.Version, masterErr(resp)
}

func (c *masterClient) Read(tableID uint32, objectID uint64, rules master.RejectRules) ([]byte, uint64, error) {
	req := common.NewReadRequest(tableID, objectID, common.FromMasterRejectRules(rules))
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, master.VersionNonexistent, err
	}
	return resp.Payload, resp.Version, masterErr(resp)
}

func (c *masterClient) Write(tableID uint32, objectID uint64, payload []byte, rules master.RejectRules) (uint64, error) {
	req := common.NewWriteRequest(tableID, objectID, payload, common.FromMasterRejectRules(rules))
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return master.VersionNonexistent, err
	}
	return resp.Version, masterErr(resp)
}

func (c *masterClient) Remove(tableID uint32, objectID uint64, rules master.RejectRules) (uint64, error) {
	req := common.NewRemoveRequest(tableID, objectID, common.FromMasterRejectRules(rules))
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return master.VersionNonexistent, err
	}
	return resp.Version, masterErr(resp)
}

func (c *masterClient) MultiRead(keys []master.ObjectKey) ([]master.MultiReadResult, error) {
	wireKeys := make([]common.ObjectKey, len(keys))
	for i, k := range keys {
		wireKeys[i] = common.ObjectKey{TableID: k.TableID, ObjectID: k.ObjectID}
	}

	req := common.NewMultiReadRequest(wireKeys)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}

	results := make([]master.MultiReadResult, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = master.MultiReadResult{Status: master.Status(r.Status), Version: r.Version, Payload: r.Payload}
	}
	return results, nil
}

func (c *masterClient) SetTablets(tablets []*tablet.Tablet) error {
	req := common.NewSetTabletsRequest(toTabletDescriptors(tablets))
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return err
	}
	return masterErr(resp)
}

func (c *masterClient) Recover(_ context.Context, crashedMasterID, partitionID uint64, owned []*tablet.Tablet, replicas []recovery.ReplicaEntry) ([]recovery.ReplicaEntry, error) {
	wireReplicas := make([]common.ReplicaDescriptor, len(replicas))
	for i, r := range replicas {
		wireReplicas[i] = common.ReplicaDescriptor{SegmentID: r.SegmentID, BackupLocator: r.BackupLocator, Status: uint8(r.Status)}
	}

	req := common.NewRecoverRequest(crashedMasterID, partitionID, toTabletDescriptors(owned), wireReplicas)
	resp, err := invokeRPCRequest(req, c.transport, c.serializer)
	if err != nil {
		return nil, err
	}

	result := make([]recovery.ReplicaEntry, len(resp.Replicas))
	for i, r := range resp.Replicas {
		result[i] = recovery.ReplicaEntry{SegmentID: r.SegmentID, BackupLocator: r.BackupLocator, Status: recovery.Status(r.Status)}
	}
	return result, masterErr(resp)
}

func (c *masterClient) Ping() error {
	resp, err := invokeRPCRequest(common.NewPingRequest(), c.transport, c.serializer)
	if err != nil {
		return err
	}
	return masterErr(resp)
}

func (c *masterClient) Close() error {
	return c.transport.Close()
}

func toTabletDescriptors(tablets []*tablet.Tablet) []common.TabletDescriptor {
	out := make([]common.TabletDescriptor, len(tablets))
	for i, t := range tablets {
		out[i] = common.TabletDescriptor{TableID: t.TableID, StartID: t.StartID, EndID: t.EndID, State: uint8(t.State), TableRef: t.TableRef}
	}
	return out
}

var _ MasterClient = (*masterClient)(nil)
