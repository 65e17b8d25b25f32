package server

import (
	"context"
	"fmt"

	"github.com/ramforge/ramforge/dispatch"
	"github.com/ramforge/ramforge/master"
	"github.com/ramforge/ramforge/master/recovery"
	"github.com/ramforge/ramforge/master/tablet"
	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/serializer"
)

// RegisterMasterServices installs one dispatch service per master RPC
// operation. The dispatch ServiceType for each is the corresponding
// common.MessageType, so a service's wire selector and its message
// envelope's MsgType are always the same byte: a caller that already has
// a deserialized *common.Message needs only cast its MsgType once.
//
// maxConcurrency bounds how many of a given operation run at once on this
// master (§4.G); Recover is intentionally given its own, usually smaller,
// bound since it does cluster-wide fan-out work rather than a single
// object access.
func RegisterMasterServices(d *dispatch.Dispatcher, m *master.Master, ser serializer.IRPCSerializer, maxConcurrency, recoverConcurrency int) {
	register := func(msgType common.MessageType, handle func(ctx context.Context, req *common.Message) *common.Message, concurrency int) {
		d.Register(serviceFor(msgType), func(ctx context.Context, raw []byte) []byte {
			var req common.Message
			if err := ser.Deserialize(raw, &req); err != nil {
				return mustSerialize(ser, common.NewErrorResponse(fmt.Sprintf("master adapter: bad request: %s", err)))
			}
			return mustSerialize(ser, handle(ctx, &req))
		}, concurrency)
	}

	register(common.MsgTCreate, handleCreate(m), maxConcurrency)
	register(common.MsgTRead, handleRead(m), maxConcurrency)
	register(common.MsgTWrite, handleWrite(m), maxConcurrency)
	register(common.MsgTRemove, handleRemove(m), maxConcurrency)
	register(common.MsgTMultiRead, handleMultiRead(m), maxConcurrency)
	register(common.MsgTSetTablets, handleSetTablets(m), 1)
	register(common.MsgTRecover, handleRecover(m), recoverConcurrency)
	register(common.MsgTPing, handlePing(m), maxConcurrency)
}

func handleCreate(m *master.Master) func(context.Context, *common.Message) *common.Message {
	return func(_ context.Context, req *common.Message) *common.Message {
		objectID, version, err := m.Create(req.TableID, req.Payload)
		return common.NewCreateResponse(objectID, version, err)
	}
}

func handleRead(m *master.Master) func(context.Context, *common.Message) *common.Message {
	return func(_ context.Context, req *common.Message) *common.Message {
		payload, version, err := m.Read(req.TableID, req.ObjectID, common.ToMasterRejectRules(req.Rules))
		return common.NewReadResponse(payload, version, err)
	}
}

func handleWrite(m *master.Master) func(context.Context, *common.Message) *common.Message {
	return func(_ context.Context, req *common.Message) *common.Message {
		version, err := m.Write(req.TableID, req.ObjectID, req.Payload, common.ToMasterRejectRules(req.Rules))
		return common.NewWriteResponse(version, err)
	}
}

func handleRemove(m *master.Master) func(context.Context, *common.Message) *common.Message {
	return func(_ context.Context, req *common.Message) *common.Message {
		version, err := m.Remove(req.TableID, req.ObjectID, common.ToMasterRejectRules(req.Rules))
		return common.NewRemoveResponse(version, err)
	}
}

func handleMultiRead(m *master.Master) func(context.Context, *common.Message) *common.Message {
	return func(_ context.Context, req *common.Message) *common.Message {
		keys := make([]master.ObjectKey, len(req.Keys))
		for i, k := range req.Keys {
			keys[i] = master.ObjectKey{TableID: k.TableID, ObjectID: k.ObjectID}
		}
		results := m.MultiRead(keys)
		wire := make([]common.MultiReadResult, len(results))
		for i, r := range results {
			wire[i] = common.MultiReadResult{Status: uint8(r.Status), Version: r.Version, Payload: r.Payload}
		}
		return common.NewMultiReadResponse(wire)
	}
}

func handleSetTablets(m *master.Master) func(context.Context, *common.Message) *common.Message {
	return func(_ context.Context, req *common.Message) *common.Message {
		tablets := make([]*tablet.Tablet, len(req.Tablets))
		for i, t := range req.Tablets {
			tablets[i] = &tablet.Tablet{
				TableID:  t.TableID,
				StartID:  t.StartID,
				EndID:    t.EndID,
				State:    tablet.State(t.State),
				TableRef: t.TableRef,
			}
		}
		m.SetTablets(tablets)
		return common.NewSetTabletsResponse(nil)
	}
}

func handleRecover(m *master.Master) func(context.Context, *common.Message) *common.Message {
	return func(ctx context.Context, req *common.Message) *common.Message {
		owned := make([]*tablet.Tablet, len(req.Tablets))
		for i, t := range req.Tablets {
			owned[i] = &tablet.Tablet{
				TableID:  t.TableID,
				StartID:  t.StartID,
				EndID:    t.EndID,
				State:    tablet.State(t.State),
				TableRef: t.TableRef,
			}
		}
		replicas := make([]recovery.ReplicaEntry, len(req.Replicas))
		for i, r := range req.Replicas {
			replicas[i] = recovery.ReplicaEntry{SegmentID: r.SegmentID, BackupLocator: r.BackupLocator, Status: recovery.Status(r.Status)}
		}

		result, err := m.Recover(ctx, req.CrashedMasterID, req.PartitionID, owned, replicas)

		wire := make([]common.ReplicaDescriptor, len(result))
		for i, r := range result {
			wire[i] = common.ReplicaDescriptor{SegmentID: r.SegmentID, BackupLocator: r.BackupLocator, Status: uint8(r.Status)}
		}
		return common.NewRecoverResponse(wire, err)
	}
}

func handlePing(m *master.Master) func(context.Context, *common.Message) *common.Message {
	return func(_ context.Context, _ *common.Message) *common.Message {
		return common.NewPingResponse(m.Ping())
	}
}

// serviceFor maps a message type onto its dispatch service selector. The
// identity mapping keeps the wire selector and the envelope's MsgType in
// lockstep; it is a function rather than a bare cast so the intent reads
// at call sites and so the mapping has one place to change if the two
// byte spaces ever need to diverge.
func serviceFor(msgType common.MessageType) dispatch.ServiceType {
	return dispatch.ServiceType(msgType)
}

func mustSerialize(ser serializer.IRPCSerializer, msg *common.Message) []byte {
	data, err := ser.Serialize(*msg)
	if err != nil {
		// The serializer failing on our own response type means the
		// wire format itself is broken; nothing downstream can recover
		// from that, so surface it as an opaque error frame instead of
		// panicking the dispatch worker.
		data, _ = ser.Serialize(*common.NewErrorResponse(fmt.Sprintf("master adapter: failed to serialize response: %s", err)))
	}
	return data
}
