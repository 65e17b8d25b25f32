package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/ramforge/ramforge/backup/rpcclient"
	"github.com/ramforge/ramforge/coordinator"
	coordinatorlocal "github.com/ramforge/ramforge/coordinator/local"
	coordinatorraft "github.com/ramforge/ramforge/coordinator/raft"
	"github.com/ramforge/ramforge/dispatch"
	"github.com/ramforge/ramforge/master"
	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/serializer"
	"github.com/ramforge/ramforge/rpc/transport"
	"github.com/ramforge/ramforge/rpc/transport/tcp"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server. It wires one master.Master (this
// node's own object log, hash index and tablet map) behind a
// dispatch.Dispatcher, and optionally one or more coordinator.Coordinator
// shards co-located in the same process (config.Shards), per the cluster
// membership/tablet ownership authority described in package coordinator.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPServerTransportWithOptions(64*1024, 4),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return rpcServer{
		config:       config,
		transport:    transport,
		serializer:   serializer,
		coordinators: make(map[uint64]coordinator.Coordinator),
	}
}

// rpcServer holds one master, its dispatcher, and every coordinator shard
// this process co-hosts. It replaces the old per-shard store/adapter
// model: a master server now has exactly one object-store identity, and
// the dispatch service selector (not a shard ID) picks the operation.
type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	dispatcher *dispatch.Dispatcher
	master     *master.Master

	// coordinators holds every coordinator shard configured for this
	// process, keyed by ServerShard.ShardID. Most deployments configure
	// exactly one; the map mirrors config.Shards' "any number of
	// shards" flexibility rather than hardcoding a single slot.
	coordinators map[uint64]coordinator.Coordinator
}

// Coordinator returns the coordinator shard registered under shardID, if
// this process co-hosts one. cmd/ tooling that needs direct (in-process)
// access to cluster membership/tablet assignment uses this rather than a
// wire round trip.
func (s *rpcServer) Coordinator(shardID uint64) (coordinator.Coordinator, bool) {
	c, ok := s.coordinators[shardID]
	return c, ok
}

// Master exposes the master this server dispatches object operations
// against, e.g. for cmd/ inspection commands.
func (s *rpcServer) Master() *master.Master {
	return s.master
}

// registerTransportHandler wires the transport's single wire-level
// callback to dispatch.Submit. Unlike dispatch.HandleRPC, the service
// selector here isn't a leading byte on the wire (master_adapter.go's
// handlers each deserialize the full common.Message themselves, the same
// bytes dispatch carries as its opaque req) -- it's the envelope's own
// MsgType field, so the transport handler has to peek that field before
// it can route.
func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(_ uint64, req []byte) []byte {
		var msg common.Message
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			return mustSerialize(s.serializer, common.NewErrorResponse(fmt.Sprintf("failed to deserialize request: %s", err)))
		}

		resp, err := s.dispatcher.Submit(context.Background(), serviceFor(msg.MsgType), req)
		if err != nil {
			return mustSerialize(s.serializer, common.NewErrorResponse(err.Error()))
		}
		return resp
	})
}

func (s *rpcServer) init() error {
	// Init logger
	common.InitLoggers(s.config)

	// Create the Dragonboat NodeHost, if any shard is raft-backed.
	var nodeHost *dragonboat.NodeHost
	var err error
	if s.config.HasRemoteShard() {
		nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	timeout := time.Duration(s.config.TimeoutSecond) * time.Second

	// CREATE COORDINATOR SHARDS
	//
	// Note: a single RPC server can co-host any number of coordinator
	// shards, local or raft-backed, alongside its own master. Most
	// deployments configure at most one.
	for _, shardConfig := range s.config.Shards {
		switch shardConfig.Type {
		case common.ShardTypeLocalCoordinator:
			s.coordinators[shardConfig.ShardID] = coordinatorlocal.New()
			Logger.Infof("created local coordinator for shard %d", shardConfig.ShardID)

		case common.ShardTypeRaftCoordinator:
			if nodeHost == nil {
				return fmt.Errorf("node host is nil, cannot create raft coordinator")
			}
			factory := coordinatorraft.CreateStateMachineFactory()
			if err := nodeHost.StartConcurrentReplica(s.config.ClusterMembers, false, factory, s.config.ToDragonboatConfig(shardConfig.ShardID)); err != nil {
				return fmt.Errorf("failed to start coordinator shard %d: %w", shardConfig.ShardID, err)
			}
			s.coordinators[shardConfig.ShardID] = coordinatorraft.New(nodeHost, shardConfig.ShardID, timeout)
			Logger.Infof("created raft coordinator for shard %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	// BACKUP FETCH CLIENT
	//
	// The master pulls recovery data from backups over the same
	// transport/serializer stack it serves its own RPCs with, dialing
	// each backup's locator as a plain TCP peer regardless of which
	// transport this server itself listens on.
	fetcher, err := rpcclient.New(tcp.NewTCPClientTransport(), s.serializer, common.ClientConfig{
		TimeoutSecond: int(s.config.TimeoutSecond),
		RetryCount:    3,
	})
	if err != nil {
		return fmt.Errorf("failed to create backup fetch client: %w", err)
	}

	// MASTER + DISPATCH
	s.master = master.New(master.Config{
		HashIndexCapacity: s.config.HashIndexCapacity,
		RecoveryChannels:  s.config.RecoveryFanout,
		HistogramName:     s.config.HistogramName,
	}, fetcher)

	s.dispatcher = dispatch.New(s.config.DispatchPollBudget)

	maxConcurrency := runtime.NumCPU() * 4
	RegisterMasterServices(s.dispatcher, s.master, s.serializer, maxConcurrency, s.config.RecoveryFanout)

	Logger.Infof("master setup completed successfully")

	s.registerTransportHandler()
	return nil
}

// Serve starts the RPC server. It initializes the master, its dispatcher,
// every configured coordinator shard, then blocks listening on the
// transport.
func (s *rpcServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Shutdown drains the dispatcher's outstanding work before the process
// exits; the transport itself has no graceful-stop path in this stack.
func (s *rpcServer) Shutdown() {
	if s.dispatcher != nil {
		s.dispatcher.Shutdown()
	}
}
