// Package server implements the master's RPC server: it owns one
// master.Master (object log, hash index, tablet map, recovery
// coordinator), the dispatch.Dispatcher that fans incoming requests out
// to bounded-concurrency worker pools, and optionally one or more
// coordinator.Coordinator shards co-located in the same process.
//
// The package focuses on:
//   - Wiring a master.Master to its dispatch.Dispatcher via
//     RegisterMasterServices, one service per common.MessageType.
//   - Peeking the wire envelope's MsgType to route a transport callback
//     to the right dispatch service (see rpcServer.registerTransportHandler).
//   - Starting any raft-backed coordinator shards this process co-hosts,
//     and constructing the backup/rpcclient.Client the master's recovery
//     coordinator fetches segment data through.
//
// Key Components:
//
//   - NewRPCServer: factory function creating a configured server with
//     the specified transport and serializer mechanisms.
//
//   - RegisterMasterServices (master_adapter.go): installs one dispatch
//     service per master RPC operation (Create, Read, Write, Remove,
//     MultiRead, SetTablets, Recover, Ping).
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 1, Type: common.ShardTypeLocalCoordinator},
//	  },
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPServerTransportWithOptions(64*1024, 4),
//	  serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// A server co-hosts at most as many coordinator shards as config.Shards
// names; ShardTypeRaftCoordinator requires the RAFT configuration fields
// (RTTMillisecond, SnapshotEntries, CompactionOverhead, DataDir,
// ReplicaID, ClusterMembers) to be set, since the shard is started as a
// dragonboat replica on this node's NodeHost.
//
// Thread Safety:
//
//	The server is safe for concurrent RPCs once Serve has returned from
//	init: each dispatch service bounds its own concurrency independently.
//	Serve itself should be called exactly once.
package server
