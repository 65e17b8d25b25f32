package common

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShardType names which coordinator backs a partition shard: the
// in-process single-node coordinator, or a raft-replicated one reachable
// over the cluster.
type ServerShardType string

const (
	ShardTypeLocalCoordinator  ServerShardType = "local coordinator"
	ShardTypeRaftCoordinator                   = "raft coordinator"
)

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type names the coordinator backing the shard
	Type ServerShardType
}

// ServerConfig holds all configuration parameters for the master node,
// both its RAFT-replicated coordinator cluster and its own object-store
// tuning knobs.
type ServerConfig struct {
	// whether to start the server in single node mode or in a cluster
	Shards []ServerShard

	// Dragenboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string

	// timeout for raft coordinator calls, the backup fetch client, and the
	// tcp/unix server transports' per-connection read/write deadlines
	TimeoutSecond int64

	// Transport listen address, shared by the tcp/unix/http server
	// transports. The socket tuning fields are not applied to accepted
	// connections: the base server transport never calls the tcp
	// serverConnector's UpgradeConnection.
	Endpoint        string
	TCPNoDelay      bool
	WriteBufferSize int
	ReadBufferSize  int
	TCPKeepAliveSec int
	TCPLingerSec    int

	// Logging configuration
	LogLevel string

	// Master tuning (spec §4.A/E/G)
	HashIndexCapacity int           // initial hash-index slot capacity
	RecoveryFanout    int           // K, max in-flight recovery fetches per partition
	DispatchPollBudget time.Duration // fast-poll budget before a worker parks
	HistogramName     string        // VictoriaMetrics metric name for the hash index's lookup-latency histogram
}

// HasRemoteShard checks if the configuration contains any raft-backed shards
func (c *ServerConfig) HasRemoteShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRaftCoordinator {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("TCP No Delay", fmt.Sprintf("%t", c.TCPNoDelay))
	addField("Write Buffer", strconv.Itoa(c.WriteBufferSize))
	addField("Read Buffer", strconv.Itoa(c.ReadBufferSize))

	// Master tuning
	addSection("Master")
	addField("Hash Index Capacity", strconv.Itoa(c.HashIndexCapacity))
	addField("Recovery Fanout (K)", strconv.Itoa(c.RecoveryFanout))
	addField("Dispatch Poll Budget", c.DispatchPollBudget.String())
	addField("Histogram Name", c.HistogramName)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	if c.HasRemoteShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))
		addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		// ConfServerModeMultiNode configuration
		addSection("ConfServerModeMultiNode")
		sb.WriteString("  Initial ConfServerModeMultiNode Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Endpoints              []string
	TimeoutSecond          int
	RetryCount             int
	ConnectionsPerEndpoint int

	// Socket tuning applied by transports that dial real sockets (tcp)
	TCPNoDelay      bool
	WriteBufferSize int
	ReadBufferSize  int
	TCPKeepAliveSec int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
