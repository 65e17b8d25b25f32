// Package client implements an RPC client for the master's operation
// surface: Create/Read/Write/Remove/MultiRead, SetTablets, Recover, and
// Ping, over the rpc/transport + rpc/serializer stack.
//
// The package focuses on:
//   - Transparent RPC access to a remote master.Master
//   - Integration with the transport and serialization layers
//   - Reconstructing the same typed *master.Error a local call would
//     return, from a response's Status/Err/Version fields
//
// Key Components:
//
//   - NewMasterClient: factory function creating a client implementing
//     MasterClient, forwarding every operation to a remote master over
//     the configured transport.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:8080"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	ser := serializer.NewBinarySerializer()
//	m, _ := client.NewMasterClient(config, tcp.NewTCPClientTransport(), ser)
//
//	id, version, err := m.Create(tableID, []byte("value"))
//	payload, version, err := m.Read(tableID, id, master.RejectRules{})
//
// Performance Considerations:
//
//   - For applications that frequently send large payloads, increasing
//     ConnectionsPerEndpoint can improve throughput by allowing parallel
//     requests.
//
//   - The choice of serializer significantly affects performance. The
//     binary serializer provides the best performance and smallest
//     payload size.
//
// Thread Safety:
//
//	A MasterClient is safe for concurrent use from multiple goroutines;
//	the underlying transport pools its own connections.
package client
