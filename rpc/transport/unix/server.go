package unix

import (
	"fmt"
	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/transport"
	"github.com/ramforge/ramforge/rpc/transport/base"
	"net"
	"os"
)

const (
	defaultBufferSize = 64 * 1024 // 64 KB
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	socketPath := config.Endpoint

	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %v", err)
	}

	// Create Unix socket listener
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %v", err)
	}

	return listener, nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixDefaultServerTransport creates a new Unix server transport with default buffer size
func NewUnixDefaultServerTransport() transport.IRPCServerTransport {
	return NewUnixServerTransport(defaultBufferSize, 1)
}

// NewUnixServerTransport creates a new Unix server transport with the
// specified buffer size and per-connection worker concurrency.
func NewUnixServerTransport(bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize, maxWorkersPerConn)
}
