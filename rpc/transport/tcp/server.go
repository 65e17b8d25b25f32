package tcp

import (
	"fmt"
	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/transport"
	"github.com/ramforge/ramforge/rpc/transport/base"
	"net"
	"time"
)

const (
	defaultBufferSize = 512 * 1024 // 512 KB
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "tcp"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	// Create TCP socket listener
	listener, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create TCP socket: %v", err)
	}

	return listener, nil
}

// UpgradeConnection applies performance optimizations to a TCP connection
// using the TCPNoDelay, buffer, keep-alive and linger fields of ServerConfig.
// The base server transport does not call it.
func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil // Not a TCP connection, nothing to upgrade
	}

	// Apply TCP-specific settings
	// Disable Nagle's algorithm (TCPNoDelay) if configured
	if err := tcpConn.SetNoDelay(config.TCPNoDelay); err != nil {
		return err
	}

	// Set socket write buffer size if configured
	if config.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return err
		}
	}

	// Set socket read buffer size if configured
	if config.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(config.ReadBufferSize); err != nil {
			return err
		}
	}

	// Enable TCP keep-alive if configured
	if config.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}

		// Set keep-alive period
		keepAlivePeriod := time.Duration(config.TCPKeepAliveSec) * time.Second
		if err := tcpConn.SetKeepAlivePeriod(keepAlivePeriod); err != nil {
			return err
		}
	}

	// Set TCP linger option if configured
	if config.TCPLingerSec >= 0 {
		if err := tcpConn.SetLinger(config.TCPLingerSec); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPServerTransport creates a new TCP server transport with default
// buffer size and one worker per connection.
func NewTCPServerTransport() transport.IRPCServerTransport {
	return NewTCPServerTransportWithOptions(defaultBufferSize, 1)
}

// NewTCPServerTransportWithOptions creates a new TCP server transport with
// an explicit read buffer size and per-connection worker concurrency.
func NewTCPServerTransportWithOptions(bufferSize int, maxWorkersPerConn int) transport.IRPCServerTransport {
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize, maxWorkersPerConn)
}
