package tcp

import (
	"net"
	"time"

	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/transport"
	"github.com/ramforge/ramforge/rpc/transport/base"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("tcp", endpoint)
}

// UpgradeConnection mirrors the server side's socket tuning so a recovery
// fetch connection gets the same Nagle/buffer/keep-alive treatment as a
// normal client connection.
func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}

	if err := tcpConn.SetNoDelay(config.TCPNoDelay); err != nil {
		return err
	}
	if config.WriteBufferSize > 0 {
		if err := tcpConn.SetWriteBuffer(config.WriteBufferSize); err != nil {
			return err
		}
	}
	if config.ReadBufferSize > 0 {
		if err := tcpConn.SetReadBuffer(config.ReadBufferSize); err != nil {
			return err
		}
	}
	if config.TCPKeepAliveSec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return err
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(config.TCPKeepAliveSec) * time.Second); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewTCPClientTransport creates a new TCP client transport
func NewTCPClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
