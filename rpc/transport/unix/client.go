package unix

import (
	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/transport"
	"github.com/ramforge/ramforge/rpc/transport/base"
	"net"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(endpoint string) (net.Conn, error) {
	return net.Dial("unix", endpoint)
}

// UpgradeConnection is a no-op for Unix sockets; there are no
// protocol-specific settings to apply to an established connection.
func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	return nil
}

// --------------------------------------------------------------------------
// Client Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixClientTransport creates a new Unix client transport
func NewUnixClientTransport() transport.IRPCClientTransport {
	return base.NewBaseClientTransport(&clientConnector{})
}
