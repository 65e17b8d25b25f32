// Package rpcclient implements backup.Client over the same rpc/transport
// + rpc/serializer stack the master's own client-facing RPCs use, rather
// than inventing a second wire protocol for the backup fetch path.
package rpcclient

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/lni/dragonboat/v4/logger"

	"github.com/ramforge/ramforge/backup"
	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/serializer"
	"github.com/ramforge/ramforge/rpc/transport"
)

var log = logger.GetLogger("backup")

// backupShardID is the shard selector the backup fetch protocol is
// registered under on the wire; backups speak no other shard, so it is
// a fixed constant rather than a per-call parameter.
const backupShardID = 0

// Client implements backup.Client by dialing backup servers through an
// IRPCClientTransport. One Client instance is shared across every backup
// locator this master talks to during a recovery: Connect is called before
// every request, against that request's locator, and the transport pools
// its own connections per endpoint.
type Client struct {
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	config     common.ClientConfig

	decoder *zstd.Decoder
}

// New creates a backup.Client that dials through the given transport
// (typically tcp.NewTCPClientTransport()), encoding requests with ser.
// config.Endpoints is overwritten per-call with the target backupLocator
// before connecting, so the caller only needs to set timeouts/retries.
func New(t transport.IRPCClientTransport, ser serializer.IRPCSerializer, config common.ClientConfig) (*Client, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("backup rpcclient: failed to create zstd decoder: %w", err)
	}
	return &Client{transport: t, serializer: ser, config: config, decoder: dec}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backup.Client)
// --------------------------------------------------------------------------

func (c *Client) StartReadingData(ctx context.Context, backupLocator string, crashedMasterID uint64) error {
	if err := c.dial(backupLocator); err != nil {
		return err
	}

	req := common.NewBackupStartReadingRequest(crashedMasterID)
	resp, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	if resp.Err != "" {
		return fmt.Errorf("backup %s: %s", backupLocator, resp.Err)
	}
	return nil
}

func (c *Client) GetRecoveryData(ctx context.Context, backupLocator string, crashedMasterID, segmentID, partitionID uint64) ([]byte, error) {
	if err := c.dial(backupLocator); err != nil {
		return nil, err
	}

	req := common.NewBackupGetDataRequest(crashedMasterID, segmentID, partitionID)
	resp, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Err != "" {
		return nil, fmt.Errorf("backup %s: segment %d: %s", backupLocator, segmentID, resp.Err)
	}

	if len(resp.Meta) > 0 && resp.Meta[0] == 1 {
		out, err := c.decoder.DecodeAll(resp.Payload, nil)
		if err != nil {
			return nil, fmt.Errorf("backup %s: segment %d: zstd decompress: %w", backupLocator, segmentID, err)
		}
		return out, nil
	}
	return resp.Payload, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// dial (re)connects the transport to backupLocator. Connect is cheap to
// call repeatedly against the same transport implementation (see
// rpc/transport/base): it tears down and re-establishes the pool, so a
// recovery that fetches from many backups in sequence simply redials.
func (c *Client) dial(backupLocator string) error {
	cfg := c.config
	cfg.Endpoints = []string{backupLocator}
	if err := c.transport.Connect(cfg); err != nil {
		return fmt.Errorf("backup rpcclient: failed to connect to %s: %w", backupLocator, err)
	}
	return nil
}

func (c *Client) roundTrip(req *common.Message) (*common.Message, error) {
	raw, err := c.serializer.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("backup rpcclient: failed to serialize request: %w", err)
	}

	respRaw, err := c.transport.Send(backupShardID, raw)
	if err != nil {
		return nil, fmt.Errorf("backup rpcclient: send failed: %w", err)
	}

	var resp common.Message
	if err := c.serializer.Deserialize(respRaw, &resp); err != nil {
		return nil, fmt.Errorf("backup rpcclient: failed to deserialize response: %w", err)
	}

	log.Debugf("backup rpcclient: %s round trip ok", req.MsgType)
	return &resp, nil
}

// Close tears down the underlying transport's connections.
func (c *Client) Close() error {
	return c.transport.Close()
}

var _ backup.Client = (*Client)(nil)
