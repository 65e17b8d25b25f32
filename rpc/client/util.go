package client

import (
	"fmt"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/ramforge/ramforge/master"
	"github.com/ramforge/ramforge/rpc/common"
	"github.com/ramforge/ramforge/rpc/serializer"
	"github.com/ramforge/ramforge/rpc/transport"
)

var Logger = logger.GetLogger("rpc")

// rpcClientAdapter stores everything a master RPC client needs to round
// trip a request: which transport/serializer pair to use and the config
// the transport was dialed with.
type rpcClientAdapter struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// masterShardID is the wire shard selector every master RPC is sent
// under. There is exactly one master identity behind a given endpoint
// now (see rpc/server.rpcServer), so unlike the old per-table-shard
// client this is a constant rather than a per-call parameter.
const masterShardID = 0

// invokeRPCRequest serializes req, round trips it over transport, and
// deserializes the response. It does not itself turn a failure status
// into a Go error -- see masterErr -- since a non-OK response (wrong
// version, table doesn't exist, ...) is a normal, typed outcome callers
// need the Status/Version to act on, not a transport-level failure.
func invokeRPCRequest(req *common.Message, t transport.IRPCClientTransport, ser serializer.IRPCSerializer) (*common.Message, error) {
	reqBytes, err := ser.Serialize(*req)
	if err != nil {
		return nil, fmt.Errorf("rpc client: failed to serialize request: %w", err)
	}

	respBytes, err := t.Send(masterShardID, reqBytes)
	if err != nil {
		return nil, fmt.Errorf("rpc client: send failed: %w", err)
	}

	resp := &common.Message{}
	if err := ser.Deserialize(respBytes, resp); err != nil {
		return nil, fmt.Errorf("rpc client: failed to deserialize response: %w", err)
	}

	if resp.MsgType == common.MsgTError {
		return nil, fmt.Errorf("rpc client: %s", resp.Err)
	}
	if resp.MsgType != req.MsgType {
		return nil, fmt.Errorf("rpc client: unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}
	return resp, nil
}

// masterErr reconstructs the typed *master.Error a handler returned, if
// resp.Err is set. A response with no Err is a success and yields nil.
func masterErr(resp *common.Message) error {
	if resp.Err == "" {
		return nil
	}
	return master.NewError(master.Status(resp.Status), resp.Version, resp.Err)
}
