package common

import (
	"encoding/json"
	"fmt"

	"github.com/ramforge/ramforge/master"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// RejectRules mirrors master.RejectRules on the wire. It is its own type
// rather than a reuse of master.RejectRules so this package never needs
// master's internal evaluate method, only its field shape.
type RejectRules struct {
	Exists         bool   `json:"exists,omitempty"`
	DoesntExist    bool   `json:"doesntExist,omitempty"`
	VersionLeGiven bool   `json:"versionLeGiven,omitempty"`
	VersionNeGiven bool   `json:"versionNeGiven,omitempty"`
	GivenVersion   uint64 `json:"givenVersion,omitempty"`
}

func (rr RejectRules) toMaster() master.RejectRules {
	return master.RejectRules{
		Exists:         rr.Exists,
		DoesntExist:    rr.DoesntExist,
		VersionLeGiven: rr.VersionLeGiven,
		VersionNeGiven: rr.VersionNeGiven,
		GivenVersion:   rr.GivenVersion,
	}
}

// ToMasterRejectRules converts the wire representation to master's own
// type, for use by the server-side handlers in rpc/server.
func ToMasterRejectRules(rr RejectRules) master.RejectRules {
	return rr.toMaster()
}

// FromMasterRejectRules converts master's own type to the wire
// representation, for use building requests client-side.
func FromMasterRejectRules(rr master.RejectRules) RejectRules {
	return RejectRules{
		Exists:         rr.Exists,
		DoesntExist:    rr.DoesntExist,
		VersionLeGiven: rr.VersionLeGiven,
		VersionNeGiven: rr.VersionNeGiven,
		GivenVersion:   rr.GivenVersion,
	}
}

// ObjectKey identifies one object in a MultiRead request.
type ObjectKey struct {
	TableID  uint32 `json:"tableId"`
	ObjectID uint64 `json:"objectId"`
}

// MultiReadResult carries one object's outcome in a MultiRead response.
type MultiReadResult struct {
	Status  uint8  `json:"status"`
	Version uint64 `json:"version,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

// TabletDescriptor carries one tablet in a SetTablets request.
type TabletDescriptor struct {
	TableID  uint32 `json:"tableId"`
	StartID  uint64 `json:"startId"`
	EndID    uint64 `json:"endId"`
	State    uint8  `json:"state"`
	TableRef uint64 `json:"tableRef"`
}

// ReplicaDescriptor carries one replica's recovery-fetch state, for both
// the Recover request (what to try) and its response (what happened).
type ReplicaDescriptor struct {
	SegmentID     uint64 `json:"segmentId"`
	BackupLocator string `json:"backupLocator"`
	Status        uint8  `json:"status"`
}

// Message represents a single message used for both requests and
// responses. Which fields are populated depends on MsgType.
type Message struct {
	MsgType MessageType `json:"msg_type"`

	// Object addressing, shared by Create/Read/Write/Remove/MultiRead.
	TableID  uint32 `json:"tableId,omitempty"`
	ObjectID uint64 `json:"objectId,omitempty"`

	// Payload and version, shared by Create/Read/Write.
	Payload []byte `json:"payload,omitempty"`
	Version uint64 `json:"version,omitempty"`

	// RejectRules, used by Read/Write/Remove requests.
	Rules RejectRules `json:"rules,omitempty"`

	// MultiRead
	Keys    []ObjectKey       `json:"keys,omitempty"`
	Results []MultiReadResult `json:"results,omitempty"`

	// SetTablets
	Tablets []TabletDescriptor `json:"tablets,omitempty"`

	// Recover, and the backup fetch protocol (BackupStartReading/
	// BackupGetData reuse CrashedMasterID/PartitionID; SegmentID
	// additionally selects one segment within that partition).
	CrashedMasterID uint64              `json:"crashedMasterId,omitempty"`
	PartitionID     uint64              `json:"partitionId,omitempty"`
	SegmentID       uint64              `json:"segmentId,omitempty"`
	Replicas        []ReplicaDescriptor `json:"replicas,omitempty"`

	// Response status, set on every response.
	Status uint8 `json:"status,omitempty"`

	Err string `json:"err,omitempty"`

	Meta []byte `json:"meta,omitempty"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewCreateRequest creates a new Create request.
func NewCreateRequest(tableID uint32, payload []byte) *Message {
	return &Message{MsgType: MsgTCreate, TableID: tableID, Payload: payload}
}

// NewCreateResponse creates a new Create response.
func NewCreateResponse(objectID, version uint64, err error) *Message {
	msg := &Message{MsgType: MsgTCreate, ObjectID: objectID, Version: version}
	setErr(msg, err)
	return msg
}

// NewReadRequest creates a new Read request.
func NewReadRequest(tableID uint32, objectID uint64, rules RejectRules) *Message {
	return &Message{MsgType: MsgTRead, TableID: tableID, ObjectID: objectID, Rules: rules}
}

// NewReadResponse creates a new Read response.
func NewReadResponse(payload []byte, version uint64, err error) *Message {
	msg := &Message{MsgType: MsgTRead, Payload: payload, Version: version}
	setErr(msg, err)
	return msg
}

// NewWriteRequest creates a new Write request.
func NewWriteRequest(tableID uint32, objectID uint64, payload []byte, rules RejectRules) *Message {
	return &Message{MsgType: MsgTWrite, TableID: tableID, ObjectID: objectID, Payload: payload, Rules: rules}
}

// NewWriteResponse creates a new Write response.
func NewWriteResponse(version uint64, err error) *Message {
	msg := &Message{MsgType: MsgTWrite, Version: version}
	setErr(msg, err)
	return msg
}

// NewRemoveRequest creates a new Remove request.
func NewRemoveRequest(tableID uint32, objectID uint64, rules RejectRules) *Message {
	return &Message{MsgType: MsgTRemove, TableID: tableID, ObjectID: objectID, Rules: rules}
}

// NewRemoveResponse creates a new Remove response.
func NewRemoveResponse(version uint64, err error) *Message {
	msg := &Message{MsgType: MsgTRemove, Version: version}
	setErr(msg, err)
	return msg
}

// NewMultiReadRequest creates a new MultiRead request.
func NewMultiReadRequest(keys []ObjectKey) *Message {
	return &Message{MsgType: MsgTMultiRead, Keys: keys}
}

// NewMultiReadResponse creates a new MultiRead response.
func NewMultiReadResponse(results []MultiReadResult) *Message {
	return &Message{MsgType: MsgTMultiRead, Results: results}
}

// NewSetTabletsRequest creates a new SetTablets request.
func NewSetTabletsRequest(tablets []TabletDescriptor) *Message {
	return &Message{MsgType: MsgTSetTablets, Tablets: tablets}
}

// NewSetTabletsResponse creates a new SetTablets response.
func NewSetTabletsResponse(err error) *Message {
	msg := &Message{MsgType: MsgTSetTablets}
	setErr(msg, err)
	return msg
}

// NewRecoverRequest creates a new Recover request.
func NewRecoverRequest(crashedMasterID, partitionID uint64, tablets []TabletDescriptor, replicas []ReplicaDescriptor) *Message {
	return &Message{
		MsgType:         MsgTRecover,
		CrashedMasterID: crashedMasterID,
		PartitionID:     partitionID,
		Tablets:         tablets,
		Replicas:        replicas,
	}
}

// NewRecoverResponse creates a new Recover response.
func NewRecoverResponse(replicas []ReplicaDescriptor, err error) *Message {
	msg := &Message{MsgType: MsgTRecover, Replicas: replicas}
	setErr(msg, err)
	return msg
}

// NewPingRequest creates a new Ping request.
func NewPingRequest() *Message {
	return &Message{MsgType: MsgTPing}
}

// NewPingResponse creates a new Ping response.
func NewPingResponse(err error) *Message {
	msg := &Message{MsgType: MsgTPing}
	setErr(msg, err)
	return msg
}

// NewCustomRequest creates a new Custom request
func NewCustomRequest(meta []byte) *Message {
	return &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
}

// NewCustomResponse creates a new Custom response
func NewCustomResponse(meta []byte, err error) *Message {
	msg := &Message{
		MsgType: MsgTCustom,
		Meta:    meta,
	}
	setErr(msg, err)
	return msg
}

// NewBackupStartReadingRequest tells a backup server this master intends
// to recover crashedMasterID, so it can start assembling segments ahead
// of the first GetRecoveryData call.
func NewBackupStartReadingRequest(crashedMasterID uint64) *Message {
	return &Message{MsgType: MsgTBackupStartReading, CrashedMasterID: crashedMasterID}
}

// NewBackupStartReadingResponse acknowledges a StartReadingData request.
func NewBackupStartReadingResponse(err error) *Message {
	msg := &Message{MsgType: MsgTBackupStartReading}
	setErr(msg, err)
	return msg
}

// NewBackupGetDataRequest asks a backup server for one segment's bytes
// for one partition of a crashed master.
func NewBackupGetDataRequest(crashedMasterID, segmentID, partitionID uint64) *Message {
	return &Message{
		MsgType:         MsgTBackupGetData,
		CrashedMasterID: crashedMasterID,
		SegmentID:       segmentID,
		PartitionID:     partitionID,
	}
}

// NewBackupGetDataResponse carries the requested segment bytes. Meta
// holds a single compression-flag byte: 0 for raw bytes, 1 for
// zstd-compressed bytes (see backup/rpcclient).
func NewBackupGetDataResponse(payload []byte, compressed bool, err error) *Message {
	flag := byte(0)
	if compressed {
		flag = 1
	}
	msg := &Message{MsgType: MsgTBackupGetData, Payload: payload, Meta: []byte{flag}}
	setErr(msg, err)
	return msg
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err,
	}
}

func setErr(msg *Message, err error) {
	if err == nil {
		return
	}
	msg.Err = err.Error()
	if me, ok := err.(*master.Error); ok {
		msg.Status = uint8(me.Code)
		msg.Version = me.Version
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTCreate:
		return "create"
	case MsgTRead:
		return "read"
	case MsgTWrite:
		return "write"
	case MsgTRemove:
		return "remove"
	case MsgTMultiRead:
		return "multiRead"
	case MsgTSetTablets:
		return "setTablets"
	case MsgTRecover:
		return "recover"
	case MsgTPing:
		return "ping"
	case MsgTCustom:
		return "custom"
	case MsgTBackupStartReading:
		return "backupStartReading"
	case MsgTBackupGetData:
		return "backupGetData"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	switch s {
	case "create":
		*t = MsgTCreate
	case "read":
		*t = MsgTRead
	case "write":
		*t = MsgTWrite
	case "remove":
		*t = MsgTRemove
	case "multiRead":
		*t = MsgTMultiRead
	case "setTablets":
		*t = MsgTSetTablets
	case "recover":
		*t = MsgTRecover
	case "ping":
		*t = MsgTPing
	case "custom":
		*t = MsgTCustom
	case "backupStartReading":
		*t = MsgTBackupStartReading
	case "backupGetData":
		*t = MsgTBackupGetData
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Master object operations

	MsgTCreate    // Create a new object, server-assigned id
	MsgTRead      // Read an object
	MsgTWrite     // Write (insert or overwrite) an object
	MsgTRemove    // Remove (tombstone) an object
	MsgTMultiRead // Batch read of several objects

	// Master cluster-membership operations

	MsgTSetTablets // Install this master's tablet ownership
	MsgTRecover    // Drive crash recovery for a partition
	MsgTPing       // Liveness check

	// Custom operations

	MsgTCustom // Custom operation type

	// Backup fetch protocol (master acting as client against a backup
	// server during crash recovery, see backup.Client)

	MsgTBackupStartReading // Announce intent to recover a crashed master
	MsgTBackupGetData      // Fetch one segment's bytes for one partition
)
