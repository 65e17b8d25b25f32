package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ramforge/ramforge/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present. Every field of
// common.Message that isn't always sent gets its own bit, tested against
// the message's zero value for that field.
const (
	hasTableID         uint16 = 1 << 0
	hasObjectID        uint16 = 1 << 1
	hasPayload         uint16 = 1 << 2
	hasVersion         uint16 = 1 << 3
	hasRules           uint16 = 1 << 4
	hasKeys            uint16 = 1 << 5
	hasResults         uint16 = 1 << 6
	hasTablets         uint16 = 1 << 7
	hasCrashedMasterID uint16 = 1 << 8
	hasPartitionID     uint16 = 1 << 9
	hasReplicas        uint16 = 1 << 10
	hasStatus          uint16 = 1 << 11
	hasErr             uint16 = 1 << 12
	hasMeta            uint16 = 1 << 13
	hasSegmentID       uint16 = 1 << 14
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	var flags uint16
	if msg.TableID != 0 {
		flags |= hasTableID
	}
	if msg.ObjectID != 0 {
		flags |= hasObjectID
	}
	if msg.Payload != nil {
		flags |= hasPayload
	}
	if msg.Version != 0 {
		flags |= hasVersion
	}
	if rejectRulesNonZero(msg.Rules) {
		flags |= hasRules
	}
	if len(msg.Keys) > 0 {
		flags |= hasKeys
	}
	if len(msg.Results) > 0 {
		flags |= hasResults
	}
	if len(msg.Tablets) > 0 {
		flags |= hasTablets
	}
	if msg.CrashedMasterID != 0 {
		flags |= hasCrashedMasterID
	}
	if msg.PartitionID != 0 {
		flags |= hasPartitionID
	}
	if msg.SegmentID != 0 {
		flags |= hasSegmentID
	}
	if len(msg.Replicas) > 0 {
		flags |= hasReplicas
	}
	if msg.Status != 0 {
		flags |= hasStatus
	}
	if msg.Err != "" {
		flags |= hasErr
	}
	if msg.Meta != nil {
		flags |= hasMeta
	}

	buf := make([]byte, 0, b.sizeBytes(msg, flags))
	buf = append(buf, byte(msg.MsgType))
	buf = binary.BigEndian.AppendUint16(buf, flags)

	if flags&hasTableID != 0 {
		buf = binary.BigEndian.AppendUint32(buf, msg.TableID)
	}
	if flags&hasObjectID != 0 {
		buf = binary.BigEndian.AppendUint64(buf, msg.ObjectID)
	}
	if flags&hasPayload != 0 {
		buf = putBytes(buf, msg.Payload)
	}
	if flags&hasVersion != 0 {
		buf = binary.BigEndian.AppendUint64(buf, msg.Version)
	}
	if flags&hasRules != 0 {
		buf = putRejectRules(buf, msg.Rules)
	}
	if flags&hasKeys != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Keys)))
		for _, k := range msg.Keys {
			buf = binary.BigEndian.AppendUint32(buf, k.TableID)
			buf = binary.BigEndian.AppendUint64(buf, k.ObjectID)
		}
	}
	if flags&hasResults != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Results)))
		for _, r := range msg.Results {
			buf = append(buf, r.Status)
			buf = binary.BigEndian.AppendUint64(buf, r.Version)
			buf = putBytes(buf, r.Payload)
		}
	}
	if flags&hasTablets != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Tablets)))
		for _, t := range msg.Tablets {
			buf = binary.BigEndian.AppendUint32(buf, t.TableID)
			buf = binary.BigEndian.AppendUint64(buf, t.StartID)
			buf = binary.BigEndian.AppendUint64(buf, t.EndID)
			buf = append(buf, t.State)
			buf = binary.BigEndian.AppendUint64(buf, t.TableRef)
		}
	}
	if flags&hasCrashedMasterID != 0 {
		buf = binary.BigEndian.AppendUint64(buf, msg.CrashedMasterID)
	}
	if flags&hasPartitionID != 0 {
		buf = binary.BigEndian.AppendUint64(buf, msg.PartitionID)
	}
	if flags&hasSegmentID != 0 {
		buf = binary.BigEndian.AppendUint64(buf, msg.SegmentID)
	}
	if flags&hasReplicas != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Replicas)))
		for _, r := range msg.Replicas {
			buf = binary.BigEndian.AppendUint64(buf, r.SegmentID)
			buf = putString(buf, r.BackupLocator)
			buf = append(buf, r.Status)
		}
	}
	if flags&hasStatus != 0 {
		buf = append(buf, msg.Status)
	}
	if flags&hasErr != 0 {
		buf = putString(buf, msg.Err)
	}
	if flags&hasMeta != 0 {
		buf = putBytes(buf, msg.Meta)
	}

	return buf, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < 3 {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MessageType(data[0])
	flags := binary.BigEndian.Uint16(data[1:3])
	pos := 3

	var err error
	if flags&hasTableID != 0 {
		if msg.TableID, pos, err = readUint32(data, pos); err != nil {
			return err
		}
	}
	if flags&hasObjectID != 0 {
		if msg.ObjectID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
	}
	if flags&hasPayload != 0 {
		if msg.Payload, pos, err = getBytes(data, pos); err != nil {
			return err
		}
	}
	if flags&hasVersion != 0 {
		if msg.Version, pos, err = readUint64(data, pos); err != nil {
			return err
		}
	}
	if flags&hasRules != 0 {
		if msg.Rules, pos, err = getRejectRules(data, pos); err != nil {
			return err
		}
	}
	if flags&hasKeys != 0 {
		var n uint32
		if n, pos, err = readUint32(data, pos); err != nil {
			return err
		}
		msg.Keys = make([]common.ObjectKey, n)
		for i := range msg.Keys {
			if msg.Keys[i].TableID, pos, err = readUint32(data, pos); err != nil {
				return err
			}
			if msg.Keys[i].ObjectID, pos, err = readUint64(data, pos); err != nil {
				return err
			}
		}
	}
	if flags&hasResults != 0 {
		var n uint32
		if n, pos, err = readUint32(data, pos); err != nil {
			return err
		}
		msg.Results = make([]common.MultiReadResult, n)
		for i := range msg.Results {
			if pos+1 > len(data) {
				return fmt.Errorf("data too short for result status")
			}
			msg.Results[i].Status = data[pos]
			pos++
			if msg.Results[i].Version, pos, err = readUint64(data, pos); err != nil {
				return err
			}
			if msg.Results[i].Payload, pos, err = getBytes(data, pos); err != nil {
				return err
			}
			if len(msg.Results[i].Payload) == 0 {
				msg.Results[i].Payload = nil
			}
		}
	}
	if flags&hasTablets != 0 {
		var n uint32
		if n, pos, err = readUint32(data, pos); err != nil {
			return err
		}
		msg.Tablets = make([]common.TabletDescriptor, n)
		for i := range msg.Tablets {
			t := &msg.Tablets[i]
			if t.TableID, pos, err = readUint32(data, pos); err != nil {
				return err
			}
			if t.StartID, pos, err = readUint64(data, pos); err != nil {
				return err
			}
			if t.EndID, pos, err = readUint64(data, pos); err != nil {
				return err
			}
			if pos+1 > len(data) {
				return fmt.Errorf("data too short for tablet state")
			}
			t.State = data[pos]
			pos++
			if t.TableRef, pos, err = readUint64(data, pos); err != nil {
				return err
			}
		}
	}
	if flags&hasCrashedMasterID != 0 {
		if msg.CrashedMasterID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
	}
	if flags&hasPartitionID != 0 {
		if msg.PartitionID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
	}
	if flags&hasSegmentID != 0 {
		if msg.SegmentID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
	}
	if flags&hasReplicas != 0 {
		var n uint32
		if n, pos, err = readUint32(data, pos); err != nil {
			return err
		}
		msg.Replicas = make([]common.ReplicaDescriptor, n)
		for i := range msg.Replicas {
			r := &msg.Replicas[i]
			if r.SegmentID, pos, err = readUint64(data, pos); err != nil {
				return err
			}
			if r.BackupLocator, pos, err = getString(data, pos); err != nil {
				return err
			}
			if pos+1 > len(data) {
				return fmt.Errorf("data too short for replica status")
			}
			r.Status = data[pos]
			pos++
		}
	}
	if flags&hasStatus != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for status")
		}
		msg.Status = data[pos]
		pos++
	}
	if flags&hasErr != 0 {
		if msg.Err, pos, err = getString(data, pos); err != nil {
			return err
		}
	}
	if flags&hasMeta != 0 {
		if msg.Meta, pos, err = getBytes(data, pos); err != nil {
			return err
		}
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func rejectRulesNonZero(rr common.RejectRules) bool {
	return rr.Exists || rr.DoesntExist || rr.VersionLeGiven || rr.VersionNeGiven || rr.GivenVersion != 0
}

func putRejectRules(buf []byte, rr common.RejectRules) []byte {
	var packed byte
	if rr.Exists {
		packed |= 1 << 0
	}
	if rr.DoesntExist {
		packed |= 1 << 1
	}
	if rr.VersionLeGiven {
		packed |= 1 << 2
	}
	if rr.VersionNeGiven {
		packed |= 1 << 3
	}
	buf = append(buf, packed)
	return binary.BigEndian.AppendUint64(buf, rr.GivenVersion)
}

func getRejectRules(data []byte, pos int) (common.RejectRules, int, error) {
	if pos+1 > len(data) {
		return common.RejectRules{}, pos, fmt.Errorf("data too short for reject rules flags")
	}
	packed := data[pos]
	pos++
	given, pos, err := readUint64(data, pos)
	if err != nil {
		return common.RejectRules{}, pos, err
	}
	return common.RejectRules{
		Exists:         packed&(1<<0) != 0,
		DoesntExist:    packed&(1<<1) != 0,
		VersionLeGiven: packed&(1<<2) != 0,
		VersionNeGiven: packed&(1<<3) != 0,
		GivenVersion:   given,
	}, pos, nil
}

func putString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func getString(data []byte, pos int) (string, int, error) {
	n, pos, err := readUint32(data, pos)
	if err != nil {
		return "", pos, err
	}
	if pos+int(n) > len(data) {
		return "", pos, fmt.Errorf("data too short for string data")
	}
	s := string(data[pos : pos+int(n)])
	return s, pos + int(n), nil
}

func putBytes(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

func getBytes(data []byte, pos int) ([]byte, int, error) {
	n, pos, err := readUint32(data, pos)
	if err != nil {
		return nil, pos, err
	}
	if pos+int(n) > len(data) {
		return nil, pos, fmt.Errorf("data too short for byte data")
	}
	out := make([]byte, n)
	copy(out, data[pos:pos+int(n)])
	return out, pos + int(n), nil
}

func readUint32(data []byte, pos int) (uint32, int, error) {
	if pos+4 > len(data) {
		return 0, pos, fmt.Errorf("data too short for uint32")
	}
	return binary.BigEndian.Uint32(data[pos : pos+4]), pos + 4, nil
}

func readUint64(data []byte, pos int) (uint64, int, error) {
	if pos+8 > len(data) {
		return 0, pos, fmt.Errorf("data too short for uint64")
	}
	return binary.BigEndian.Uint64(data[pos : pos+8]), pos + 8, nil
}

// sizeBytes estimates the encoded size to preallocate the output buffer.
// Slight under- or over-estimates are fine; append grows as needed.
func (b binarySerializerImpl) sizeBytes(msg common.Message, flags uint16) int {
	size := 3 // MsgType + flags
	if flags&hasTableID != 0 {
		size += 4
	}
	if flags&hasObjectID != 0 {
		size += 8
	}
	if flags&hasPayload != 0 {
		size += 4 + len(msg.Payload)
	}
	if flags&hasVersion != 0 {
		size += 8
	}
	if flags&hasRules != 0 {
		size += 9
	}
	if flags&hasKeys != 0 {
		size += 4 + len(msg.Keys)*12
	}
	if flags&hasResults != 0 {
		size += 4
		for _, r := range msg.Results {
			size += 1 + 8 + 4 + len(r.Payload)
		}
	}
	if flags&hasTablets != 0 {
		size += 4 + len(msg.Tablets)*29
	}
	if flags&hasCrashedMasterID != 0 {
		size += 8
	}
	if flags&hasPartitionID != 0 {
		size += 8
	}
	if flags&hasSegmentID != 0 {
		size += 8
	}
	if flags&hasReplicas != 0 {
		size += 4
		for _, r := range msg.Replicas {
			size += 8 + 4 + len(r.BackupLocator) + 1
		}
	}
	if flags&hasStatus != 0 {
		size += 1
	}
	if flags&hasErr != 0 {
		size += 4 + len(msg.Err)
	}
	if flags&hasMeta != 0 {
		size += 4 + len(msg.Meta)
	}
	return size
}
