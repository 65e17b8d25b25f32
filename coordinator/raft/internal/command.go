// Package internal holds the wire commands and queries the raft-backed
// coordinator's state machine accepts, serialized the same
// flag-byte-free, fixed-field way dstore's internal.Command is.
package internal

import (
	"encoding/binary"
	"fmt"

	"github.com/ramforge/ramforge/master/recovery"
	"github.com/ramforge/ramforge/master/tablet"
)

type CommandType uint8

const (
	CommandTEnlistServer CommandType = iota
	CommandTAssignTablet
	CommandTSetTabletState
	CommandTTabletsRecovered
)

func (ct CommandType) String() string {
	switch ct {
	case CommandTEnlistServer:
		return "EnlistServer"
	case CommandTAssignTablet:
		return "AssignTablet"
	case CommandTSetTabletState:
		return "SetTabletState"
	case CommandTTabletsRecovered:
		return "TabletsRecovered"
	default:
		return fmt.Sprintf("Unknown(%d)", ct)
	}
}

// Command represents one coordinator state mutation, a single entry in
// the raft log.
type Command struct {
	Type CommandType

	// EnlistServer
	ServerType     uint8
	ServiceLocator string

	// AssignTablet / SetTabletState / TabletsRecovered
	TableID  uint32
	StartID  uint64
	EndID    uint64
	ServerID uint64
	State    uint8

	// TabletsRecovered
	CrashedServerID uint64
	NewServerID     uint64
	Tablets         []tablet.Tablet
	Replicas        []recovery.ReplicaEntry
}

// Serialize encodes the command as a flat byte array. Every field is
// fixed-width or length-prefixed; there is no flags byte because, unlike
// an RPC envelope, a command's field set is fully determined by its Type.
func (c *Command) Serialize() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, byte(c.Type))

	switch c.Type {
	case CommandTEnlistServer:
		buf = append(buf, c.ServerType)
		buf = appendString(buf, c.ServiceLocator)
	case CommandTAssignTablet:
		buf = binary.BigEndian.AppendUint32(buf, c.TableID)
		buf = binary.BigEndian.AppendUint64(buf, c.StartID)
		buf = binary.BigEndian.AppendUint64(buf, c.EndID)
		buf = binary.BigEndian.AppendUint64(buf, c.ServerID)
	case CommandTSetTabletState:
		buf = binary.BigEndian.AppendUint32(buf, c.TableID)
		buf = binary.BigEndian.AppendUint64(buf, c.StartID)
		buf = binary.BigEndian.AppendUint64(buf, c.EndID)
		buf = append(buf, c.State)
	case CommandTTabletsRecovered:
		buf = binary.BigEndian.AppendUint64(buf, c.CrashedServerID)
		buf = binary.BigEndian.AppendUint64(buf, c.NewServerID)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Tablets)))
		for _, t := range c.Tablets {
			buf = binary.BigEndian.AppendUint32(buf, t.TableID)
			buf = binary.BigEndian.AppendUint64(buf, t.StartID)
			buf = binary.BigEndian.AppendUint64(buf, t.EndID)
		}
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(c.Replicas)))
		for _, r := range c.Replicas {
			buf = binary.BigEndian.AppendUint64(buf, r.SegmentID)
			buf = appendString(buf, r.BackupLocator)
			buf = append(buf, byte(r.Status))
		}
	}
	return buf
}

// Deserialize extracts a Command from a byte array produced by Serialize.
func (c *Command) Deserialize(data []byte) error {
	if len(data) < 1 {
		return fmt.Errorf("data too short for command type")
	}
	c.Type = CommandType(data[0])
	pos := 1
	var err error

	switch c.Type {
	case CommandTEnlistServer:
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for server type")
		}
		c.ServerType = data[pos]
		pos++
		c.ServiceLocator, pos, err = readString(data, pos)
		return err
	case CommandTAssignTablet:
		if c.TableID, pos, err = readUint32(data, pos); err != nil {
			return err
		}
		if c.StartID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
		if c.EndID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
		c.ServerID, _, err = readUint64(data, pos)
		return err
	case CommandTSetTabletState:
		if c.TableID, pos, err = readUint32(data, pos); err != nil {
			return err
		}
		if c.StartID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
		if c.EndID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for tablet state")
		}
		c.State = data[pos]
		return nil
	case CommandTTabletsRecovered:
		if c.CrashedServerID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
		if c.NewServerID, pos, err = readUint64(data, pos); err != nil {
			return err
		}
		var n uint32
		if n, pos, err = readUint32(data, pos); err != nil {
			return err
		}
		c.Tablets = make([]tablet.Tablet, n)
		for i := range c.Tablets {
			if c.Tablets[i].TableID, pos, err = readUint32(data, pos); err != nil {
				return err
			}
			if c.Tablets[i].StartID, pos, err = readUint64(data, pos); err != nil {
				return err
			}
			if c.Tablets[i].EndID, pos, err = readUint64(data, pos); err != nil {
				return err
			}
		}
		if n, pos, err = readUint32(data, pos); err != nil {
			return err
		}
		c.Replicas = make([]recovery.ReplicaEntry, n)
		for i := range c.Replicas {
			if c.Replicas[i].SegmentID, pos, err = readUint64(data, pos); err != nil {
				return err
			}
			if c.Replicas[i].BackupLocator, pos, err = readString(data, pos); err != nil {
				return err
			}
			if pos+1 > len(data) {
				return fmt.Errorf("data too short for replica status")
			}
			c.Replicas[i].Status = recovery.Status(data[pos])
			pos++
		}
		return nil
	default:
		return fmt.Errorf("unknown command type %d", c.Type)
	}
}

func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(data []byte, pos int) (string, int, error) {
	n, pos, err := readUint32(data, pos)
	if err != nil {
		return "", pos, err
	}
	if pos+int(n) > len(data) {
		return "", pos, fmt.Errorf("data too short for string")
	}
	return string(data[pos : pos+int(n)]), pos + int(n), nil
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
