package recovery

import (
	"encoding/binary"
	"fmt"

	"github.com/ramforge/ramforge/master/hashindex"
	"github.com/ramforge/ramforge/master/objlog"
)

// recordHeaderLen is the fixed prefix of every record in a segment buffer:
// type(1) + recordLen(4) + tableID(4) + objectID(8) + version(8).
const recordHeaderLen = 1 + 4 + 4 + 8 + 8

// decodedRecord is one record read off a segment buffer during replay.
type decodedRecord struct {
	Type     objlog.RecordType
	TableID  uint32
	ObjectID uint64
	Version  uint64
	Payload  []byte
}

// walkSegment decodes every record in buf sequentially, following each
// record's self-declared length so unknown record types can be skipped
// without understanding their payload.
func walkSegment(buf []byte) ([]decodedRecord, error) {
	var records []decodedRecord

	pos := 0
	for pos < len(buf) {
		if pos+recordHeaderLen > len(buf) {
			return nil, fmt.Errorf("recovery: truncated record header at offset %d", pos)
		}

		typ := buf[pos]
		recordLen := binary.BigEndian.Uint32(buf[pos+1 : pos+5])
		if recordLen < recordHeaderLen || pos+int(recordLen) > len(buf) {
			return nil, fmt.Errorf("recovery: invalid record length %d at offset %d", recordLen, pos)
		}
		tableID := binary.BigEndian.Uint32(buf[pos+5 : pos+9])
		objectID := binary.BigEndian.Uint64(buf[pos+9 : pos+17])
		version := binary.BigEndian.Uint64(buf[pos+17 : pos+25])
		payload := buf[pos+recordHeaderLen : pos+int(recordLen)]

		switch objlog.RecordType(typ) {
		case objlog.TypeObject, objlog.TypeTombstone:
			records = append(records, decodedRecord{
				Type:     objlog.RecordType(typ),
				TableID:  tableID,
				ObjectID: objectID,
				Version:  version,
				Payload:  payload,
			})
		default:
			// Unknown record type: skip, per §4.F.
		}

		pos += int(recordLen)
	}
	return records, nil
}

// encodeRecord is the encode side of walkSegment's layout, used by tests
// and by in-process segment construction (recovery never round-trips
// through an actual backup wire format; that framing is out of scope).
func encodeRecord(typ objlog.RecordType, tableID uint32, objectID, version uint64, payload []byte) []byte {
	recordLen := recordHeaderLen + len(payload)
	buf := make([]byte, recordLen)
	buf[0] = byte(typ)
	binary.BigEndian.PutUint32(buf[1:5], uint32(recordLen))
	binary.BigEndian.PutUint32(buf[5:9], tableID)
	binary.BigEndian.PutUint64(buf[9:17], objectID)
	binary.BigEndian.PutUint64(buf[17:25], version)
	copy(buf[recordHeaderLen:], payload)
	return buf
}

// applyRecord enforces the version-dominance table of §4.C for a single
// recovered record against the live log and index.
func applyRecord(log *objlog.Log, index *hashindex.HashIndex, segmentID uint64, rec decodedRecord) error {
	presentPtr, present := index.Lookup(rec.TableID, rec.ObjectID)
	var presentHdr objlog.Header
	if present {
		presentHdr, _ = log.Header(presentPtr)
	}

	switch rec.Type {
	case objlog.TypeObject:
		if present {
			if rec.Version <= presentHdr.Version {
				return nil // not dominant, ignore
			}
			ptr := log.AppendObject(rec.TableID, rec.ObjectID, rec.Version, rec.Payload)
			return index.Replace(ptr)
		}
		ptr := log.AppendObject(rec.TableID, rec.ObjectID, rec.Version, rec.Payload)
		return index.Insert(rec.TableID, rec.ObjectID, ptr)

	case objlog.TypeTombstone:
		if present {
			dominant := rec.Version > presentHdr.Version
			if presentHdr.Type == objlog.TypeObject {
				dominant = rec.Version >= presentHdr.Version
			}
			if !dominant {
				return nil
			}
			ptr := log.AppendTombstone(rec.TableID, rec.ObjectID, rec.Version, segmentID)
			return index.Replace(ptr)
		}
		ptr := log.AppendTombstone(rec.TableID, rec.ObjectID, rec.Version, segmentID)
		return index.Insert(rec.TableID, rec.ObjectID, ptr)

	default:
		return nil
	}
}

// applySegment decodes and replays every record in buf, which was fetched
// from segmentID.
func applySegment(log *objlog.Log, index *hashindex.HashIndex, segmentID uint64, buf []byte) error {
	records, err := walkSegment(buf)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := applyRecord(log, index, segmentID, rec); err != nil {
			return err
		}
	}
	return nil
}

// removeTombstones walks the index after a partition's segments have all
// replayed and removes every tombstone entry, per §4.C.
func removeTombstones(log *objlog.Log, index *hashindex.HashIndex) {
	type key struct {
		tableID  uint32
		objectID uint64
	}
	var tombstones []key

	index.ForEach(func(tableID uint32, objectID uint64, ptr objlog.LogPtr) bool {
		if hdr, ok := log.Header(ptr); ok && hdr.Type == objlog.TypeTombstone {
			tombstones = append(tombstones, key{tableID, objectID})
		}
		return true
	})

	for _, k := range tombstones {
		index.Remove(k.tableID, k.objectID)
	}
}
