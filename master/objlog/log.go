// Package objlog implements the master's append-only object log: object
// records and tombstones, addressed by a stable LogPtr handle that the hash
// index stores inside its packed entries.
//
// The log itself never rewrites or compacts in place; a newer write to the
// same key simply appends a new record and the hash index repoints at it,
// leaving the old record as garbage for a later (out-of-scope) compaction
// pass.
package objlog

import "sync"

// RecordType distinguishes the two kinds of records the log carries.
type RecordType uint8

const (
	// TypeObject is a live object payload.
	TypeObject RecordType = iota
	// TypeTombstone marks a prior version of an object as deleted.
	TypeTombstone
)

func (t RecordType) String() string {
	switch t {
	case TypeObject:
		return "OBJECT"
	case TypeTombstone:
		return "TOMBSTONE"
	default:
		return "UNKNOWN"
	}
}

// LogPtr is a stable handle to a record in the log. The zero value is never
// returned by Append* and is reserved so that a hash-index entry.Entry
// holding ptr==0 unambiguously means "empty slot", never "points at record
// zero".
type LogPtr uint64

// Header is the part of a record needed to resolve a hash-index hit without
// copying the payload: identity plus the version used by the replay
// dominance rules.
type Header struct {
	Type     RecordType
	TableID  uint32
	ObjectID uint64
	// Version is the object version for TypeObject records, or the
	// superseded object's version for TypeTombstone records.
	Version uint64
}

type record struct {
	header    Header
	payload   []byte // TypeObject only
	segmentID uint64 // TypeTombstone only: the segment that produced it
}

// Log is the append-only store of object and tombstone records.
//
// Thread-safety: Log serializes all mutation and read access internally so
// it is safe to Append/read concurrently with itself; the hash index that
// sits on top of it is the one that requires external serialization of its
// own mutators (see hashindex.HashIndex).
type Log struct {
	mu      sync.RWMutex
	records []record // records[0] is an unused sentinel; see LogPtr.
}

// New creates an empty log.
func New() *Log {
	return &Log{records: make([]record, 1)}
}

// AppendObject appends a live object record and returns its handle.
func (l *Log) AppendObject(tableID uint32, objectID, version uint64, payload []byte) LogPtr {
	payloadCopy := make([]byte, len(payload))
	copy(payloadCopy, payload)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record{
		header: Header{
			Type:     TypeObject,
			TableID:  tableID,
			ObjectID: objectID,
			Version:  version,
		},
		payload: payloadCopy,
	})
	return LogPtr(len(l.records) - 1)
}

// AppendTombstone appends a tombstone record superseding objectVersion and
// returns its handle.
func (l *Log) AppendTombstone(tableID uint32, objectID, objectVersion, segmentID uint64) LogPtr {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, record{
		header: Header{
			Type:     TypeTombstone,
			TableID:  tableID,
			ObjectID: objectID,
			Version:  objectVersion,
		},
		segmentID: segmentID,
	})
	return LogPtr(len(l.records) - 1)
}

// Header resolves a handle to its record header without copying the
// payload. It returns false for the zero handle or an out-of-range handle.
func (l *Log) Header(ptr LogPtr) (Header, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if ptr == 0 || int(ptr) >= len(l.records) {
		return Header{}, false
	}
	return l.records[ptr].header, true
}

// Payload returns a copy of the payload for an object record. ok is false
// if ptr does not resolve to a TypeObject record.
func (l *Log) Payload(ptr LogPtr) (payload []byte, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if ptr == 0 || int(ptr) >= len(l.records) {
		return nil, false
	}
	rec := l.records[ptr]
	if rec.header.Type != TypeObject {
		return nil, false
	}
	out := make([]byte, len(rec.payload))
	copy(out, rec.payload)
	return out, true
}

// SegmentID returns the segment id recorded on a tombstone. ok is false if
// ptr does not resolve to a TypeTombstone record.
func (l *Log) SegmentID(ptr LogPtr) (segmentID uint64, ok bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if ptr == 0 || int(ptr) >= len(l.records) {
		return 0, false
	}
	rec := l.records[ptr]
	if rec.header.Type != TypeTombstone {
		return 0, false
	}
	return rec.segmentID, true
}

// Len returns the number of records ever appended (including garbage no
// longer reachable from the hash index).
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records) - 1
}
