// Package master implements the client-facing operations of a RAMCloud-
// style master server: create/read/write/remove/multiRead on individual
// objects, tablet assignment, and crash recovery, built on top of the
// hash index (package hashindex), object log (package objlog), tablet map
// (package tablet), and recovery pipeline (package recovery).
package master

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/ramforge/ramforge/master/hashindex"
	"github.com/ramforge/ramforge/master/objlog"
	"github.com/ramforge/ramforge/master/recovery"
	"github.com/ramforge/ramforge/master/tablet"
)

// Master owns one master server's in-memory state: its object log, hash
// index, tablet map, and recovery coordinator.
type Master struct {
	log     *objlog.Log
	index   *hashindex.HashIndex
	tablets *tablet.Map
	coord   *recovery.Coordinator

	nextObjectID *xsync.MapOf[uint32, *atomic.Uint64]
}

// Config bundles the tuning knobs a Master is constructed with.
type Config struct {
	// HashIndexCapacity sizes the hash index's primary bucket array.
	HashIndexCapacity int
	// RecoveryChannels is K, the recovery coordinator's fetch parallelism.
	RecoveryChannels int
	// HistogramName, if non-empty, names the exported lookup-latency
	// histogram (see hashindex.PerfHistogram).
	HistogramName string
}

// New creates a Master backed by a fresh log, index, and tablet map, with
// its recovery coordinator fetching segments through fetcher.
func New(cfg Config, fetcher recovery.Fetcher) *Master {
	log := objlog.New()
	index := hashindex.New(cfg.HashIndexCapacity, log, cfg.HistogramName)
	tablets := tablet.New()

	k := cfg.RecoveryChannels
	if k < 1 {
		k = 1
	}

	return &Master{
		log:          log,
		index:        index,
		tablets:      tablets,
		coord:        recovery.New(log, index, tablets, fetcher, k),
		nextObjectID: xsync.NewMapOf[uint32, *atomic.Uint64](),
	}
}

// Log exposes the object log for read paths that need raw payload access
// outside the core operations (e.g. inspection tooling).
func (m *Master) Log() *objlog.Log { return m.log }

// Index exposes the hash index for inspection (e.g. CLI stats commands).
func (m *Master) Index() *hashindex.HashIndex { return m.index }

// Tablets exposes the tablet map.
func (m *Master) Tablets() *tablet.Map { return m.tablets }

func mapTabletErr(err error) *Error {
	switch {
	case errors.Is(err, tablet.ErrTableNotFound):
		return newError(StatusTableDoesntExist, VersionNonexistent, "table does not exist on this master")
	case errors.Is(err, tablet.ErrTabletRecovering):
		return newError(StatusTabletNotReady, VersionNonexistent, "tablet is recovering")
	default:
		return newError(StatusInternalError, VersionNonexistent, err.Error())
	}
}

// lookup resolves the current index entry (if any) for (tableID, objectID).
func (m *Master) lookup(tableID uint32, objectID uint64) (ptr objlog.LogPtr, hdr objlog.Header, hasEntry bool) {
	p, ok := m.index.Lookup(tableID, objectID)
	if !ok {
		return 0, objlog.Header{}, false
	}
	h, ok := m.log.Header(p)
	if !ok {
		return 0, objlog.Header{}, false
	}
	return p, h, true
}

// liveState reports whether (tableID, objectID) currently names a live
// object (as opposed to absent or tombstoned), and its version. A
// tombstoned key reports present=false but its version still participates
// in the monotonic-version invariant via hasEntry/hdr.
func liveState(hdr objlog.Header, hasEntry bool) (present bool, version uint64) {
	if hasEntry && hdr.Type == objlog.TypeObject {
		return true, hdr.Version
	}
	return false, VersionNonexistent
}

// Write creates or overwrites the object at (tableID, objectID), subject
// to rr. It returns the new version.
func (m *Master) Write(tableID uint32, objectID uint64, payload []byte, rr RejectRules) (uint64, error) {
	if _, err := m.tablets.Locate(tableID, objectID); err != nil {
		return VersionNonexistent, mapTabletErr(err)
	}

	_, hdr, hasEntry := m.lookup(tableID, objectID)
	present, liveVersion := liveState(hdr, hasEntry)

	if err := rr.evaluate(present, liveVersion); err != nil {
		return VersionNonexistent, err
	}

	newVersion := uint64(1)
	if hasEntry {
		newVersion = hdr.Version + 1
	}

	ptr := m.log.AppendObject(tableID, objectID, newVersion, payload)
	if hasEntry {
		if err := m.index.Replace(ptr); err != nil {
			return VersionNonexistent, newError(StatusInternalError, VersionNonexistent, err.Error())
		}
	} else if err := m.index.Insert(tableID, objectID, ptr); err != nil {
		return VersionNonexistent, newError(StatusInternalError, VersionNonexistent, err.Error())
	}

	return newVersion, nil
}

// Create assigns a new, server-chosen objectId within tableID and writes
// payload to it, returning the assigned id and its version.
func (m *Master) Create(tableID uint32, payload []byte) (objectID uint64, version uint64, err error) {
	t, lerr := m.tablets.FirstNormalTablet(tableID)
	if lerr != nil {
		return 0, VersionNonexistent, mapTabletErr(lerr)
	}

	counter, _ := m.nextObjectID.LoadOrCompute(tableID, func() *atomic.Uint64 {
		c := &atomic.Uint64{}
		c.Store(t.StartID)
		return c
	})
	objectID = counter.Add(1) - 1

	ptr := m.log.AppendObject(tableID, objectID, 1, payload)
	if err := m.index.Insert(tableID, objectID, ptr); err != nil {
		return 0, VersionNonexistent, newError(StatusInternalError, VersionNonexistent, err.Error())
	}
	return objectID, 1, nil
}

// Read returns the live payload and version at (tableID, objectID),
// subject to rr.
func (m *Master) Read(tableID uint32, objectID uint64, rr RejectRules) ([]byte, uint64, error) {
	if _, err := m.tablets.Locate(tableID, objectID); err != nil {
		return nil, VersionNonexistent, mapTabletErr(err)
	}

	ptr, hdr, hasEntry := m.lookup(tableID, objectID)
	present, liveVersion := liveState(hdr, hasEntry)

	if err := rr.evaluate(present, liveVersion); err != nil {
		return nil, VersionNonexistent, err
	}
	if !present {
		return nil, VersionNonexistent, newError(StatusObjectDoesntExist, VersionNonexistent, "object does not exist")
	}

	payload, _ := m.log.Payload(ptr)
	return payload, hdr.Version, nil
}

// Remove tombstones the object at (tableID, objectID), subject to rr, and
// returns the version of the object that was removed.
func (m *Master) Remove(tableID uint32, objectID uint64, rr RejectRules) (uint64, error) {
	if _, err := m.tablets.Locate(tableID, objectID); err != nil {
		return VersionNonexistent, mapTabletErr(err)
	}

	_, hdr, hasEntry := m.lookup(tableID, objectID)
	present, liveVersion := liveState(hdr, hasEntry)

	if err := rr.evaluate(present, liveVersion); err != nil {
		return VersionNonexistent, err
	}
	if !present {
		return VersionNonexistent, newError(StatusObjectDoesntExist, VersionNonexistent, "object does not exist")
	}

	ptr := m.log.AppendTombstone(tableID, objectID, hdr.Version, 0)
	if err := m.index.Replace(ptr); err != nil {
		return VersionNonexistent, newError(StatusInternalError, VersionNonexistent, err.Error())
	}
	return hdr.Version, nil
}

// ObjectKey identifies one object for MultiRead.
type ObjectKey struct {
	TableID  uint32
	ObjectID uint64
}

// MultiReadResult is one key's outcome within a MultiRead batch.
type MultiReadResult struct {
	Status  Status
	Version uint64
	Payload []byte
}

// MultiRead reads every key in keys independently, collecting a
// per-request status instead of failing the whole batch on one miss.
func (m *Master) MultiRead(keys []ObjectKey) []MultiReadResult {
	results := make([]MultiReadResult, len(keys))
	for i, k := range keys {
		payload, version, err := m.Read(k.TableID, k.ObjectID, RejectRules{})
		if err != nil {
			var merr *Error
			if errors.As(err, &merr) {
				results[i] = MultiReadResult{Status: merr.Code, Version: merr.Version}
			} else {
				results[i] = MultiReadResult{Status: StatusInternalError}
			}
			continue
		}
		results[i] = MultiReadResult{Status: StatusOK, Version: version, Payload: payload}
	}
	return results
}

// SetTablets assigns tablets to this master. Existing tablets matching
// (tableId, startId, endId) have their state overwritten; new ones are
// added.
func (m *Master) SetTablets(tablets []*tablet.Tablet) {
	for _, t := range tablets {
		if m.tablets.SetState(t.TableID, t.StartID, t.EndID, t.State) {
			continue
		}
		m.tablets.Add(t)
	}
}

// Recover runs crash recovery for one partition: it places owned into the
// RECOVERING state (if not already), then drives the recovery coordinator
// against replicas. On success every tablet in owned transitions to
// NORMAL; on failure they remain RECOVERING.
func (m *Master) Recover(ctx context.Context, crashedMasterID, partitionID uint64, owned []*tablet.Tablet, replicas []recovery.ReplicaEntry) ([]recovery.ReplicaEntry, error) {
	for _, t := range owned {
		if !m.tablets.SetState(t.TableID, t.StartID, t.EndID, tablet.Recovering) {
			t.State = tablet.Recovering
			m.tablets.Add(t)
		}
	}

	result, err := m.coord.Recover(ctx, crashedMasterID, partitionID, owned, replicas)
	if err != nil {
		return result, newError(StatusSegmentRecoveryFailed, VersionNonexistent, err.Error())
	}
	return result, nil
}

// Ping answers a liveness check. It never fails; the dispatch layer's
// ability to schedule this handler at all is the signal being tested.
func (m *Master) Ping() error { return nil }
