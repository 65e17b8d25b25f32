// Package recovery implements the master's crash-recovery pipeline: a
// coordinator that fans out segment fetches across a fixed number of
// concurrent channels (§4.E), and a replay engine that applies fetched
// segments to the log and hash index under the version-dominance rules
// (§4.F).
package recovery

import (
	"context"
	"errors"

	"github.com/ramforge/ramforge/master/hashindex"
	"github.com/ramforge/ramforge/master/internal/mpsc"
	"github.com/ramforge/ramforge/master/objlog"
	"github.com/ramforge/ramforge/master/tablet"
)

// Status is a replica fetch entry's place in its state machine.
type Status int

const (
	Pending Status = iota
	InFlight
	OK
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case InFlight:
		return "IN_FLIGHT"
	case OK:
		return "OK"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ReplicaEntry is one entry of the replica list handed to Recover: a
// segment and one of the backups known to hold a copy of it. The same
// SegmentID may appear in more than one entry.
type ReplicaEntry struct {
	SegmentID     uint64
	BackupLocator string
	Status        Status
}

// Fetcher is the subset of the backup interface the recovery coordinator
// consumes: a blocking fetch of one segment's bytes from one backup.
type Fetcher interface {
	GetRecoveryData(ctx context.Context, backupLocator string, crashedMasterID, segmentID, partitionID uint64) ([]byte, error)
}

// ClusterNotifier is the coordinator callback shape for reporting a
// recovered replica list. Recover does not call it: it returns the
// annotated replica list to its caller instead.
type ClusterNotifier interface {
	TabletsRecovered(serverID uint64, replicas []ReplicaEntry) error
}

// ErrSegmentRecoveryFailed is returned when at least one distinct
// segmentId never reached OK.
var ErrSegmentRecoveryFailed = errors.New("recovery: segment recovery failed")

// Coordinator drives one partition's recovery: fanning fetches out across
// K concurrent channels, replaying each successful fetch, and finalizing
// tablet state on success.
type Coordinator struct {
	log     *objlog.Log
	index   *hashindex.HashIndex
	tablets *tablet.Map
	fetcher Fetcher
	k       int
}

// New creates a recovery coordinator bound to the given log, index, and
// tablet map, fetching via fetcher with up to k concurrent channels.
func New(log *objlog.Log, index *hashindex.HashIndex, tablets *tablet.Map, fetcher Fetcher, k int) *Coordinator {
	if k < 1 {
		k = 1
	}
	return &Coordinator{log: log, index: index, tablets: tablets, fetcher: fetcher, k: k}
}

type fetchResult struct {
	entryIdx int
	data     []byte
	err      error
}

// Recover runs the scheduling algorithm of §4.E for one partition: owned
// is the set of tablets (already RECOVERING) this partition covers,
// replicas is the ordered replica list. It returns the replica list
// annotated with final status, and an error if recovery failed.
func (c *Coordinator) Recover(ctx context.Context, crashedMasterID, partitionID uint64, owned []*tablet.Tablet, replicas []ReplicaEntry) ([]ReplicaEntry, error) {
	entries := make([]ReplicaEntry, len(replicas))
	copy(entries, replicas)

	completions := mpsc.New[fetchResult]()
	defer completions.Close()

	inFlight := 0
	for {
		for inFlight < c.k {
			idx := pickCandidate(entries)
			if idx < 0 {
				break
			}
			entries[idx].Status = InFlight
			inFlight++

			go func(idx int, segmentID uint64, locator string) {
				data, err := c.fetcher.GetRecoveryData(ctx, locator, crashedMasterID, segmentID, partitionID)
				completions.Push(&fetchResult{entryIdx: idx, data: data, err: err})
			}(idx, entries[idx].SegmentID, entries[idx].BackupLocator)
		}

		if inFlight == 0 {
			break
		}

		res := <-completions.Recv()
		inFlight--

		if res.err != nil {
			entries[res.entryIdx].Status = Failed
			continue
		}

		if err := applySegment(c.log, c.index, entries[res.entryIdx].SegmentID, res.data); err != nil {
			entries[res.entryIdx].Status = Failed
			continue
		}
		markOKTransitive(entries, res.entryIdx)
	}

	if !allSegmentsRecovered(entries) {
		return entries, ErrSegmentRecoveryFailed
	}

	removeTombstones(c.log, c.index)
	for _, t := range owned {
		c.tablets.SetState(t.TableID, t.StartID, t.EndID, tablet.Normal)
	}

	return entries, nil
}

// pickCandidate returns the index of the leftmost PENDING entry whose
// segmentId has no other entry InFlight or OK, or -1 if none remains.
func pickCandidate(entries []ReplicaEntry) int {
	for i := range entries {
		if entries[i].Status != Pending {
			continue
		}
		if segmentBusyOrDone(entries, entries[i].SegmentID) {
			continue
		}
		return i
	}
	return -1
}

func segmentBusyOrDone(entries []ReplicaEntry, segmentID uint64) bool {
	for _, e := range entries {
		if e.SegmentID == segmentID && (e.Status == InFlight || e.Status == OK) {
			return true
		}
	}
	return false
}

// markOKTransitive marks entries[idx] OK and every other PENDING entry
// sharing its segmentId OK as well, without fetching them (§4.E step 4).
// Entries whose own fetch already failed keep their Failed status.
func markOKTransitive(entries []ReplicaEntry, idx int) {
	segmentID := entries[idx].SegmentID
	entries[idx].Status = OK
	for i := range entries {
		if entries[i].SegmentID == segmentID && entries[i].Status == Pending {
			entries[i].Status = OK
		}
	}
}

// allSegmentsRecovered reports whether every distinct segmentId present in
// entries has at least one OK entry.
func allSegmentsRecovered(entries []ReplicaEntry) bool {
	ok := map[uint64]bool{}
	for _, e := range entries {
		if e.Status == OK {
			ok[e.SegmentID] = true
		}
	}
	for _, e := range entries {
		if !ok[e.SegmentID] {
			return false
		}
	}
	return true
}
