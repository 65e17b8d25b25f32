package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ramforge/ramforge/master/objlog"
	"github.com/ramforge/ramforge/master/tablet"
)

// scriptedFetcher serves canned segment bytes or errors keyed by backup
// locator, and records every call it receives.
type scriptedFetcher struct {
	mu    sync.Mutex
	calls []string
	byKey map[string][]byte
	fail  map[string]error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{byKey: map[string][]byte{}, fail: map[string]error{}}
}

func (f *scriptedFetcher) ok(locator string, segmentID uint64, buf []byte) {
	f.byKey[locator] = buf
}

func (f *scriptedFetcher) bad(locator string, err error) {
	f.fail[locator] = err
}

func (f *scriptedFetcher) GetRecoveryData(ctx context.Context, locator string, crashedMasterID, segmentID, partitionID uint64) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, locator)
	f.mu.Unlock()

	if err, ok := f.fail[locator]; ok {
		return nil, err
	}
	return f.byKey[locator], nil
}

func TestRecoverSucceedsAndMarksTabletsNormal(t *testing.T) {
	log, index := newFixture()
	tablets := tablet.New()
	owned := &tablet.Tablet{TableID: 1, StartID: 0, EndID: 999, State: tablet.Recovering}
	tablets.Add(owned)

	fetcher := newScriptedFetcher()
	fetcher.ok("backup-a", 1, encodeRecord(objlog.TypeObject, 1, 10, 1, []byte("v1")))
	fetcher.ok("backup-b", 2, encodeRecord(objlog.TypeObject, 1, 20, 1, []byte("v2")))

	coord := New(log, index, tablets, fetcher, 1)
	entries := []ReplicaEntry{
		{SegmentID: 1, BackupLocator: "backup-a"},
		{SegmentID: 2, BackupLocator: "backup-b"},
	}

	result, err := coord.Recover(context.Background(), 1, 1, []*tablet.Tablet{owned}, entries)
	require.NoError(t, err)
	for _, e := range result {
		require.Equal(t, OK, e.Status)
	}

	got, lerr := tablets.Locate(1, 10)
	require.NoError(t, lerr)
	require.Equal(t, tablet.Normal, got.State)

	_, ok := index.Lookup(1, 10)
	require.True(t, ok)
	_, ok = index.Lookup(1, 20)
	require.True(t, ok)
}

func TestRecoverTransitiveSuccessOnDuplicateSegment(t *testing.T) {
	log, index := newFixture()
	tablets := tablet.New()
	owned := &tablet.Tablet{TableID: 1, StartID: 0, EndID: 999, State: tablet.Recovering}
	tablets.Add(owned)

	fetcher := newScriptedFetcher()
	fetcher.ok("replica-1", 1, encodeRecord(objlog.TypeObject, 1, 10, 1, []byte("v1")))
	// replica-2 would fail if ever called; it never should be.
	fetcher.bad("replica-2", errors.New("must not be dialed"))

	coord := New(log, index, tablets, fetcher, 2)
	entries := []ReplicaEntry{
		{SegmentID: 1, BackupLocator: "replica-1"},
		{SegmentID: 1, BackupLocator: "replica-2"},
	}

	result, err := coord.Recover(context.Background(), 1, 1, []*tablet.Tablet{owned}, entries)
	require.NoError(t, err)
	require.Equal(t, OK, result[0].Status)
	require.Equal(t, OK, result[1].Status)

	require.NotContains(t, fetcher.calls, "replica-2")
}

func TestRecoverFallsThroughBadLocatorToNextReplica(t *testing.T) {
	log, index := newFixture()
	tablets := tablet.New()
	owned := &tablet.Tablet{TableID: 1, StartID: 0, EndID: 999, State: tablet.Recovering}
	tablets.Add(owned)

	fetcher := newScriptedFetcher()
	fetcher.bad("unreachable", errors.New("connection refused"))
	fetcher.ok("reachable", 1, encodeRecord(objlog.TypeObject, 1, 10, 1, []byte("v1")))

	coord := New(log, index, tablets, fetcher, 1)
	entries := []ReplicaEntry{
		{SegmentID: 1, BackupLocator: "unreachable"},
		{SegmentID: 1, BackupLocator: "reachable"},
	}

	result, err := coord.Recover(context.Background(), 1, 1, []*tablet.Tablet{owned}, entries)
	require.NoError(t, err)

	var gotOK, gotFailed bool
	for _, e := range result {
		switch e.Status {
		case OK:
			gotOK = true
		case Failed:
			gotFailed = true
		}
	}
	require.True(t, gotOK)
	require.True(t, gotFailed)
}

func TestRecoverFailsWhenSegmentUnreachableEverywhere(t *testing.T) {
	log, index := newFixture()
	tablets := tablet.New()
	owned := &tablet.Tablet{TableID: 1, StartID: 0, EndID: 999, State: tablet.Recovering}
	tablets.Add(owned)

	fetcher := newScriptedFetcher()
	fetcher.bad("only-backup", errors.New("disk failure"))

	coord := New(log, index, tablets, fetcher, 1)
	entries := []ReplicaEntry{{SegmentID: 1, BackupLocator: "only-backup"}}

	_, err := coord.Recover(context.Background(), 1, 1, []*tablet.Tablet{owned}, entries)
	require.ErrorIs(t, err, ErrSegmentRecoveryFailed)

	_, lerr := tablets.Locate(1, 10)
	require.ErrorIs(t, lerr, tablet.ErrTabletRecovering)
	require.Equal(t, tablet.Recovering, owned.State)
}

func TestRecoverWithHighKStartsAllInInitialRound(t *testing.T) {
	log, index := newFixture()
	tablets := tablet.New()
	owned := &tablet.Tablet{TableID: 1, StartID: 0, EndID: 999, State: tablet.Recovering}
	tablets.Add(owned)

	fetcher := newScriptedFetcher()
	entries := make([]ReplicaEntry, 5)
	for i := range entries {
		locator := "backup-" + string(rune('a'+i))
		fetcher.ok(locator, uint64(i+1), encodeRecord(objlog.TypeObject, 1, uint64(i), 1, nil))
		entries[i] = ReplicaEntry{SegmentID: uint64(i + 1), BackupLocator: locator}
	}

	coord := New(log, index, tablets, fetcher, 64)
	result, err := coord.Recover(context.Background(), 1, 1, []*tablet.Tablet{owned}, entries)
	require.NoError(t, err)
	for _, e := range result {
		require.Equal(t, OK, e.Status)
	}
}
