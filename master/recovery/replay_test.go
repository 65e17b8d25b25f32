package recovery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ramforge/ramforge/master/hashindex"
	"github.com/ramforge/ramforge/master/objlog"
)

func newFixture() (*objlog.Log, *hashindex.HashIndex) {
	log := objlog.New()
	return log, hashindex.New(64, log, "")
}

func TestApplyRecordObjectInsertWhenAbsent(t *testing.T) {
	log, index := newFixture()
	err := applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 1, Payload: []byte("v1")})
	require.NoError(t, err)

	ptr, ok := index.Lookup(1, 1)
	require.True(t, ok)
	hdr, _ := log.Header(ptr)
	require.Equal(t, uint64(1), hdr.Version)
}

func TestApplyRecordObjectReplacesOlderObject(t *testing.T) {
	log, index := newFixture()
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 1}))
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 5}))

	ptr, _ := index.Lookup(1, 1)
	hdr, _ := log.Header(ptr)
	require.Equal(t, uint64(5), hdr.Version)
}

func TestApplyRecordObjectIgnoresOlderOrEqualVersion(t *testing.T) {
	log, index := newFixture()
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 5}))
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 5}))
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 2}))

	ptr, _ := index.Lookup(1, 1)
	hdr, _ := log.Header(ptr)
	require.Equal(t, uint64(5), hdr.Version)
}

func TestApplyRecordTombstoneOverObjectRequiresGE(t *testing.T) {
	log, index := newFixture()
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 5}))

	// Tombstone at the same version as the live object dominates (>=).
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeTombstone, TableID: 1, ObjectID: 1, Version: 5}))
	ptr, _ := index.Lookup(1, 1)
	hdr, _ := log.Header(ptr)
	require.Equal(t, objlog.TypeTombstone, hdr.Type)
}

func TestApplyRecordTombstoneOverObjectIgnoredWhenLower(t *testing.T) {
	log, index := newFixture()
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 5}))
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeTombstone, TableID: 1, ObjectID: 1, Version: 3}))

	ptr, _ := index.Lookup(1, 1)
	hdr, _ := log.Header(ptr)
	require.Equal(t, objlog.TypeObject, hdr.Type)
}

func TestApplyRecordTombstoneOverTombstoneRequiresStrictlyGreater(t *testing.T) {
	log, index := newFixture()
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeTombstone, TableID: 1, ObjectID: 1, Version: 5}))
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeTombstone, TableID: 1, ObjectID: 1, Version: 5}))

	ptr, _ := index.Lookup(1, 1)
	hdr, _ := log.Header(ptr)
	require.Equal(t, uint64(5), hdr.Version)

	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeTombstone, TableID: 1, ObjectID: 1, Version: 9}))
	ptr, _ = index.Lookup(1, 1)
	hdr, _ = log.Header(ptr)
	require.Equal(t, uint64(9), hdr.Version)
}

func TestWalkSegmentRoundTrip(t *testing.T) {
	buf := append(
		encodeRecord(objlog.TypeObject, 1, 10, 1, []byte("hello")),
		encodeRecord(objlog.TypeTombstone, 1, 11, 2, nil)...,
	)

	records, err := walkSegment(buf)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, objlog.TypeObject, records[0].Type)
	require.Equal(t, []byte("hello"), records[0].Payload)
	require.Equal(t, objlog.TypeTombstone, records[1].Type)
	require.Equal(t, uint64(11), records[1].ObjectID)
}

func TestWalkSegmentSkipsUnknownType(t *testing.T) {
	good := encodeRecord(objlog.TypeObject, 1, 1, 1, []byte("x"))
	unknown := encodeRecord(objlog.TypeTombstone, 1, 2, 1, nil)
	unknown[0] = 0xFF // corrupt the type tag to something unrecognised

	buf := append(good, unknown...)
	records, err := walkSegment(buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestRemoveTombstonesPass(t *testing.T) {
	log, index := newFixture()
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeObject, TableID: 1, ObjectID: 1, Version: 1}))
	require.NoError(t, applyRecord(log, index, 1, decodedRecord{Type: objlog.TypeTombstone, TableID: 1, ObjectID: 2, Version: 1}))

	_, ok := index.Lookup(1, 1)
	require.True(t, ok)
	_, ok = index.Lookup(1, 2)
	require.True(t, ok)

	removeTombstones(log, index)

	_, ok = index.Lookup(1, 1)
	require.True(t, ok, "live object must survive the tombstone pass")
	_, ok = index.Lookup(1, 2)
	require.False(t, ok, "tombstone must be removed by the pass")
}
