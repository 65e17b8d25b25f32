package hashindex

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/ramforge/ramforge/master/objlog"
)

func TestSizeofCacheLine(t *testing.T) {
	var cl CacheLine
	require.Equal(t, uintptr(64), unsafe.Sizeof(cl))
}

// newSingleBucketIndex forces every key into the same primary bucket so
// overflow-chain behaviour is deterministic to test.
func newSingleBucketIndex(log *objlog.Log) *HashIndex {
	return New(8, log, "")
}

func TestInsertLookupRoundTrip(t *testing.T) {
	log := objlog.New()
	idx := New(1024, log, "")

	ptr := log.AppendObject(0, 42, 1, []byte("hello"))
	require.NoError(t, idx.Insert(0, 42, ptr))

	got, ok := idx.Lookup(0, 42)
	require.True(t, ok)
	require.Equal(t, ptr, got)

	_, ok = idx.Lookup(0, 43)
	require.False(t, ok)
}

func TestOverflowChainOnNinthInsert(t *testing.T) {
	log := objlog.New()
	idx := newSingleBucketIndex(log)
	require.Equal(t, uint64(1), idx.numBuckets)

	var ptrs []objlog.LogPtr
	for i := uint64(0); i < 9; i++ {
		ptr := log.AppendObject(0, i, 1, []byte{byte(i)})
		require.NoError(t, idx.Insert(0, i, ptr))
		ptrs = append(ptrs, ptr)
	}

	// The 9th insert must have allocated an overflow bucket off the
	// primary bucket's last slot.
	require.True(t, idx.buckets[0].Slots[7].IsChain())
	require.Len(t, idx.overflow, 1)

	for i := uint64(0); i < 9; i++ {
		got, ok := idx.Lookup(0, i)
		require.True(t, ok, "key %d should still be found", i)
		require.Equal(t, ptrs[i], got)
	}
}

func TestRemove(t *testing.T) {
	log := objlog.New()
	idx := New(1024, log, "")

	ptr := log.AppendObject(0, 1, 1, []byte("v1"))
	require.NoError(t, idx.Insert(0, 1, ptr))

	require.True(t, idx.Remove(0, 1))
	_, ok := idx.Lookup(0, 1)
	require.False(t, ok)

	require.False(t, idx.Remove(0, 1))
}

func TestReplace(t *testing.T) {
	log := objlog.New()
	idx := New(1024, log, "")

	ptr1 := log.AppendObject(0, 1, 1, []byte("v1"))
	require.NoError(t, idx.Insert(0, 1, ptr1))

	ptr2 := log.AppendObject(0, 1, 2, []byte("v2"))
	require.NoError(t, idx.Replace(ptr2))

	got, ok := idx.Lookup(0, 1)
	require.True(t, ok)
	require.Equal(t, ptr2, got)
}

func TestReplaceNotPresent(t *testing.T) {
	log := objlog.New()
	idx := New(1024, log, "")

	ptr := log.AppendObject(0, 1, 1, []byte("v1"))
	err := idx.Replace(ptr)
	require.ErrorIs(t, err, ErrNotPresent)
}

func TestForEach(t *testing.T) {
	log := objlog.New()
	idx := newSingleBucketIndex(log)

	want := map[uint64]objlog.LogPtr{}
	for i := uint64(0); i < 12; i++ {
		ptr := log.AppendObject(0, i, 1, nil)
		require.NoError(t, idx.Insert(0, i, ptr))
		want[i] = ptr
	}

	got := map[uint64]objlog.LogPtr{}
	idx.ForEach(func(tableID uint32, objectID uint64, ptr objlog.LogPtr) bool {
		got[objectID] = ptr
		return true
	})

	require.Equal(t, want, got)
}

func TestHashCodeStable(t *testing.T) {
	a := hashCode(7, 99)
	b := hashCode(7, 99)
	require.Equal(t, a, b)
}
