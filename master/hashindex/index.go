// Package hashindex implements the master's cache-line-packed hash index:
// an open-addressed table of 8-entry buckets with chained overflow,
// mapping (tableId, objectId) to a pointer into the object log.
//
// The index is not internally synchronized (see §4.B): callers must
// serialize Insert/Replace/Remove against each other and against any
// concurrent Lookup/ForEach that must observe a consistent view, but
// Lookup/ForEach may run concurrently with each other because every slot is
// a single naturally-aligned 64-bit word.
package hashindex

import (
	"errors"
	"time"

	"github.com/ramforge/ramforge/master/entry"
	"github.com/ramforge/ramforge/master/objlog"
)

// bucketSlots is the number of entry.Entry slots per cache line (8 * 8B =
// 64B, one cache line).
const bucketSlots = 8

// CacheLine is one hash bucket: 8 packed entries, 64 bytes total. The last
// slot, if its chain bit is set, points at the next CacheLine in the
// overflow chain instead of holding a log pointer.
type CacheLine struct {
	Slots [bucketSlots]entry.Entry
}

// ErrNotPresent is returned by Replace when no entry exists for the given
// key.
var ErrNotPresent = errors.New("hashindex: key not present")

// HashIndex is the cache-line-packed open-addressed hash table described in
// §4.B.
type HashIndex struct {
	log        *objlog.Log
	buckets    []CacheLine // primary buckets, length numBuckets (power of 2)
	overflow   []CacheLine // overflow pool, grows monotonically, never freed
	numBuckets uint64
	hist       *PerfHistogram
}

// New creates a hash index backed by log, sized so that it has at least
// capacity/8 primary buckets (rounded up to a power of two).
func New(capacity int, log *objlog.Log, histogramName string) *HashIndex {
	n := nextPow2(uint64(max(1, capacity/bucketSlots)))
	return &HashIndex{
		log:        log,
		buckets:    make([]CacheLine, n),
		numBuckets: n,
		hist:       NewPerfHistogram(histogramName),
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func nextPow2(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// Histogram exposes the per-lookup latency histogram for inspection or
// export.
func (h *HashIndex) Histogram() *PerfHistogram { return h.hist }

// hashCode mixes (tableID, objectID) into a 64-bit value with low
// bit-correlation. Any stable mix satisfies the external contract (§9 open
// questions); this is a splitmix64-style avalanche, chosen because it is
// cheap, branch-free, and deterministic across runs.
func hashCode(tableID uint32, objectID uint64) uint64 {
	x := uint64(tableID)<<32 ^ objectID
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

func (h *HashIndex) locate(tableID uint32, objectID uint64) (bucketIdx uint64, fragment uint16) {
	code := hashCode(tableID, objectID)
	bucketIdx = (code >> 16) & (h.numBuckets - 1)
	fragment = uint16(code & 0xFFFF)
	return
}

func (h *HashIndex) overflowBucket(idx uint64) *CacheLine {
	return &h.overflow[idx]
}

// allocateOverflow appends a fresh, zeroed overflow bucket to the pool and
// returns its index and a pointer to it. Overflow buckets are never freed
// while the index lives (§3).
func (h *HashIndex) allocateOverflow() (uint64, *CacheLine) {
	h.overflow = append(h.overflow, CacheLine{})
	idx := uint64(len(h.overflow) - 1)
	return idx, &h.overflow[idx]
}

// Lookup walks the primary bucket (and any overflow chain) for (tableID,
// objectID) and returns the log pointer on a match.
func (h *HashIndex) Lookup(tableID uint32, objectID uint64) (objlog.LogPtr, bool) {
	start := now()
	bucketIdx, fragment := h.locate(tableID, objectID)
	cl := &h.buckets[bucketIdx]

walk:
	for {
		for i := 0; i < bucketSlots; i++ {
			e := cl.Slots[i]
			if i == bucketSlots-1 && e.IsChain() {
				cl = h.overflowBucket(e.Ptr())
				continue walk
			}
			if e.HashMatches(fragment) {
				ptr := objlog.LogPtr(e.Ptr())
				if hdr, ok := h.log.Header(ptr); ok && hdr.TableID == tableID && hdr.ObjectID == objectID {
					h.hist.StoreSample(since(start))
					return ptr, true
				}
			}
		}
		break
	}
	h.hist.StoreSample(since(start))
	return 0, false
}

// Insert places a new log-pointer entry for (tableID, objectID). The caller
// is responsible for ensuring no entry already exists for that key; use
// Replace to overwrite an existing entry.
func (h *HashIndex) Insert(tableID uint32, objectID uint64, ptr objlog.LogPtr) error {
	bucketIdx, fragment := h.locate(tableID, objectID)
	cl := &h.buckets[bucketIdx]

	for {
		for i := 0; i < bucketSlots; i++ {
			e := &cl.Slots[i]
			isTail := i == bucketSlots-1
			if isTail && e.IsChain() {
				cl = h.overflowBucket(e.Ptr())
				goto nextBucket
			}
			if e.IsEmpty() {
				return e.SetLog(fragment, uint64(ptr))
			}
		}

		// Bucket (including its last slot) is completely full: allocate a
		// new overflow bucket, relocate the tail's last slot into its
		// slot 0, and turn the tail's last slot into a chain pointer. This
		// preserves the invariant that every non-chain entry stays
		// reachable.
		{
			moved := cl.Slots[bucketSlots-1]
			newIdx, newBucket := h.allocateOverflow()
			newBucket.Slots[0] = moved
			if err := cl.Slots[bucketSlots-1].SetChain(newIdx); err != nil {
				return err
			}
			cl = newBucket
		}
	nextBucket:
	}
}

// Replace atomically overwrites the existing entry for the key identified
// by the record at ptr with ptr itself. It fails with ErrNotPresent if no
// entry currently matches that key.
func (h *HashIndex) Replace(ptr objlog.LogPtr) error {
	hdr, ok := h.log.Header(ptr)
	if !ok {
		return ErrNotPresent
	}

	bucketIdx, fragment := h.locate(hdr.TableID, hdr.ObjectID)
	cl := &h.buckets[bucketIdx]

walk:
	for {
		for i := 0; i < bucketSlots; i++ {
			e := &cl.Slots[i]
			if i == bucketSlots-1 && e.IsChain() {
				cl = h.overflowBucket(e.Ptr())
				continue walk
			}
			if e.HashMatches(fragment) {
				if existingHdr, ok := h.log.Header(objlog.LogPtr(e.Ptr())); ok &&
					existingHdr.TableID == hdr.TableID && existingHdr.ObjectID == hdr.ObjectID {
					return e.SetLog(fragment, uint64(ptr))
				}
			}
		}
		break
	}
	return ErrNotPresent
}

// Remove zeroes the entry matching (tableID, objectID), if any. It does not
// compact chains. It reports whether a matching entry was found.
func (h *HashIndex) Remove(tableID uint32, objectID uint64) bool {
	bucketIdx, fragment := h.locate(tableID, objectID)
	cl := &h.buckets[bucketIdx]

walk:
	for {
		for i := 0; i < bucketSlots; i++ {
			e := &cl.Slots[i]
			if i == bucketSlots-1 && e.IsChain() {
				cl = h.overflowBucket(e.Ptr())
				continue walk
			}
			if e.HashMatches(fragment) {
				if hdr, ok := h.log.Header(objlog.LogPtr(e.Ptr())); ok &&
					hdr.TableID == tableID && hdr.ObjectID == objectID {
					e.Clear()
					return true
				}
			}
		}
		break
	}
	return false
}

// Visitor is called by ForEach for every non-empty, non-chain entry. It
// returns false to stop iteration early.
type Visitor func(tableID uint32, objectID uint64, ptr objlog.LogPtr) bool

// ForEach iterates every live (non-empty, non-chain) entry in the index,
// across primary buckets and the overflow pool.
func (h *HashIndex) ForEach(visit Visitor) {
	visitChain := func(cl *CacheLine) bool {
		for i := 0; i < bucketSlots; i++ {
			e := cl.Slots[i]
			if i == bucketSlots-1 && e.IsChain() {
				continue
			}
			if e.IsEmpty() {
				continue
			}
			ptr := objlog.LogPtr(e.Ptr())
			hdr, ok := h.log.Header(ptr)
			if !ok {
				continue
			}
			if !visit(hdr.TableID, hdr.ObjectID, ptr) {
				return false
			}
		}
		return true
	}

	for b := range h.buckets {
		cl := &h.buckets[b]
		for {
			if !visitChain(cl) {
				return
			}
			last := cl.Slots[bucketSlots-1]
			if !last.IsChain() {
				break
			}
			cl = h.overflowBucket(last.Ptr())
		}
	}
}

// now and since abstract the monotonic "cycle counter" the spec's
// performance histogram samples against. Nanoseconds since an arbitrary
// epoch serve as a stand-in for a hardware cycle counter: StoreSample only
// cares about a stable, monotonically-increasing unit, and the bin math is
// exercised directly by tests that call StoreSample with explicit values.
func now() time.Time { return time.Now() }

func since(start time.Time) uint64 { return uint64(time.Since(start)) }
