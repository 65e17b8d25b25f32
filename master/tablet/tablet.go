// Package tablet implements the master's tablet map: the range-keyed
// lookup from (tableId, objectId) to the tablet that owns it, and the
// NORMAL/RECOVERING state each tablet carries during crash recovery.
package tablet

import (
	"errors"

	"github.com/puzpuzpuz/xsync/v3"
)

// State is a tablet's recovery state.
type State int

const (
	// Normal tablets serve reads and writes.
	Normal State = iota
	// Recovering tablets are being repopulated by the recovery coordinator
	// and reject client operations until recovery completes.
	Recovering
)

func (s State) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case Recovering:
		return "RECOVERING"
	default:
		return "UNKNOWN"
	}
}

// Tablet is a contiguous objectId range of one table, owned by exactly one
// master. EndID is inclusive.
type Tablet struct {
	TableID  uint32
	StartID  uint64
	EndID    uint64
	State    State
	TableRef uint64 // opaque ref the service table / log uses to scope a table
}

func (t *Tablet) contains(objectID uint64) bool {
	return objectID >= t.StartID && objectID <= t.EndID
}

// ErrTableNotFound is returned by Locate when no tablet of the given table
// exists on this master at all.
var ErrTableNotFound = errors.New("tablet: table not found")

// ErrTabletRecovering is returned by Locate when a tablet covers the
// requested key but is currently in the RECOVERING state. It is kept
// distinct from ErrTableNotFound so callers can map the two to different
// wire statuses.
var ErrTabletRecovering = errors.New("tablet: tablet not ready, recovering")

// Map is the master's tablet map. It is safe for concurrent use.
type Map struct {
	// byTable groups tablets by tableId so Locate's linear scan is confined
	// to the (expected small) set of tablets belonging to one table, rather
	// than every tablet this master owns.
	byTable *xsync.MapOf[uint32, []*Tablet]
}

// New creates an empty tablet map.
func New() *Map {
	return &Map{byTable: xsync.NewMapOf[uint32, []*Tablet]()}
}

// Locate finds the tablet owning (tableID, objectID). It returns
// ErrTableNotFound if this master has no tablet of that table at all, and
// ErrTabletRecovering if a covering tablet exists but is RECOVERING.
func (m *Map) Locate(tableID uint32, objectID uint64) (*Tablet, error) {
	tablets, ok := m.byTable.Load(tableID)
	if !ok {
		return nil, ErrTableNotFound
	}

	for _, t := range tablets {
		if t.contains(objectID) {
			if t.State == Recovering {
				return nil, ErrTabletRecovering
			}
			return t, nil
		}
	}
	return nil, ErrTableNotFound
}

// FirstNormalTablet returns a NORMAL tablet of tableID to host a new
// server-chosen object id, for operations (like create) that don't yet
// have an objectId to range-check against.
func (m *Map) FirstNormalTablet(tableID uint32) (*Tablet, error) {
	tablets, ok := m.byTable.Load(tableID)
	if !ok {
		return nil, ErrTableNotFound
	}
	for _, t := range tablets {
		if t.State == Normal {
			return t, nil
		}
	}
	return nil, ErrTabletRecovering
}

// Add inserts a tablet into the map. Ranges within a table are expected to
// be disjoint; Add does not validate this (the coordinator is the
// authority on tablet assignment).
func (m *Map) Add(t *Tablet) {
	m.byTable.Compute(t.TableID, func(cur []*Tablet, loaded bool) ([]*Tablet, bool) {
		if !loaded {
			return []*Tablet{t}, false
		}
		return append(cur, t), false
	})
}

// Remove drops the tablet matching (tableID, startID, endID), if present.
func (m *Map) Remove(tableID uint32, startID, endID uint64) bool {
	removed := false
	m.byTable.Compute(tableID, func(cur []*Tablet, loaded bool) ([]*Tablet, bool) {
		if !loaded {
			return nil, true
		}
		out := cur[:0:0]
		for _, t := range cur {
			if t.StartID == startID && t.EndID == endID {
				removed = true
				continue
			}
			out = append(out, t)
		}
		if len(out) == 0 {
			return nil, true
		}
		return out, false
	})
	return removed
}

// SetState transitions the tablet matching (tableID, startID, endID) to
// state. It reports whether a matching tablet was found.
func (m *Map) SetState(tableID uint32, startID, endID uint64, state State) bool {
	tablets, ok := m.byTable.Load(tableID)
	if !ok {
		return false
	}
	for _, t := range tablets {
		if t.StartID == startID && t.EndID == endID {
			t.State = state
			return true
		}
	}
	return false
}

// ForEachInState calls visit for every tablet currently in state.
func (m *Map) ForEachInState(state State, visit func(*Tablet)) {
	m.byTable.Range(func(_ uint32, tablets []*Tablet) bool {
		for _, t := range tablets {
			if t.State == state {
				visit(t)
			}
		}
		return true
	})
}
