package hashindex

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// BinWidth is the width, in cycles, of each PerfHistogram bin (§4.B).
const BinWidth = 10

// NBins is the number of fixed-width bins PerfHistogram tracks before
// falling back to the overflow counter.
const NBins = 2048

// PerfHistogram is the fixed-width latency histogram every hash-index
// lookup records a sample into. Bins are plain atomics rather than a
// mutex-guarded slice: the process-wide registration of a histogram (one
// per HashIndex) is the only operation that needs serialization, while the
// per-lookup increments that follow are lock-free, matching the ambient
// "spin-lock-protected registration, thread-local increments" performance-
// counter policy this repo follows for all cross-cutting counters.
type PerfHistogram struct {
	bins         [NBins]atomic.Uint64
	binOverflows atomic.Uint64
	count        atomic.Uint64
	sum          atomic.Uint64
	min          atomic.Uint64
	max          atomic.Uint64

	// exported mirrors the same samples into a process-wide VictoriaMetrics
	// histogram so lookup latency shows up on /metrics alongside every
	// other counter in the process, without changing the bin/overflow
	// contract the tests exercise directly.
	exported *metrics.Histogram
}

// NewPerfHistogram creates an empty histogram. name, if non-empty,
// registers an exported VictoriaMetrics histogram under that metric name.
func NewPerfHistogram(name string) *PerfHistogram {
	h := &PerfHistogram{}
	h.min.Store(^uint64(0))
	if name != "" {
		h.exported = metrics.GetOrCreateHistogram(name)
	}
	return h
}

// StoreSample records a single lookup-latency sample, measured in cycles
// (or any monotonic unit consistent across samples).
func (h *PerfHistogram) StoreSample(cycles uint64) {
	bin := cycles / BinWidth
	if bin >= NBins {
		h.binOverflows.Add(1)
	} else {
		h.bins[bin].Add(1)
	}

	h.count.Add(1)
	h.sum.Add(cycles)
	casMin(&h.min, cycles)
	casMax(&h.max, cycles)

	if h.exported != nil {
		h.exported.Update(float64(cycles))
	}
}

func casMin(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if v >= cur {
			return
		}
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

func casMax(a *atomic.Uint64, v uint64) {
	for {
		cur := a.Load()
		if v <= cur {
			return
		}
		if a.CompareAndSwap(cur, v) {
			return
		}
	}
}

// Count returns the total number of samples recorded.
func (h *PerfHistogram) Count() uint64 { return h.count.Load() }

// BinOverflows returns the number of samples whose bin index was ≥ NBins.
func (h *PerfHistogram) BinOverflows() uint64 { return h.binOverflows.Load() }

// Bin returns the sample count in bin i (0 <= i < NBins).
func (h *PerfHistogram) Bin(i int) uint64 { return h.bins[i].Load() }

// Min returns the smallest sample recorded, or 0 if none were recorded.
func (h *PerfHistogram) Min() uint64 {
	v := h.min.Load()
	if v == ^uint64(0) {
		return 0
	}
	return v
}

// Max returns the largest sample recorded.
func (h *PerfHistogram) Max() uint64 { return h.max.Load() }

// Mean returns the arithmetic mean of all recorded samples, or 0 if none.
func (h *PerfHistogram) Mean() float64 {
	count := h.count.Load()
	if count == 0 {
		return 0
	}
	return float64(h.sum.Load()) / float64(count)
}
