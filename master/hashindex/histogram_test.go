package hashindex

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPerfHistogramBinning(t *testing.T) {
	h := NewPerfHistogram("")
	h.StoreSample(0)
	h.StoreSample(9)
	h.StoreSample(10)

	require.Equal(t, uint64(2), h.Bin(0))
	require.Equal(t, uint64(1), h.Bin(1))
	require.Equal(t, uint64(3), h.Count())
	require.Equal(t, uint64(0), h.BinOverflows())
}

func TestPerfHistogramOverflowBin(t *testing.T) {
	h := NewPerfHistogram("")
	h.StoreSample(NBins*BinWidth + 40)
	require.Equal(t, uint64(1), h.BinOverflows())
	require.Equal(t, uint64(1), h.Count())
}

func TestPerfHistogramMinMaxMean(t *testing.T) {
	h := NewPerfHistogram("")
	require.Equal(t, uint64(0), h.Min())
	require.Equal(t, float64(0), h.Mean())

	h.StoreSample(50)
	h.StoreSample(10)
	h.StoreSample(90)

	require.Equal(t, uint64(10), h.Min())
	require.Equal(t, uint64(90), h.Max())
	require.InDelta(t, 50.0, h.Mean(), 0.001)
}

func TestPerfHistogramExportedName(t *testing.T) {
	// A non-empty name registers a process-wide VictoriaMetrics histogram
	// without panicking and without altering the bin/overflow contract.
	h := NewPerfHistogram("ramforge_hashindex_lookup_test")
	h.StoreSample(5)
	require.Equal(t, uint64(1), h.Count())
}
