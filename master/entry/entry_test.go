package entry

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestSizeofEntry(t *testing.T) {
	var e Entry
	require.Equal(t, uintptr(8), unsafe.Sizeof(e))
}

func TestPackUnpackBijection(t *testing.T) {
	cases := []struct {
		hash  uint16
		chain bool
		ptr   uint64
	}{
		{0, false, 0},
		{0xFFFF, false, 0},
		{0, true, 0},
		{1234, false, 0x0000_7FFF_FFFF_FFFF},
		{0xABCD, true, 0x1234_5678_9ABC},
		{0xFFFF, true, 0x7FFF_FFFF_FFFF},
	}

	for _, c := range cases {
		packed := Pack(c.hash, c.chain, c.ptr)
		gotHash, gotChain, gotPtr := Unpack(packed)
		require.Equal(t, c.hash, gotHash)
		require.Equal(t, c.chain, gotChain)
		require.Equal(t, c.ptr, gotPtr)
	}
}

func TestEmptyAndChain(t *testing.T) {
	var e Entry
	require.True(t, e.IsEmpty())
	require.False(t, e.IsChain())

	require.NoError(t, e.SetLog(42, 0x1000))
	require.False(t, e.IsEmpty())
	require.False(t, e.IsChain())

	require.NoError(t, e.SetChain(0x2000))
	require.False(t, e.IsEmpty())
	require.True(t, e.IsChain())

	e.Clear()
	require.True(t, e.IsEmpty())
}

func TestSetLogPointerTooWide(t *testing.T) {
	var e Entry
	err := e.SetLog(1, uint64(1)<<47)
	require.ErrorIs(t, err, ErrPointerTooWide)
}

func TestSetChainPointerTooWide(t *testing.T) {
	var e Entry
	err := e.SetChain(uint64(1)<<47 | 1)
	require.ErrorIs(t, err, ErrPointerTooWide)
}

func TestHashMatches(t *testing.T) {
	var e Entry
	require.False(t, e.HashMatches(0)) // empty never matches

	require.NoError(t, e.SetLog(99, 0x10))
	require.True(t, e.HashMatches(99))
	require.False(t, e.HashMatches(100))

	require.NoError(t, e.SetChain(0x10))
	require.False(t, e.HashMatches(0))
}
