package tablet

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocateTableNotFound(t *testing.T) {
	m := New()
	_, err := m.Locate(1, 100)
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestLocateFindsOwningTablet(t *testing.T) {
	m := New()
	m.Add(&Tablet{TableID: 1, StartID: 0, EndID: 99, State: Normal})
	m.Add(&Tablet{TableID: 1, StartID: 100, EndID: 199, State: Normal})

	got, err := m.Locate(1, 150)
	require.NoError(t, err)
	require.Equal(t, uint64(100), got.StartID)

	_, err = m.Locate(1, 200)
	require.ErrorIs(t, err, ErrTableNotFound)

	_, err = m.Locate(2, 0)
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestLocateRecoveringDistinctFromNotFound(t *testing.T) {
	m := New()
	m.Add(&Tablet{TableID: 1, StartID: 0, EndID: 99, State: Recovering})

	_, err := m.Locate(1, 50)
	require.ErrorIs(t, err, ErrTabletRecovering)
	require.NotErrorIs(t, err, ErrTableNotFound)
}

func TestSetStateAndForEachInState(t *testing.T) {
	m := New()
	m.Add(&Tablet{TableID: 1, StartID: 0, EndID: 99, State: Recovering})
	m.Add(&Tablet{TableID: 2, StartID: 0, EndID: 99, State: Recovering})

	ok := m.SetState(1, 0, 99, Normal)
	require.True(t, ok)

	var recovering []uint32
	m.ForEachInState(Recovering, func(tb *Tablet) {
		recovering = append(recovering, tb.TableID)
	})
	require.Equal(t, []uint32{2}, recovering)

	got, err := m.Locate(1, 50)
	require.NoError(t, err)
	require.Equal(t, Normal, got.State)
}

func TestRemove(t *testing.T) {
	m := New()
	m.Add(&Tablet{TableID: 1, StartID: 0, EndID: 99, State: Normal})

	require.True(t, m.Remove(1, 0, 99))
	require.False(t, m.Remove(1, 0, 99))

	_, err := m.Locate(1, 50)
	require.ErrorIs(t, err, ErrTableNotFound)
}
