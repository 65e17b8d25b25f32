package mpsc

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushRecvOrder(t *testing.T) {
	q := New[int]()

	for i := 0; i < 5; i++ {
		v := i
		require.True(t, q.Push(&v))
	}
	q.Close()

	var got []int
	for v := range q.Recv() {
		got = append(got, *v)
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestConcurrentProducers(t *testing.T) {
	q := New[int]()

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				v := base*20 + i
				q.Push(&v)
			}
		}(p)
	}

	go func() {
		wg.Wait()
		q.Close()
	}()

	var got []int
	for v := range q.Recv() {
		got = append(got, *v)
	}

	require.Len(t, got, 160)
	sort.Ints(got)
	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestPushAfterCloseRejected(t *testing.T) {
	q := New[int]()
	q.Close()

	v := 1
	require.False(t, q.Push(&v))
	require.True(t, q.IsClosed())
}

func TestPushNilRejected(t *testing.T) {
	q := New[int]()
	require.False(t, q.Push(nil))
	q.Close()
}
