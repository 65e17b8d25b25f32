package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func echoHandler(ctx context.Context, req []byte) []byte {
	out := make([]byte, len(req))
	copy(out, req)
	return out
}

func TestHandleRPCMessageTooShort(t *testing.T) {
	d := New(5 * time.Millisecond)
	defer d.Shutdown()

	_, err := d.HandleRPC(context.Background(), nil)
	require.Error(t, err)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, StatusMessageTooShort, rej.Status)
}

func TestHandleRPCServiceNotAvailable(t *testing.T) {
	d := New(5 * time.Millisecond)
	defer d.Shutdown()

	_, err := d.HandleRPC(context.Background(), []byte{7, 1, 2, 3})
	require.Error(t, err)
	var rej *RejectedError
	require.ErrorAs(t, err, &rej)
	require.Equal(t, StatusServiceNotAvailable, rej.Status)
}

func TestHandleRPCRoundTrip(t *testing.T) {
	d := New(5 * time.Millisecond)
	defer d.Shutdown()
	d.Register(1, echoHandler, 1)

	resp, err := d.HandleRPC(context.Background(), []byte{1, 'h', 'i'})
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), resp)
}

func TestConcurrencyIsBoundedPerService(t *testing.T) {
	d := New(5 * time.Millisecond)
	defer d.Shutdown()

	var inFlight atomic.Int32
	var maxObserved atomic.Int32
	release := make(chan struct{})

	d.Register(2, func(ctx context.Context, req []byte) []byte {
		n := inFlight.Add(1)
		for {
			cur := maxObserved.Load()
			if n <= cur || maxObserved.CompareAndSwap(cur, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return nil
	}, 2)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = d.HandleRPC(context.Background(), []byte{2})
		}()
	}

	time.Sleep(30 * time.Millisecond)
	require.LessOrEqual(t, maxObserved.Load(), int32(2))

	close(release)
	wg.Wait()
}

func TestWaitingQueueDrainsAfterCompletion(t *testing.T) {
	d := New(5 * time.Millisecond)
	defer d.Shutdown()

	var completed atomic.Int32
	gate := make(chan struct{})

	d.Register(3, func(ctx context.Context, req []byte) []byte {
		<-gate
		completed.Add(1)
		return req
	}, 1)

	results := make(chan []byte, 3)
	for i := 0; i < 3; i++ {
		go func(b byte) {
			resp, err := d.HandleRPC(context.Background(), []byte{3, b})
			require.NoError(t, err)
			results <- resp
		}(byte(i))
	}

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, int32(0), completed.Load())

	close(gate)

	for i := 0; i < 3; i++ {
		<-results
	}
	require.Equal(t, int32(3), completed.Load())
}

func TestWorkerSurvivesSleepWakeCycle(t *testing.T) {
	// Budget shorter than the gap between calls forces the worker to park
	// on its condition variable between RPCs, exercising the futex-style
	// wake path rather than the fast-poll path.
	d := New(2 * time.Millisecond)
	defer d.Shutdown()
	d.Register(4, echoHandler, 1)

	resp1, err := d.HandleRPC(context.Background(), []byte{4, 'a'})
	require.NoError(t, err)
	require.Equal(t, []byte("a"), resp1)

	time.Sleep(20 * time.Millisecond) // long enough for the worker to sleep

	resp2, err := d.HandleRPC(context.Background(), []byte{4, 'b'})
	require.NoError(t, err)
	require.Equal(t, []byte("b"), resp2)
}
