package dispatch

import (
	"sync"
	"sync/atomic"
	"time"
)

// workerState is one worker's place in the state machine of §3/§4.G.
type workerState int32

const (
	statePolling workerState = iota
	stateWorking
	statePostprocessing
	stateSleeping
)

// worker is one RPC-serving goroutine. Its state atomic is CAS'd from the
// dispatch thread and load/store'd from the worker itself; everything
// else about a worker (its handoff slot, its condition variable) is only
// ever touched by the worker and whoever wakes it, never structurally by
// the dispatcher beyond busyIndex bookkeeping (§5 shared-resource policy).
type worker struct {
	state atomic.Int32

	pending atomic.Pointer[job]
	exiting atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond

	busyIndex int

	pollBudget time.Duration
	onDone     func(*worker, *serviceEntry)
}

func newWorker(pollBudget time.Duration, onDone func(*worker, *serviceEntry)) *worker {
	w := &worker{pollBudget: pollBudget, onDone: onDone}
	w.cond = sync.NewCond(&w.mu)
	w.state.Store(int32(statePolling))
	return w
}

// assign hands j to the worker. If the worker is already spin-polling it
// will notice pending on its own; if it has parked (SLEEPING), assign
// must CAS it back to WORKING and signal the futex-style wait itself —
// this is the hybrid wake-up of §4.G.
func (w *worker) assign(j *job) {
	w.pending.Store(j)

	if w.state.CompareAndSwap(int32(stateSleeping), int32(stateWorking)) {
		w.mu.Lock()
		w.cond.Signal()
		w.mu.Unlock()
	}
}

// exit tells the worker to terminate after its current job, or
// immediately if idle. EXIT is delivered the same way as any other job:
// a nil job pointer with exiting set is the sentinel the loop checks for.
func (w *worker) exit() {
	w.exiting.Store(true)
	if w.state.CompareAndSwap(int32(stateSleeping), int32(stateWorking)) {
		w.mu.Lock()
		w.cond.Signal()
		w.mu.Unlock()
	}
}

func (w *worker) loop() {
	for {
		j := w.waitForJob()
		if j == nil {
			return // exiting, no more work
		}

		w.state.Store(int32(stateWorking))
		resp := j.svc.handler(j.ctx, j.req)

		w.state.Store(int32(statePostprocessing))
		j.respCh <- resp

		w.onDone(w, j.svc)
		w.state.Store(int32(statePolling))
	}
}

// waitForJob implements the fast-poll/futex-sleep hybrid: spin-check the
// handoff slot for pollBudget before parking on the condition variable,
// so a job that arrives while the worker is still hot avoids a syscall,
// while a worker that stays idle past the budget stops burning CPU.
func (w *worker) waitForJob() *job {
	deadline := time.Now().Add(w.pollBudget)
	for time.Now().Before(deadline) {
		if w.exiting.Load() {
			return nil
		}
		if j := w.pending.Swap(nil); j != nil {
			return j
		}
	}

	w.mu.Lock()
	for {
		if w.exiting.Load() {
			w.mu.Unlock()
			return nil
		}
		if j := w.pending.Swap(nil); j != nil {
			w.mu.Unlock()
			return j
		}
		w.state.Store(int32(stateSleeping))
		if w.exiting.Load() || w.pending.Load() != nil {
			continue // arrived before SLEEPING was visible to assign/exit
		}
		w.cond.Wait()
		// Woken: either assign() or exit() flipped us back to WORKING.
	}
}
