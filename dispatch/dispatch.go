// Package dispatch implements the master's RPC dispatch core: a single
// dispatch thread that owns the busy/idle worker collections and the
// per-service waiting queues, handing each accepted RPC off to a worker
// goroutine bounded by a per-service concurrency limit (spec §4.G/§5).
//
// The core is deliberately agnostic to wire format: requests and
// responses are opaque []byte, and a ServiceType byte prefix is the only
// structure dispatch itself parses. Framing and serialization of the
// payload are a transport/serializer concern, out of scope here.
package dispatch

import (
	"context"
	"time"

	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("dispatch")

// ServiceType identifies a registered service, encoded as the first byte
// of every request.
type ServiceType uint8

// MaxService bounds the service table; it is a small fixed-size array per
// §4.G, not a growable map, since the set of services is known at
// startup.
const MaxService = 32

// Status mirrors the subset of the master's wire status taxonomy dispatch
// itself can produce before a request ever reaches a service handler.
type Status uint8

const (
	StatusMessageTooShort Status = iota
	StatusServiceNotAvailable
)

// Handler executes one RPC for a service. ctx is the context the caller
// passed to HandleRPC/Submit; shutting the dispatcher down does not cancel
// it.
type Handler func(ctx context.Context, req []byte) []byte

// RejectedError is returned by HandleRPC when dispatch itself rejects the
// request before any handler runs.
type RejectedError struct {
	Status Status
}

func (e *RejectedError) Error() string {
	switch e.Status {
	case StatusMessageTooShort:
		return "dispatch: message too short"
	case StatusServiceNotAvailable:
		return "dispatch: service not available"
	default:
		return "dispatch: rejected"
	}
}

type job struct {
	ctx    context.Context
	req    []byte
	svc    *serviceEntry
	respCh chan []byte
}

type serviceEntry struct {
	svcType        ServiceType
	handler        Handler
	maxConcurrency int
	runningCount   int
	waiting        []*job
}

type arrival struct {
	svc    ServiceType
	req    []byte
	ctx    context.Context
	respCh chan []byte
	errCh  chan *RejectedError
}

type completion struct {
	w   *worker
	svc *serviceEntry
}

// Dispatcher is the single-dispatch-thread core. All mutation of the
// busy/idle worker collections and of each service's running count and
// waiting queue happens only inside run, on the dispatcher's own
// goroutine, reached through events. Register is the exception: it writes
// the service table entry directly from the calling goroutine.
type Dispatcher struct {
	services   [MaxService]*serviceEntry
	idle       []*worker
	busy       []*worker
	pollBudget time.Duration

	events  chan any
	stopped chan struct{}
	done    chan struct{}
}

// New creates a dispatcher. pollBudget is how long an idle worker spins
// polling for its next job before parking (§4.G POLL_BUDGET).
func New(pollBudget time.Duration) *Dispatcher {
	d := &Dispatcher{
		pollBudget: pollBudget,
		events:     make(chan any, 64),
		stopped:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

// Register installs handler as the handler for svc, with the given
// maximum concurrency (defaults to 1, a single-threaded service, if <= 0).
func (d *Dispatcher) Register(svc ServiceType, handler Handler, maxConcurrency int) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	d.services[svc] = &serviceEntry{svcType: svc, handler: handler, maxConcurrency: maxConcurrency}
}

// HandleRPC is the arrival path (§4.G) for callers that ship the service
// selector as the request's own first byte: it parses that byte off req,
// and either rejects synchronously (MESSAGE_TOO_SHORT,
// SERVICE_NOT_AVAILABLE) or blocks until a worker has produced a
// response.
func (d *Dispatcher) HandleRPC(ctx context.Context, req []byte) ([]byte, error) {
	if len(req) < 1 {
		return nil, &RejectedError{Status: StatusMessageTooShort}
	}
	return d.Submit(ctx, ServiceType(req[0]), req[1:])
}

// Submit is the arrival path for callers that already know which service a
// request targets (e.g. a server that deserializes an envelope carrying an
// explicit message-type field before routing). It blocks until a worker
// has produced a response, the dispatcher is shut down, or ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, svc ServiceType, req []byte) ([]byte, error) {
	a := &arrival{
		svc:    svc,
		req:    req,
		ctx:    ctx,
		respCh: make(chan []byte, 1),
		errCh:  make(chan *RejectedError, 1),
	}

	select {
	case d.events <- a:
	case <-d.done:
		return nil, &RejectedError{Status: StatusServiceNotAvailable}
	}

	select {
	case resp := <-a.respCh:
		return resp, nil
	case rejErr := <-a.errCh:
		return nil, rejErr
	case <-d.done:
		select {
		case resp := <-a.respCh:
			return resp, nil
		case rejErr := <-a.errCh:
			return nil, rejErr
		default:
			return nil, &RejectedError{Status: StatusServiceNotAvailable}
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown drains outstanding work and stops every worker. It blocks
// until the dispatch goroutine has exited.
func (d *Dispatcher) Shutdown() {
	close(d.stopped)
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case e := <-d.events:
			d.handleEvent(e)
		case <-d.stopped:
			for len(d.busy) > 0 {
				d.handleEvent(<-d.events)
			}
			d.shutdownWorkers()
			return
		}
	}
}

func (d *Dispatcher) handleEvent(e any) {
	switch ev := e.(type) {
	case *arrival:
		d.handleArrival(ev)
	case *completion:
		d.handleCompletion(ev)
	}
}

func (d *Dispatcher) handleArrival(a *arrival) {
	if int(a.svc) >= MaxService || d.services[a.svc] == nil {
		a.errCh <- &RejectedError{Status: StatusServiceNotAvailable}
		return
	}

	entry := d.services[a.svc]
	j := &job{ctx: a.ctx, req: a.req, svc: entry, respCh: a.respCh}

	if entry.runningCount >= entry.maxConcurrency {
		entry.waiting = append(entry.waiting, j)
		return
	}
	d.dispatch(entry, j)
}

// dispatch hands j to an idle worker (or spawns one) and marks entry as
// running one more RPC. Caller must hold no lock: this only ever runs on
// the dispatch goroutine.
func (d *Dispatcher) dispatch(entry *serviceEntry, j *job) {
	entry.runningCount++

	w := d.obtainWorker()
	w.busyIndex = len(d.busy)
	d.busy = append(d.busy, w)

	w.assign(j)
}

// obtainWorker pops an idle worker or lazily spawns a new one (§3
// Lifecycles: "Workers: created lazily on demand").
func (d *Dispatcher) obtainWorker() *worker {
	if n := len(d.idle); n > 0 {
		w := d.idle[n-1]
		d.idle = d.idle[:n-1]
		return w
	}
	w := newWorker(d.pollBudget, func(w *worker, entry *serviceEntry) {
		d.events <- &completion{w: w, svc: entry}
	})
	go w.loop()
	return w
}

// handleCompletion is the poll() completion path (§4.G): remove w from
// busy, decrement its service's runningCount, start the next waiting job
// for that service if any, and return w to idle.
func (d *Dispatcher) handleCompletion(c *completion) {
	d.removeBusy(c.w)
	c.svc.runningCount--
	d.idle = append(d.idle, c.w)

	if len(c.svc.waiting) > 0 {
		next := c.svc.waiting[0]
		c.svc.waiting = c.svc.waiting[1:]
		d.dispatch(c.svc, next)
	}
}

// removeBusy removes w from the busy slice at its busyIndex (walking the
// slice tail-to-head only if that index is stale), swapping the removed
// worker with the tail entry so the removal is O(1) and every remaining
// worker's busyIndex stays accurate.
func (d *Dispatcher) removeBusy(w *worker) {
	last := len(d.busy) - 1
	idx := w.busyIndex
	if idx < 0 || idx > last || d.busy[idx] != w {
		for i := last; i >= 0; i-- {
			if d.busy[i] == w {
				idx = i
				break
			}
		}
	}
	d.busy[idx] = d.busy[last]
	d.busy[idx].busyIndex = idx
	d.busy = d.busy[:last]
}

func (d *Dispatcher) shutdownWorkers() {
	for _, w := range d.idle {
		w.exit()
	}
	for _, w := range d.busy {
		w.exit()
	}
	log.Infof("dispatch: shut down with %d idle, %d busy workers", len(d.idle), len(d.busy))
}
