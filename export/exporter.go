// Package export buffers traces and delivers them to a collector with
// retry, backoff and drop semantics.
package export

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tracebuf/clock"
	"github.com/m-mizutani/tracebuf/trace"
	"github.com/m-mizutani/tracebuf/transport"
)

// Exporter owns the export queue and its retry scheduler. Delivery errors
// never reach the caller; they are reported to the Observer.
//
// A single mutex guards the queue, the retrying marks, the in-flight set
// and the closed flag. Network sends happen without the lock.
type Exporter struct {
	transport  transport.Transport
	credential string
	singlePath string
	batchPath  string
	policy     Policy
	clock      clock.Clock
	observer   Observer
	logger     *slog.Logger
	deadLetter trace.Repository

	mu       sync.Mutex
	queue    *Queue
	sched    *Scheduler
	inFlight map[string]*Unit
	closed   bool
	final    bool

	stopping chan struct{}
	wg       sync.WaitGroup
}

// New creates an Exporter delivering through tp.
func New(tp transport.Transport, opts ...Option) *Exporter {
	e := &Exporter{
		transport:  tp,
		singlePath: transport.SinglePath,
		batchPath:  transport.BatchPath,
		policy:     DefaultPolicy(),
		clock:      clock.Real(),
		observer:   nopObserver{},
		logger:     slog.New(slog.DiscardHandler),
		queue:      NewQueue(),
		inFlight:   make(map[string]*Unit),
		stopping:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.observer == nil {
		e.observer = nopObserver{}
	}

	e.sched = NewScheduler(e.queue, e.policy, e.clock, e.observer, e.retryDue)
	e.policy = e.sched.Policy()
	return e
}

// Enqueue registers a trace for delivery with retry count 0. It is called
// once when the trace is created.
func (e *Exporter) Enqueue(tr *trace.Trace) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.logger.Warn("exporter is shut down, trace is not buffered", "trace_id", tr.ID())
		return
	}
	e.queue.Enqueue(tr)
}

// Pending returns a snapshot of the queue in insertion order.
func (e *Exporter) Pending() []UnitView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Snapshot()
}

// FlushTrace starts a single delivery of tr in the background. A pending
// retry timer of the trace is cancelled first. If a delivery of the same
// trace is already in flight, the flush is replayed after that delivery
// succeeds.
func (e *Exporter) FlushTrace(tr *trace.Trace) {
	id := tr.ID()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn("exporter is shut down, trace is not flushed", "trace_id", id)
		return
	}
	if u, busy := e.inFlight[id]; busy {
		u.resend = true
		e.mu.Unlock()
		return
	}
	u, ok := e.queue.Get(id)
	if !ok {
		u = &Unit{Trace: tr}
	}
	e.claimLocked(u)
	e.wg.Add(1)
	e.mu.Unlock()

	go e.deliverSingle(u)
}

// retryDue is fired by the scheduler when a retry timer expires.
func (e *Exporter) retryDue(id string) {
	e.mu.Lock()
	u, ok := e.queue.Get(id)
	if e.closed || !ok {
		e.mu.Unlock()
		return
	}
	if _, busy := e.inFlight[id]; busy {
		e.mu.Unlock()
		return
	}
	e.claimLocked(u)
	e.wg.Add(1)
	e.mu.Unlock()

	e.deliverSingle(u)
}

// claimLocked hands u to the single path: its timer is cancelled and it is
// kept in the queue, excluded from batches, while in flight.
func (e *Exporter) claimLocked(u *Unit) {
	id := u.Trace.ID()
	e.sched.Cancel(id)
	e.queue.Insert(u)
	e.queue.MarkRetrying(id)
	e.inFlight[id] = u
}

func (e *Exporter) deliverSingle(u *Unit) {
	defer e.wg.Done()

	ctx := context.Background()
	id := u.Trace.ID()
	ids := []string{id}

	for {
		err := e.send(ctx, e.singlePath, u.Trace.Snapshot())

		e.mu.Lock()
		delete(e.inFlight, id)

		if err != nil {
			u.resend = false
			e.observer.Failed(ctx, ModeSingle, ids, u.Retries+1, err)
			if e.closed && !e.final {
				// Left for the final flush of Shutdown.
				e.queue.ClearRetrying(id)
				e.queue.Insert(u)
				e.mu.Unlock()
				return
			}
			var dropped bool
			if e.final {
				e.dropLocked(ctx, u, err)
				dropped = true
			} else {
				dropped = e.sched.Fail(ctx, u, err)
			}
			e.mu.Unlock()
			if dropped {
				e.saveDeadLetter(ctx, u)
			}
			return
		}

		e.queue.Remove(id)
		e.queue.ClearRetrying(id)
		u.Retries = 0
		e.observer.Delivered(ctx, ModeSingle, ids)

		again := e.replayLocked(u)
		e.mu.Unlock()
		if !again {
			return
		}
	}
}

// replayLocked consumes a resend request recorded while u was in flight
// and reports whether the caller must deliver u again.
func (e *Exporter) replayLocked(u *Unit) bool {
	if !u.resend {
		return false
	}
	u.resend = false
	if e.final {
		return false
	}
	if e.closed {
		e.queue.Insert(u)
		return false
	}
	e.claimLocked(u)
	return true
}

// Flush delivers every queued trace not currently owned by the retry path
// as one batch. Failed batches are retried BatchRetryAttempts times after
// BatchRetryDelay; if every attempt fails, each trace is handed to the
// retry scheduler individually. Flush blocks until the batch is settled.
func (e *Exporter) Flush(ctx context.Context) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	units, _ := e.queue.Partition()
	if len(units) == 0 {
		e.mu.Unlock()
		return
	}
	for _, u := range units {
		e.queue.Remove(u.Trace.ID())
		e.inFlight[u.Trace.ID()] = u
	}
	e.wg.Add(1)
	e.mu.Unlock()
	defer e.wg.Done()

	ids := unitIDs(units)
	err := e.sendBatch(ctx, ids, units)

	var replay, dropped []*Unit
	e.mu.Lock()
	for _, u := range units {
		delete(e.inFlight, u.Trace.ID())
		if err == nil {
			if e.replayLocked(u) {
				e.wg.Add(1)
				replay = append(replay, u)
			}
			continue
		}

		u.resend = false
		if e.final {
			e.dropLocked(ctx, u, err)
			dropped = append(dropped, u)
			continue
		}
		if e.closed {
			e.queue.Insert(u)
			continue
		}
		if e.sched.Fail(ctx, u, err) {
			dropped = append(dropped, u)
		}
	}
	if err == nil {
		e.observer.Delivered(ctx, ModeBatch, ids)
	}
	e.mu.Unlock()

	for _, u := range dropped {
		e.saveDeadLetter(ctx, u)
	}
	for _, u := range replay {
		go e.deliverSingle(u)
	}
}

func (e *Exporter) sendBatch(ctx context.Context, ids []string, units []*Unit) error {
	payload, err := marshalBatch(units)
	if err != nil {
		e.observer.Failed(ctx, ModeBatch, ids, 1, err)
		return err
	}

	for attempt := 1; ; attempt++ {
		err = e.transport.Send(ctx, e.batchPath, payload, e.credential)
		if err == nil {
			return nil
		}
		e.observer.Failed(ctx, ModeBatch, ids, attempt, err)
		if attempt > e.policy.BatchRetryAttempts {
			return err
		}

		select {
		case <-e.clock.After(e.policy.BatchRetryDelay):
		case <-e.stopping:
			return err
		case <-ctx.Done():
			return err
		}
	}
}

func (e *Exporter) send(ctx context.Context, path string, snap *trace.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal trace", goerr.V("trace_id", snap.ID))
	}
	return e.transport.Send(ctx, path, payload, e.credential)
}

// Shutdown stops the exporter. It cancels every retry timer and any batch
// retry delay, waits for in-flight deliveries, then sends everything left
// in the queue as one final batch. The final batch is not retried; on
// failure its traces are dropped. Shutdown is idempotent and only returns
// an error if ctx ends while waiting.
//
// If ctx ends first, every queued trace that is not in flight is dropped
// without a send, and deliveries still in flight drop their trace when
// they fail.
func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stopping)
	cancelled := e.sched.CancelAll()
	e.mu.Unlock()

	e.logger.Debug("exporter shutting down", "cancelled_retries", cancelled)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err := goerr.Wrap(ctx.Err(), "shutdown interrupted while waiting for in-flight deliveries")
		e.abandon(context.WithoutCancel(ctx), err)
		return err
	}

	e.mu.Lock()
	e.final = true
	units := e.queue.drain(e.inFlight)
	e.mu.Unlock()
	if len(units) == 0 {
		return nil
	}

	ids := unitIDs(units)
	payload, err := marshalBatch(units)
	if err == nil {
		err = e.transport.Send(ctx, e.batchPath, payload, e.credential)
	}
	if err == nil {
		e.observer.Delivered(ctx, ModeFinal, ids)
		return nil
	}

	e.observer.Failed(ctx, ModeFinal, ids, 1, err)
	for _, u := range units {
		e.observer.Dropped(ctx, u.Trace.ID(), u.Retries, err)
		e.saveDeadLetter(ctx, u)
	}
	return nil
}

// abandon drops every queued trace that is not in flight. Deliveries still
// running see the final flag and drop their trace on failure.
func (e *Exporter) abandon(ctx context.Context, cause error) {
	e.mu.Lock()
	e.final = true
	units := e.queue.drain(e.inFlight)
	for _, u := range units {
		e.dropLocked(ctx, u, cause)
	}
	e.mu.Unlock()

	for _, u := range units {
		e.saveDeadLetter(ctx, u)
	}
}

// dropLocked removes u from the queue and reports it as dropped. The
// caller saves it to the dead letter repository after unlocking.
func (e *Exporter) dropLocked(ctx context.Context, u *Unit, cause error) {
	id := u.Trace.ID()
	e.queue.Remove(id)
	e.queue.ClearRetrying(id)
	e.observer.Dropped(ctx, id, u.Retries, cause)
}

func (e *Exporter) saveDeadLetter(ctx context.Context, u *Unit) {
	if e.deadLetter == nil {
		return
	}
	if err := e.deadLetter.Save(ctx, u.Trace.Snapshot()); err != nil {
		e.logger.Warn("failed to save dropped trace",
			"trace_id", u.Trace.ID(),
			"error", err,
		)
	}
}

func marshalBatch(units []*Unit) ([]byte, error) {
	batch := trace.Batch{Traces: make([]*trace.Snapshot, 0, len(units))}
	for _, u := range units {
		batch.Traces = append(batch.Traces, u.Trace.Snapshot())
	}
	data, err := json.Marshal(batch)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal batch", goerr.V("count", len(units)))
	}
	return data, nil
}

func unitIDs(units []*Unit) []string {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.Trace.ID()
	}
	return ids
}
