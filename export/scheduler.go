package export

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/tracebuf/clock"
)

// Scheduler owns the retry timers of an export queue. When a delivery
// fails it either arms a single-shot timer with exponential backoff or
// drops the trace once its retry budget is spent.
//
// Fail touches the Queue and must be serialized with every other queue
// access by the caller. Timer bookkeeping has its own lock so that Cancel,
// CancelAll and Pending are safe from any goroutine.
type Scheduler struct {
	queue    *Queue
	policy   Policy
	clock    clock.Clock
	observer Observer
	fire     func(traceID string)

	mu     sync.Mutex
	timers map[string]*pendingRetry
	seq    uint64
}

type pendingRetry struct {
	timer *clock.Timer
	seq   uint64
}

// NewScheduler creates a Scheduler for q. fire is invoked with the trace ID
// when a retry timer expires; it runs on the clock's timer goroutine.
func NewScheduler(q *Queue, policy Policy, c clock.Clock, observer Observer, fire func(traceID string)) *Scheduler {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Scheduler{
		queue:    q,
		policy:   policy.normalize(),
		clock:    c,
		observer: observer,
		fire:     fire,
		timers:   make(map[string]*pendingRetry),
	}
}

// Policy returns the effective policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Fail records a failed delivery of u. If the unit still has retry budget,
// its retry count is incremented, it is marked retrying, re-inserted into
// the queue if absent and a timer is armed (replacing any previous one).
// Otherwise the unit is removed from the queue and Fail reports true.
func (s *Scheduler) Fail(ctx context.Context, u *Unit, err error) (dropped bool) {
	id := u.Trace.ID()

	if u.Retries >= s.policy.MaxRetries {
		s.Cancel(id)
		s.queue.Remove(id)
		s.queue.ClearRetrying(id)
		s.observer.Dropped(ctx, id, u.Retries, err)
		return true
	}

	u.Retries++
	delay := s.policy.Backoff(u.Retries)
	s.queue.MarkRetrying(id)
	s.arm(id, delay)
	s.queue.Insert(u)
	s.observer.RetryScheduled(ctx, id, u.Retries, delay)
	return false
}

func (s *Scheduler) arm(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.timers[id]; ok {
		prev.timer.Stop()
	}
	s.seq++
	seq := s.seq
	p := &pendingRetry{seq: seq}
	s.timers[id] = p
	p.timer = s.clock.AfterFunc(delay, func() { s.expire(id, seq) })
}

func (s *Scheduler) expire(id string, seq uint64) {
	s.mu.Lock()
	p, ok := s.timers[id]
	if !ok || p.seq != seq {
		// Replaced or cancelled after the timer had already fired.
		s.mu.Unlock()
		return
	}
	delete(s.timers, id)
	s.mu.Unlock()

	s.fire(id)
}

// Cancel stops the pending retry timer of the trace, if any.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.timers[id]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.timers, id)
	return true
}

// CancelAll stops every pending retry timer and returns how many were
// stopped.
func (s *Scheduler) CancelAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.timers)
	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
	return n
}

// Pending returns the number of armed retry timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}
