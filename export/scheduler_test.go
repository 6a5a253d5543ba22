package export_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tracebuf/clock"
	"github.com/m-mizutani/tracebuf/export"
)

type fireLog struct {
	mu  sync.Mutex
	ids []string
}

func (f *fireLog) fire(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *fireLog) IDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func TestSchedulerFailArmsTimer(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(epoch)
	q := export.NewQueue()
	rec := &signalRecorder{}
	fired := &fireLog{}
	s := export.NewScheduler(q, export.DefaultPolicy(), clk, rec, fired.fire)

	u := &export.Unit{Trace: newTrace(t, clk, "t1")}
	gt.B(t, s.Fail(ctx, u, errUnavailable)).False()

	gt.Equal(t, u.Retries, 1)
	gt.Equal(t, s.Pending(), 1)
	gt.True(t, q.IsRetrying("t1"))
	_, ok := q.Get("t1")
	gt.True(t, ok)
	gt.Equal(t, rec.Signals(), []string{"retry:t1:1:1s"})

	clk.Advance(999 * time.Millisecond)
	gt.A(t, fired.IDs()).Length(0)

	clk.Advance(time.Millisecond)
	gt.Equal(t, fired.IDs(), []string{"t1"})
	gt.Equal(t, s.Pending(), 0)
}

func TestSchedulerReplacesTimer(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(epoch)
	q := export.NewQueue()
	fired := &fireLog{}
	s := export.NewScheduler(q, export.DefaultPolicy(), clk, nil, fired.fire)

	u := &export.Unit{Trace: newTrace(t, clk, "t1")}
	s.Fail(ctx, u, errUnavailable)
	clk.Advance(500 * time.Millisecond)
	s.Fail(ctx, u, errUnavailable)

	// Only one timer per trace, and only one unit in the queue.
	gt.Equal(t, s.Pending(), 1)
	gt.Equal(t, q.Len(), 1)

	clk.Advance(time.Second)
	gt.A(t, fired.IDs()).Length(0)

	clk.Advance(time.Second)
	gt.Equal(t, fired.IDs(), []string{"t1"})

	clk.Advance(time.Minute)
	gt.A(t, fired.IDs()).Length(1)
}

func TestSchedulerDropsAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(epoch)
	q := export.NewQueue()
	rec := &signalRecorder{}
	policy := export.DefaultPolicy()
	policy.MaxRetries = 2
	s := export.NewScheduler(q, policy, clk, rec, func(string) {})

	tr := newTrace(t, clk, "t1")
	u := q.Enqueue(tr)

	gt.B(t, s.Fail(ctx, u, errUnavailable)).False()
	gt.B(t, s.Fail(ctx, u, errUnavailable)).False()
	gt.B(t, s.Fail(ctx, u, errUnavailable)).True()

	gt.Equal(t, q.Len(), 0)
	gt.B(t, q.IsRetrying("t1")).False()
	gt.Equal(t, s.Pending(), 0)
	gt.Equal(t, rec.Signals(), []string{
		"retry:t1:1:1s",
		"retry:t1:2:2s",
		"dropped:t1:2",
	})
}

func TestSchedulerZeroRetries(t *testing.T) {
	clk := clock.Fake(epoch)
	q := export.NewQueue()
	rec := &signalRecorder{}
	s := export.NewScheduler(q, export.Policy{MaxRetries: 0}, clk, rec, func(string) {})

	u := q.Enqueue(newTrace(t, clk, "t1"))
	gt.True(t, s.Fail(context.Background(), u, errUnavailable))
	gt.Equal(t, rec.Signals(), []string{"dropped:t1:0"})
}

func TestSchedulerCancel(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(epoch)
	q := export.NewQueue()
	fired := &fireLog{}
	s := export.NewScheduler(q, export.DefaultPolicy(), clk, nil, fired.fire)

	s.Fail(ctx, &export.Unit{Trace: newTrace(t, clk, "t1")}, errUnavailable)
	s.Fail(ctx, &export.Unit{Trace: newTrace(t, clk, "t2")}, errUnavailable)
	s.Fail(ctx, &export.Unit{Trace: newTrace(t, clk, "t3")}, errUnavailable)
	gt.Equal(t, s.Pending(), 3)

	gt.True(t, s.Cancel("t1"))
	gt.B(t, s.Cancel("t1")).False()
	gt.Equal(t, s.Pending(), 2)

	gt.Equal(t, s.CancelAll(), 2)
	gt.Equal(t, s.Pending(), 0)

	clk.Advance(time.Minute)
	gt.A(t, fired.IDs()).Length(0)
}
