package export

import (
	"container/list"

	"github.com/m-mizutani/tracebuf/trace"
)

// Unit is a trace awaiting delivery together with its retry bookkeeping.
type Unit struct {
	Trace   *trace.Trace
	Retries int

	// resend is set when a flush was requested while a delivery of the
	// same trace was in flight.
	resend bool
}

// UnitView is a read-only copy of a queued unit.
type UnitView struct {
	TraceID  string `json:"traceId"`
	Name     string `json:"name"`
	Retries  int    `json:"retries"`
	Retrying bool   `json:"retrying"`
	Finished bool   `json:"finished"`
}

// Queue is the insertion-ordered set of units pending delivery, keyed by
// trace ID. It also tracks which traces are currently owned by the retry
// path and therefore held back from batch flushes.
//
// Queue is not safe for concurrent use. The Exporter serializes access.
type Queue struct {
	order    *list.List
	index    map[string]*list.Element
	retrying map[string]struct{}
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{
		order:    list.New(),
		index:    make(map[string]*list.Element),
		retrying: make(map[string]struct{}),
	}
}

// Enqueue adds a fresh unit with retry count 0 for tr. If a unit for the
// same trace is already queued, it is returned unchanged.
func (q *Queue) Enqueue(tr *trace.Trace) *Unit {
	if u, ok := q.Get(tr.ID()); ok {
		return u
	}
	u := &Unit{Trace: tr}
	q.Insert(u)
	return u
}

// Insert appends u unless a unit with the same trace ID is present. It
// reports whether u was added.
func (q *Queue) Insert(u *Unit) bool {
	id := u.Trace.ID()
	if _, ok := q.index[id]; ok {
		return false
	}
	q.index[id] = q.order.PushBack(u)
	return true
}

// Get returns the unit queued for the trace ID.
func (q *Queue) Get(id string) (*Unit, bool) {
	e, ok := q.index[id]
	if !ok {
		return nil, false
	}
	return e.Value.(*Unit), true
}

// Remove deletes the unit for the trace ID. The retrying mark is left
// untouched.
func (q *Queue) Remove(id string) (*Unit, bool) {
	e, ok := q.index[id]
	if !ok {
		return nil, false
	}
	delete(q.index, id)
	return q.order.Remove(e).(*Unit), true
}

// Len returns the number of queued units.
func (q *Queue) Len() int {
	return q.order.Len()
}

// Snapshot returns copies of the queued units in insertion order.
func (q *Queue) Snapshot() []UnitView {
	views := make([]UnitView, 0, q.order.Len())
	for e := q.order.Front(); e != nil; e = e.Next() {
		u := e.Value.(*Unit)
		views = append(views, UnitView{
			TraceID:  u.Trace.ID(),
			Name:     u.Trace.Name(),
			Retries:  u.Retries,
			Retrying: q.IsRetrying(u.Trace.ID()),
			Finished: u.Trace.Finished(),
		})
	}
	return views
}

// Partition splits the queue, in insertion order, into units eligible for
// a batch flush and units currently owned by the retry path.
func (q *Queue) Partition() (eligible, retrying []*Unit) {
	for e := q.order.Front(); e != nil; e = e.Next() {
		u := e.Value.(*Unit)
		if q.IsRetrying(u.Trace.ID()) {
			retrying = append(retrying, u)
		} else {
			eligible = append(eligible, u)
		}
	}
	return eligible, retrying
}

// MarkRetrying excludes the trace from batch flushes.
func (q *Queue) MarkRetrying(id string) {
	q.retrying[id] = struct{}{}
}

// ClearRetrying makes the trace eligible for batch flushes again.
func (q *Queue) ClearRetrying(id string) {
	delete(q.retrying, id)
}

// IsRetrying reports whether the trace is marked as retrying.
func (q *Queue) IsRetrying(id string) bool {
	_, ok := q.retrying[id]
	return ok
}

// drain removes every unit not listed in busy, together with its retrying
// mark, returning the removed units in insertion order.
func (q *Queue) drain(busy map[string]*Unit) []*Unit {
	units := make([]*Unit, 0, q.order.Len())
	for e := q.order.Front(); e != nil; {
		next := e.Next()
		u := e.Value.(*Unit)
		id := u.Trace.ID()
		if _, ok := busy[id]; !ok {
			units = append(units, u)
			q.order.Remove(e)
			delete(q.index, id)
			delete(q.retrying, id)
		}
		e = next
	}
	return units
}
