package export_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tracebuf/clock"
	"github.com/m-mizutani/tracebuf/export"
	"github.com/m-mizutani/tracebuf/trace"
	"github.com/m-mizutani/tracebuf/transport"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

var errUnavailable = errors.New("collector unavailable")

type sentPayload struct {
	Path       string
	Credential string
	TraceIDs   []string
}

// fakeTransport records every Send. fail decides the outcome of call n
// (0-based); nil means success.
type fakeTransport struct {
	mu    sync.Mutex
	sent  []sentPayload
	fail  func(path string, n int) error
	gate  chan struct{}
	start chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func alwaysFail(string, int) error { return errUnavailable }

func failFirst(n int) func(string, int) error {
	return func(_ string, i int) error {
		if i < n {
			return errUnavailable
		}
		return nil
	}
}

func failPath(path string) func(string, int) error {
	return func(p string, _ int) error {
		if p == path {
			return errUnavailable
		}
		return nil
	}
}

func (f *fakeTransport) Send(ctx context.Context, path string, payload []byte, credential string) error {
	if f.start != nil {
		select {
		case f.start <- struct{}{}:
		default:
		}
	}
	if f.gate != nil {
		<-f.gate
	}

	ids, err := decodeTraceIDs(path, payload)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sent)
	f.sent = append(f.sent, sentPayload{Path: path, Credential: credential, TraceIDs: ids})
	if f.fail != nil {
		return f.fail(path, n)
	}
	return nil
}

func (f *fakeTransport) Sent() []sentPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentPayload(nil), f.sent...)
}

func decodeTraceIDs(path string, payload []byte) ([]string, error) {
	if path == transport.BatchPath {
		var batch trace.Batch
		if err := json.Unmarshal(payload, &batch); err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(batch.Traces))
		for _, s := range batch.Traces {
			ids = append(ids, s.ID)
		}
		return ids, nil
	}

	var snap trace.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	return []string{snap.ID}, nil
}

// signalRecorder is an Observer keeping a compact log of every signal.
type signalRecorder struct {
	mu      sync.Mutex
	signals []string
	delays  []time.Duration
}

func (r *signalRecorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, s)
}

func (r *signalRecorder) Delivered(_ context.Context, mode export.Mode, ids []string) {
	r.add(fmt.Sprintf("delivered:%s:%s", mode, strings.Join(ids, ",")))
}

func (r *signalRecorder) Failed(_ context.Context, mode export.Mode, ids []string, attempt int, _ error) {
	r.add(fmt.Sprintf("failed:%s:%s:%d", mode, strings.Join(ids, ","), attempt))
}

func (r *signalRecorder) RetryScheduled(_ context.Context, id string, retry int, delay time.Duration) {
	r.mu.Lock()
	r.delays = append(r.delays, delay)
	r.mu.Unlock()
	r.add(fmt.Sprintf("retry:%s:%d:%s", id, retry, delay))
}

func (r *signalRecorder) Dropped(_ context.Context, id string, retries int, _ error) {
	r.add(fmt.Sprintf("dropped:%s:%d", id, retries))
}

func (r *signalRecorder) Signals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.signals...)
}

func (r *signalRecorder) Delays() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func (r *signalRecorder) Count(prefix string) int {
	n := 0
	for _, s := range r.Signals() {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

type memRepository struct {
	mu    sync.Mutex
	saved []*trace.Snapshot
}

func (m *memRepository) Save(_ context.Context, snap *trace.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, snap)
	return nil
}

func (m *memRepository) Saved() []*trace.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*trace.Snapshot(nil), m.saved...)
}

func newTrace(t *testing.T, clk clock.Clock, id string) *trace.Trace {
	t.Helper()
	tr, err := trace.New("trace-"+id, trace.WithID(id), trace.WithClock(clk))
	gt.NoError(t, err).Required()
	return tr
}

func pendingIDs(views []export.UnitView) []string {
	ids := make([]string, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.TraceID)
	}
	return ids
}
