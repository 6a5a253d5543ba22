package main_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tracebuf/clock"
	"github.com/m-mizutani/tracebuf/trace"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// seedTraces stores finished snapshots trace-001 .. trace-NNN in dir.
func seedTraces(t *testing.T, dir string, n int) {
	t.Helper()
	repo := trace.NewFileRepository(dir)
	for i := 1; i <= n; i++ {
		tr, err := trace.New("seed",
			trace.WithID(fmt.Sprintf("trace-%03d", i)),
			trace.WithClock(clock.Fake(epoch)),
		)
		gt.NoError(t, err).Required()
		gt.NoError(t, tr.Finish())
		gt.NoError(t, repo.Save(context.Background(), tr.Snapshot())).Required()
	}
}
