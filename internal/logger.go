package internal

import (
	"log/slog"
	"os"
)

var testLogger *slog.Logger

func init() {
	testLogger = slog.New(slog.DiscardHandler)
	if os.Getenv("TRACEBUF_TEST_LOG") == "1" {
		testLogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
}

// TestLogger returns the logger used by tests. Set TRACEBUF_TEST_LOG=1 to
// print debug output.
func TestLogger() *slog.Logger {
	return testLogger
}
