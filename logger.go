package enumstore

import (
	"io"
	"log/slog"
	"os"
)

// Logger emits the store's operational events, compactions and reclaim
// sweeps, as structured slog records with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger builds a Logger on top of the given handler. A nil handler falls
// back to text output on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger returns a Logger that drops every record. Stores use it when no
// logger is configured.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// LogCompaction logs a compaction pass.
func (l *Logger) LogCompaction(moved, dropped int, reclaimedBytes uint64) {
	l.Info("compaction completed",
		"moved", moved,
		"dropped", dropped,
		"reclaimed_bytes", reclaimedBytes,
	)
}

// LogReclaim logs an unused-entry sweep.
func (l *Logger) LogReclaim(freed int) {
	l.Debug("unused entries reclaimed",
		"freed", freed,
	)
}
