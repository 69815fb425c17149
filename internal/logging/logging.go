package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Setup configures the JSON run log.
// logDir:
//
//	""       -> discard
//	"stderr" -> stderr
//	other    -> file in that directory, created if missing
//
// When the log file cannot be created the run log falls back to stderr. The
// invocation id in the file name matches the one on every record.
func Setup(logDir string, stderr io.Writer) (*slog.Logger, func()) {
	id := uuid.NewString()
	switch logDir {
	case "":
		return newLogger(io.Discard, id), func() {}
	case "stderr":
		return newLogger(stderr, id), func() {}
	}

	f, err := createLogFile(logDir, id)
	if err != nil {
		fmt.Fprintf(stderr, "Warning: %v; logging to stderr\n", err)
		return newLogger(stderr, id), func() {}
	}
	return newLogger(f, id), func() { _ = f.Sync(); _ = f.Close() }
}

// New returns a run logger with a fresh invocation id writing JSON to w.
func New(w io.Writer) *slog.Logger {
	return newLogger(w, uuid.NewString())
}

func newLogger(w io.Writer, id string) *slog.Logger {
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelDebug)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lv})).
		With("invocation_id", id, "pid", os.Getpid())
}

func createLogFile(dir, id string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	fn := filepath.Join(dir, logFileName(time.Now(), os.Getpid(), id))
	f, err := os.OpenFile(fn, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create log file %s: %w", fn, err)
	}
	return f, nil
}

func logFileName(now time.Time, pid int, id string) string {
	return fmt.Sprintf("dumpfilter_%s_%d_%s.log",
		now.UTC().Format("20060102T150405.000Z07:00"), pid, id)
}

// suspendHandler hands every record to its handler inside suspend, so a
// record never lands on a partially drawn progress line.
type suspendHandler struct {
	h       slog.Handler
	suspend func(func())
}

// WithSuspend wraps h so that each record is written inside suspend. The
// progress bar's Suspend fits; suspend must not itself log.
func WithSuspend(h slog.Handler, suspend func(fn func())) slog.Handler {
	return &suspendHandler{h: h, suspend: suspend}
}

func (s *suspendHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.h.Enabled(ctx, level)
}

func (s *suspendHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	s.suspend(func() { err = s.h.Handle(ctx, r) })
	return err
}

func (s *suspendHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &suspendHandler{h: s.h.WithAttrs(attrs), suspend: s.suspend}
}

func (s *suspendHandler) WithGroup(name string) slog.Handler {
	return &suspendHandler{h: s.h.WithGroup(name), suspend: s.suspend}
}

// FormatDuration renders d in milliseconds with microsecond precision, e.g. "12.345ms".
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
}
