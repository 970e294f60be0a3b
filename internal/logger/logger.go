// Package logger provides structured logging setup for repo-explainer.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
)

// Async handler sizing.
const (
	asyncBuffer  = 1024
	asyncWorkers = 2
)

// New creates a *slog.Logger writing JSON to stdout.
// See NewWithWriter.
func New(cfg config.Logging) (*slog.Logger, Closer) {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a *slog.Logger from the given Logging config.
// Output is JSON to w with a "service" attribute on every record, plus
// request_id and run_id when the context carries them. The returned Closer
// flushes the async handler; it is a no-op in synchronous mode.
func NewWithWriter(cfg config.Logging, w io.Writer) (*slog.Logger, Closer) {
	var handler slog.Handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	})

	var closer Closer = nopCloser{}
	if cfg.Async {
		ah := NewAsyncHandler(handler, asyncBuffer, asyncWorkers)
		handler, closer = ah, ah
	}

	return slog.New(&contextHandler{inner: handler}).With("service", cfg.Service), closer
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
