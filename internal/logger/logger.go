package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns a JSON logger on stdout. The dev environment logs at debug level.
func New(env string) *slog.Logger {
	return NewWriter(os.Stdout, env)
}

func NewWriter(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h)
}
