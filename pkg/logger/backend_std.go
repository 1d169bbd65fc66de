package logger

import (
	"io"
	"log/slog"
)

// Text в dev, JSON во всех остальных окружениях.
func newStdHandler(cfg Config, out io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     cfg.level(),
		AddSource: cfg.AddSource,
	}
	if cfg.Env == EnvDev {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}
