package logger

import (
	"io"
	"log/slog"
	"strings"
)

type Backend string

const (
	BackendStd Backend = "std" // slog text handler
	BackendZap Backend = "zap" // JSON через slog-zap
)

type Config struct {
	// Метаданные, попадают в каждую запись
	Service    string
	Version    string
	InstanceID string

	Level   slog.Level
	Env     Env
	Backend Backend // по умолчанию: std для dev, zap для stage/prod
	Debug   bool

	// Zap sampling (на секунду)
	SampleInitial    int
	SampleThereafter int

	AddSource bool

	// Куда писать; nil означает os.Stdout
	Output io.Writer
}

// ParseLevel понимает debug|info|warn|error, всё остальное считается info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func (c Config) level() slog.Level {
	if c.Debug && c.Level == 0 {
		return slog.LevelDebug
	}
	return c.Level
}
