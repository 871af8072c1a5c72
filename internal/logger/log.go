package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lifelog/apiserver/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init installs a JSON slog handler as the process default. Output goes to
// stdout, a rotating file, or both.
func Init(cfg config.LogConfig) {
	slog.SetDefault(slog.New(NewHandler(cfg, nil)))
	Info("logger initialized", "level", cfg.Level, "file", cfg.File)
}

// NewHandler builds the handler Init installs. A non-nil console replaces
// stdout.
func NewHandler(cfg config.LogConfig, console io.Writer) slog.Handler {
	if console == nil {
		console = os.Stdout
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, console)
	}
	if cfg.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			LocalTime:  true,
		})
	}
	if len(writers) == 0 {
		writers = append(writers, console)
	}

	return slog.NewJSONHandler(io.MultiWriter(writers...), &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
}

func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }
func Debug(msg string, args ...any) { slog.Debug(msg, args...) }

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
