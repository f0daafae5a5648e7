package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/nerrad567/relaybox/internal/infrastructure/config"
)

const serviceName = "relaybox"

// Logger is the relaybox structured logger. It embeds *slog.Logger, so the
// usual Debug/Info/Warn/Error methods are available directly.
type Logger struct {
	*slog.Logger
}

// New builds a Logger writing to the configured stream (stdout unless
// output is "stderr").
func New(cfg config.LoggingConfig, version string) *Logger {
	var w io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		w = os.Stderr
	}
	return NewWithWriter(cfg, version, w)
}

// NewWithWriter builds a Logger writing to w.
func NewWithWriter(cfg config.LoggingConfig, version string, w io.Writer) *Logger {
	h := newHandler(strings.ToLower(cfg.Format), w, parseLevel(cfg.Level)).
		WithAttrs([]slog.Attr{
			slog.String("service", serviceName),
			slog.String("version", version),
		})
	return &Logger{Logger: slog.New(h)}
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	switch format {
	case "pretty":
		return tint.NewHandler(w, &tint.Options{Level: level, TimeFormat: time.TimeOnly})
	case "text":
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	default:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	}
}

// parseLevel maps debug, info, warn(ing) and error to slog levels.
// Anything else is info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a child Logger carrying args on every record.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before the config file has been read:
// JSON at info level on stdout.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// Discard returns a Logger that writes nothing.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Sink writes relay lines as info records tagged component=relay.
type Sink struct {
	logger *Logger
}

// NewSink wraps logger as a relay.LogSink.
func NewSink(logger *Logger) *Sink {
	return &Sink{logger: logger.With("component", "relay")}
}

// Emit logs line.
func (s *Sink) Emit(line string) {
	s.logger.Info(line)
}
