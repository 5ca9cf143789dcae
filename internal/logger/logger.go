// Package logger provides structured logging for ntpzones.
//
// Every entry that passes the level filter goes to an slog handler and is
// also kept in a process-wide ring buffer, which the web console serves.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	bufferSize = 1000

	defaultFileMaxSizeMB  = 10
	defaultFileMaxBackups = 3
	defaultFileMaxAgeDays = 28
)

var globalBuffer = NewBuffer(bufferSize)

// Logger is an slog logger that also records into the shared buffer
type Logger struct {
	slog   *slog.Logger
	level  slog.Level
	attrs  []any // bound by With, repeated into buffered entries
	buffer *Buffer
	closer io.Closer
}

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer

	// File, when set, receives a copy of the output with size-based rotation
	File           string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

// DefaultConfig logs text at info level to stdout
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: os.Stdout,
	}
}

// ConfigFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_FILE and LOG_FILE_MAX_SIZE_MB
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Format = strings.ToLower(v)
	}
	cfg.File = os.Getenv("LOG_FILE")
	if size, err := strconv.Atoi(os.Getenv("LOG_FILE_MAX_SIZE_MB")); err == nil && size > 0 {
		cfg.FileMaxSizeMB = size
	}

	return cfg
}

// ParseLevel maps a level name onto slog; unknown names mean info
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// New builds a logger. A configured File is written alongside Output.
func New(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	var closer io.Closer
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    positiveOr(cfg.FileMaxSizeMB, defaultFileMaxSizeMB),
			MaxBackups: positiveOr(cfg.FileMaxBackups, defaultFileMaxBackups),
			MaxAge:     positiveOr(cfg.FileMaxAgeDays, defaultFileMaxAgeDays),
			Compress:   true,
		}
		out = io.MultiWriter(out, rotating)
		closer = rotating
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(a.Key, a.Value.Time().Format("15:04:05.000"))
			}
			return a
		},
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return &Logger{
		slog:   slog.New(handler),
		level:  level,
		buffer: globalBuffer,
		closer: closer,
	}
}

func positiveOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.log(slog.LevelInfo, msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(slog.LevelWarn, msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args) }

func (l *Logger) log(level slog.Level, msg string, args []any) {
	if level < l.level {
		return
	}
	l.slog.Log(context.Background(), level, msg, args...)

	if l.buffer == nil {
		return
	}
	attrs := make(map[string]any, (len(l.attrs)+len(args))/2)
	collectAttrs(attrs, l.attrs)
	collectAttrs(attrs, args)
	l.buffer.Add(LogEntry{
		Timestamp: time.Now(),
		Level:     level.String(),
		Message:   msg,
		Attrs:     attrs,
	})
}

// collectAttrs copies key/value pairs; values without a string key are dropped
func collectAttrs(dst map[string]any, kv []any) {
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			dst[key] = kv[i+1]
		}
	}
}

// With returns a child logger that adds kv to every entry, buffered ones
// included. The rotating file stays owned by the root logger; closing a
// child is a no-op.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{
		slog:   l.slog.With(kv...),
		level:  l.level,
		attrs:  append(append([]any(nil), l.attrs...), kv...),
		buffer: l.buffer,
	}
}

// Close releases the rotating log file, if any
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

var defaultLogger = New(DefaultConfig())

// SetDefault replaces the package default and the slog default
func SetDefault(l *Logger) {
	defaultLogger = l
	slog.SetDefault(l.slog)
}

// Default returns the package default logger
func Default() *Logger {
	return defaultLogger
}

// Info logs through the default logger
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// GetRecentLogs returns up to n of the newest buffered entries
func GetRecentLogs(n int) []LogEntry {
	return globalBuffer.GetLast(n)
}
