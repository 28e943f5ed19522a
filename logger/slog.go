package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// slogLogger adapts a *slog.Logger to Logger. Level, format and output
// are owned by the slog handler; the setters only adjust the minimum
// level checked before records are built.
type slogLogger struct {
	inner *slog.Logger
	level *slog.LevelVar
}

// NewSlogLogger wraps an existing structured logger. A nil logger
// discards everything.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.New(slog.DiscardHandler)
	}
	lv := new(slog.LevelVar)
	lv.Set(slog.LevelDebug)
	return &slogLogger{inner: l, level: lv}
}

func toSlogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	}
	return slog.LevelError + 4
}

func (l *slogLogger) SetLevel(level LogLevel)            { l.level.Set(toSlogLevel(level)) }
func (l *slogLogger) SetFormat(LogFormat)                {}
func (l *slogLogger) SetOutput(io.Writer)                {}
func (l *slogLogger) SetLevelOutput(LogLevel, io.Writer) {}

func (l *slogLogger) WithFields(fields map[string]any) Logger {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &slogLogger{inner: l.inner.With(args...), level: l.level}
}

func (l *slogLogger) log(level slog.Level, format string, args ...any) {
	if level < l.level.Level() {
		return
	}
	ctx := context.Background()
	if !l.inner.Enabled(ctx, level) {
		return
	}
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	l.inner.Log(ctx, level, msg)
}

func (l *slogLogger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *slogLogger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *slogLogger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *slogLogger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }

func (l *slogLogger) SQL(sql string, duration time.Duration, args ...any) {
	if slog.LevelDebug < l.level.Level() {
		return
	}
	l.inner.Debug("sql",
		"sql", sql,
		"duration", duration,
		"args", args,
	)
}
