// Package log provides the structured, leveled logger used throughout
// chaincore. It is a thin wrapper around the standard library's
// log/slog, mirroring the shape of the teacher's own log package
// (github.com/ethereum/go-ethereum/log), which itself moved off
// log15 onto slog: NewLogger/NewTerminalHandler/SetDefault/Root, with
// Trace/Debug/Info/Warn/Error/Crit convenience methods carrying
// key-value context pairs.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

// Level mirrors slog.Level but adds the two extremes the teacher's
// package exposes that slog does not: Trace (below Debug) and Crit
// (above Error, process-fatal intent).
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = Level(slog.LevelDebug)
	LevelInfo  Level = Level(slog.LevelInfo)
	LevelWarn  Level = Level(slog.LevelWarn)
	LevelError Level = Level(slog.LevelError)
	LevelCrit  Level = 12
)

// Logger is the interface every actor in this repository logs through.
type Logger interface {
	Trace(msg string, ctx ...any)
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type logger struct {
	inner *slog.Logger
}

func NewLogger(h slog.Handler) Logger {
	return &logger{inner: slog.New(h)}
}

func (l *logger) log(ctx context.Context, level Level, msg string, kv []any) {
	l.inner.Log(ctx, slog.Level(level), msg, kv...)
}

func (l *logger) Trace(msg string, ctx ...any) { l.log(context.Background(), LevelTrace, msg, ctx) }
func (l *logger) Debug(msg string, ctx ...any) { l.log(context.Background(), LevelDebug, msg, ctx) }
func (l *logger) Info(msg string, ctx ...any)  { l.log(context.Background(), LevelInfo, msg, ctx) }
func (l *logger) Warn(msg string, ctx ...any)  { l.log(context.Background(), LevelWarn, msg, ctx) }
func (l *logger) Error(msg string, ctx ...any) { l.log(context.Background(), LevelError, msg, ctx) }
func (l *logger) Crit(msg string, ctx ...any)  { l.log(context.Background(), LevelCrit, msg, ctx) }

func (l *logger) With(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

// NewTerminalHandler returns a slog.Handler writing human-readable,
// timestamped lines, the default for interactive/host-process use.
func NewTerminalHandler(w io.Writer) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     slog.Level(LevelTrace),
		AddSource: false,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Value = slog.StringValue(a.Value.Time().Format("01-02|15:04:05.000"))
			}
			return a
		},
	})
}

// NewJSONHandler returns a slog.Handler suitable for production log
// aggregation.
func NewJSONHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.Level(LevelInfo)})
}

var def atomic.Pointer[Logger]

func init() {
	root := NewLogger(NewTerminalHandler(os.Stderr))
	def.Store(&root)
}

// SetDefault installs l as the package-level default logger.
func SetDefault(l Logger) { def.Store(&l) }

// Root returns the current package-level default logger.
func Root() Logger { return *def.Load() }

func New(ctx ...any) Logger { return Root().With(ctx...) }

func Trace(msg string, ctx ...any) { Root().Trace(msg, ctx...) }
func Debug(msg string, ctx ...any) { Root().Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { Root().Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { Root().Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { Root().Error(msg, ctx...) }
func Crit(msg string, ctx ...any)  { Root().Crit(msg, ctx...) }
