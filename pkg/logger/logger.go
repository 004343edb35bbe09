// Package logger provides a process-wide structured logger.
//
// A single *slog.Logger lives behind an atomic pointer so it can be
// replaced (for tests, or to reconfigure verbosity) without synchronizing
// every caller. By default output is human-readable text; setting
// UNSTRUCTURED_LOGS=false switches to JSON lines, which most log
// aggregators prefer.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
)

var singleton atomic.Pointer[slog.Logger]

// EnvReader abstracts environment lookups so tests can stub UNSTRUCTURED_LOGS
// without mutating process-global state.
type EnvReader interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func init() {
	singleton.Store(newLogger(os.Stderr, slog.LevelInfo, unstructuredLogsWithEnv(osEnv{})))
}

// Initialize (re)configures the singleton logger from the real process
// environment. Safe to call multiple times; typically invoked once from
// main() before any other package logs.
func Initialize() {
	InitializeWithEnv(osEnv{})
}

// InitializeWithEnv is Initialize with an injectable environment reader.
func InitializeWithEnv(env EnvReader) {
	singleton.Store(newLogger(os.Stderr, slog.LevelInfo, unstructuredLogsWithEnv(env)))
}

func unstructuredLogsWithEnv(env EnvReader) bool {
	v := env.Getenv("UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	b, err := parseBool(v)
	if err != nil {
		return true
	}
	return b
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true", "1", "TRUE", "True":
		return true, nil
	case "false", "0", "FALSE", "False":
		return false, nil
	default:
		return false, fmt.Errorf("not a bool: %q", s)
	}
}

func newLogger(w io.Writer, level slog.Level, unstructured bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if unstructured {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// Get returns the current singleton logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// setSingletonForTest is used only by logger_test.go.
func setSingletonForTest(l *slog.Logger) (restore func()) {
	prev := singleton.Load()
	singleton.Store(l)
	return func() { singleton.Store(prev) }
}

func log(ctx context.Context, level slog.Level, msg string) {
	l := Get()
	if !l.Enabled(ctx, level) {
		if level < slog.LevelInfo {
			return
		}
	}
	l.Log(ctx, level, msg)
}

func logw(ctx context.Context, level slog.Level, msg string, kv ...any) {
	Get().Log(ctx, level, msg, kv...)
}

// Debug logs msg at debug level.
func Debug(msg string) { log(context.Background(), slog.LevelDebug, msg) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { Debug(fmt.Sprintf(format, args...)) }

// Debugw logs msg at debug level with structured key/value pairs.
func Debugw(msg string, kv ...any) { logw(context.Background(), slog.LevelDebug, msg, kv...) }

// Info logs msg at info level.
func Info(msg string) { log(context.Background(), slog.LevelInfo, msg) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { Info(fmt.Sprintf(format, args...)) }

// Infow logs msg at info level with structured key/value pairs.
func Infow(msg string, kv ...any) { logw(context.Background(), slog.LevelInfo, msg, kv...) }

// Warn logs msg at warn level.
func Warn(msg string) { log(context.Background(), slog.LevelWarn, msg) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { Warn(fmt.Sprintf(format, args...)) }

// Warnw logs msg at warn level with structured key/value pairs.
func Warnw(msg string, kv ...any) { logw(context.Background(), slog.LevelWarn, msg, kv...) }

// Error logs msg at error level.
func Error(msg string) { log(context.Background(), slog.LevelError, msg) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { Error(fmt.Sprintf(format, args...)) }

// Errorw logs msg at error level with structured key/value pairs.
func Errorw(msg string, kv ...any) { logw(context.Background(), slog.LevelError, msg, kv...) }

const levelDPanic = slog.Level(12) // above Error; "should never happen in production" severity

// DPanic logs msg at an elevated level; it does not panic (that's reserved
// for development builds in the corpus this is modeled on). Kept as a
// distinct level so operators can alert on it independently of Error.
func DPanic(msg string) { log(context.Background(), levelDPanic, msg) }

// DPanicf is DPanic with formatting.
func DPanicf(format string, args ...any) { DPanic(fmt.Sprintf(format, args...)) }

// DPanicw is DPanic with structured key/value pairs.
func DPanicw(msg string, kv ...any) { logw(context.Background(), levelDPanic, msg, kv...) }

// Panic logs msg at error level and then panics with msg.
func Panic(msg string) {
	Error(msg)
	panic(msg)
}

// Panicf is Panic with formatting.
func Panicf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	Error(msg)
	panic(msg)
}

// Panicw logs msg with structured key/value pairs at error level, then panics.
func Panicw(msg string, kv ...any) {
	Errorw(msg, kv...)
	panic(msg)
}
