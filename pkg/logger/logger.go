// Package logger provides component-scoped structured logging.
//
// Call sites pass a component name, a dotted event name and a field map:
//
//	logger.InfoCF("dispatch", "dispatch.complete", map[string]interface{}{"tools": 2})
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
)

// Level mirrors slog levels under the names used in configuration.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var (
	mu      sync.RWMutex
	level   = new(slog.LevelVar)
	out     io.Writer = os.Stderr
	format  = "text"
	current = newLogger(out, format)
)

func newLogger(w io.Writer, f string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if f == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level. Unknown
// values map to INFO.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// SetLevel sets the minimum level that is written.
func SetLevel(l Level) {
	switch l {
	case DEBUG:
		level.Set(slog.LevelDebug)
	case WARN:
		level.Set(slog.LevelWarn)
	case ERROR:
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
}

// SetFormat switches between "json" and "text" output.
func SetFormat(f string) {
	mu.Lock()
	defer mu.Unlock()
	format = f
	current = newLogger(out, format)
}

// SetOutput redirects log output. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	current = newLogger(out, format)
}

func log(l slog.Level, component, msg string, fields map[string]interface{}) {
	mu.RLock()
	lg := current
	mu.RUnlock()

	attrs := make([]any, 0, 2+len(fields)*2)
	if component != "" {
		attrs = append(attrs, "component", component)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, k, fields[k])
	}
	lg.Log(context.Background(), l, msg, attrs...)
}

func Debug(msg string) { log(slog.LevelDebug, "", msg, nil) }
func Info(msg string)  { log(slog.LevelInfo, "", msg, nil) }
func Warn(msg string)  { log(slog.LevelWarn, "", msg, nil) }
func Error(msg string) { log(slog.LevelError, "", msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelDebug, component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelInfo, component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelWarn, component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	log(slog.LevelError, component, msg, fields)
}
