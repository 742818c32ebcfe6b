// Package logger provides leveled structured logging.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// ParseLevel maps a config string to a Level, defaulting to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger provides leveled logging.
type Logger struct {
	level   Level
	handler slog.Handler
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format
// ("json" or "text") writing to stderr.
func Init(level string, format string) {
	InitWriter(os.Stderr, level, format)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level string, format string) {
	l := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: l.slogLevel(), AddSource: true}

	var h slog.Handler
	if strings.ToLower(format) == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	defaultLogger = &Logger{level: l, handler: h}
}

func output(l Level, format string, args ...interface{}) {
	if defaultLogger == nil || defaultLogger.level > l {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip Callers, output, and the exported wrapper
	r := slog.NewRecord(time.Now(), l.slogLevel(), fmt.Sprintf(format, args...), pcs[0])
	_ = defaultLogger.handler.Handle(context.Background(), r)
}

func Debug(format string, args ...interface{}) {
	output(DebugLevel, format, args...)
}

func Info(format string, args ...interface{}) {
	output(InfoLevel, format, args...)
}

func Warn(format string, args ...interface{}) {
	output(WarnLevel, format, args...)
}

func Error(format string, args ...interface{}) {
	output(ErrorLevel, format, args...)
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		var pcs [1]uintptr
		runtime.Callers(2, pcs[:])
		r := slog.NewRecord(time.Now(), slog.LevelError+4, fmt.Sprintf(format, args...), pcs[0])
		_ = defaultLogger.handler.Handle(context.Background(), r)
	} else {
		fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
	}
	os.Exit(1)
}
