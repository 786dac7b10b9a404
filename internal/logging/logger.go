// Package logging wraps zap behind a small field API so packages never import zap
// directly. Output goes to a rotated JSON file with a console mirror on stderr.
package logging

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/natefinch/lumberjack.v2"

	"portalsim/engine/internal/config"
)

// Level orders verbosity.
type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

var global atomic.Pointer[Logger]

func init() {
	global.Store(&Logger{z: zap.NewNop()})
}

func parseLevel(raw string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	switch name {
	case "":
		return InfoLevel, nil
	case "warning":
		name = "warn"
	}
	var level Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return InfoLevel, fmt.Errorf("unknown log level %q", raw)
	}
	return level, nil
}

// Field is one structured attribute.
type Field = zap.Field

// String and the constructors below wrap zap's so callers need not import it.
func String(key, value string) Field                 { return zap.String(key, value) }
func Int(key string, value int) Field                { return zap.Int(key, value) }
func Int64(key string, value int64) Field            { return zap.Int64(key, value) }
func Float(key string, value float64) Field          { return zap.Float64(key, value) }
func Bool(key string, value bool) Field              { return zap.Bool(key, value) }
func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }
func Error(err error) Field                          { return zap.Error(err) }

// Logger is a thin handle over a zap logger. A nil *Logger logs through the global one.
type Logger struct {
	z *zap.Logger
}

// New builds the process logger from cfg and installs it as the global fallback.
func New(cfg config.LoggingConfig) (*Logger, error) {
	//1.- Reject settings lumberjack would silently reinterpret.
	switch {
	case strings.TrimSpace(cfg.Path) == "":
		return nil, errors.New("logging path must be specified")
	case cfg.MaxSizeMB <= 0:
		return nil, errors.New("logging max size must be positive")
	case cfg.MaxBackups < 0 || cfg.MaxAgeDays < 0:
		return nil, errors.New("logging retention must be non-negative")
	}
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	//2.- File and console cores share one encoder layout.
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.MessageKey = "message"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	file := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	console := enc
	console.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(enc), file, level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(console), zapcore.Lock(os.Stderr), level),
	)

	logger := &Logger{z: zap.New(core, zap.Fields(zap.String("service", "portalsim")))}
	global.Store(logger)
	return logger, nil
}

// NewTestLogger discards everything.
func NewTestLogger() *Logger { return &Logger{z: zap.NewNop()} }

// NewObservedLogger records entries at or above level for assertions.
func NewObservedLogger(level Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{z: zap.New(core)}, logs
}

// L returns the global logger.
func L() *Logger { return global.Load() }

// SetGlobal replaces the global logger and returns the previous one.
func SetGlobal(logger *Logger) *Logger {
	if logger == nil {
		return global.Load()
	}
	return global.Swap(logger)
}

func (l *Logger) core() *zap.Logger {
	if l == nil || l.z == nil {
		return global.Load().z
	}
	return l.z
}

// With returns a child logger carrying fields on every entry.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{z: l.core().With(fields...)}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	if l == nil || l.z == nil {
		return nil
	}
	return l.z.Sync()
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string, fields ...Field) { l.core().Debug(msg, fields...) }

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...Field) { l.core().Info(msg, fields...) }

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...Field) { l.core().Warn(msg, fields...) }

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...Field) { l.core().Error(msg, fields...) }
