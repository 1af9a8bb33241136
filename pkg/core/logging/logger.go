// ============================================================================
// Villain - Content Framework
// ============================================================================
//
// Package:     logging
// Description: Key/value structured logging backed by zap
// License:     MIT
// ============================================================================

package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level represents log severity
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name. Unknown names map to LevelInfo.
func ParseLevel(level string) Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "trace":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error", "fatal":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	// Service name, recorded as the logger name
	ServiceName string

	// Log level (debug, info, warn, error)
	Level string

	// Output format: "json" or "text" (default: json)
	Format string

	// Output defaults to stderr
	Output io.Writer
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig(serviceName string) LoggerConfig {
	return LoggerConfig{
		ServiceName: serviceName,
		Level:       "info",
		Format:      "json",
	}
}

// Logger is a key/value logger: logger.Info("msg", "key", value, ...)
type Logger struct {
	sugar *zap.SugaredLogger
	name  string
	level zap.AtomicLevel
}

// NewLogger creates a logger from cfg
func NewLogger(cfg LoggerConfig) *Logger {
	level := zap.NewAtomicLevelAt(ParseLevel(cfg.Level).zapLevel())

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	base := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if cfg.ServiceName != "" {
		base = base.Named(cfg.ServiceName)
	}

	return &Logger{
		sugar: base.Sugar(),
		name:  cfg.ServiceName,
		level: level,
	}
}

var (
	defaultMu  sync.RWMutex
	defaultCfg = DefaultLoggerConfig("")
)

// SetDefaults sets the configuration used by New. The CLI calls it once
// after loading the application config.
func SetDefaults(level, format string, output io.Writer) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultCfg.Level = level
	defaultCfg.Format = format
	defaultCfg.Output = output
}

// New creates a named logger with the process defaults
func New(name string) *Logger {
	defaultMu.RLock()
	cfg := defaultCfg
	defaultMu.RUnlock()
	cfg.ServiceName = name
	return NewLogger(cfg)
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), level: zap.NewAtomicLevel()}
}

// Name returns the logger name
func (l *Logger) Name() string {
	return l.name
}

// With returns a child logger that adds the key/value pairs to every entry
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), name: l.name, level: l.level}
}

// Named returns a child logger with name appended
func (l *Logger) Named(name string) *Logger {
	full := name
	if l.name != "" {
		full = l.name + "." + name
	}
	return &Logger{sugar: l.sugar.Named(name), name: full, level: l.level}
}

// SetLevel changes the level of l and every logger derived from it
func (l *Logger) SetLevel(level Level) {
	l.level.SetLevel(level.zapLevel())
}

// Enabled reports whether entries at level are written
func (l *Logger) Enabled(level Level) bool {
	return l.level.Enabled(level.zapLevel())
}

// Debug logs a debug message with key/value pairs
func (l *Logger) Debug(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs an info message with key/value pairs
func (l *Logger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a warning message with key/value pairs
func (l *Logger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs an error message with key/value pairs
func (l *Logger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Sync flushes buffered entries
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

// Zap exposes the underlying logger for libraries that take a *zap.Logger
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}
