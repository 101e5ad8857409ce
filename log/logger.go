// Package log provides structured logging for the sync engine and CLI.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the engine pipelines (structured fields)
//   - SugaredLogger: Printf-style logging for CLI/debug surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger provides structured logging with component and session context.
//
// Use this for engine paths where performance matters.
// For CLI/debug surfaces, use Sugar() to get a SugaredLogger.
type Logger struct {
	zap   *zap.Logger
	level zap.AtomicLevel
}

// SugaredLogger provides printf-style logging for CLI and debug surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a logger tagged with a component name.
// Output defaults to os.Stderr at info level.
func NewLogger(component string) *Logger {
	return newLoggerWithWriter(component, os.Stderr, zapcore.InfoLevel)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.FatalLevel)}
}

// ParseLevel maps a config level name (debug, info, warn, error) to a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: must be debug, info, warn, or error", s)
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

// WithOutput returns a new logger with a different output writer.
// Context fields and level are preserved.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		l.level,
	)
	return &Logger{
		zap:   l.zap.WithOptions(zap.WrapCore(func(zapcore.Core) zapcore.Core { return core })),
		level: l.level,
	}
}

// newLoggerWithWriter creates a logger writing to the specified writer.
func newLoggerWithWriter(component string, w io.Writer, lvl zapcore.Level) *Logger {
	level := zap.NewAtomicLevelAt(lvl)
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		level,
	)

	zapLogger := zap.New(core)
	if component != "" {
		zapLogger = zapLogger.With(zap.String("component", component))
	}
	return &Logger{zap: zapLogger, level: level}
}

// SetLevel changes the minimum level for this logger and every logger
// derived from it.
func (l *Logger) SetLevel(lvl zapcore.Level) {
	l.level.SetLevel(lvl)
}

// Named returns a child logger with a different component field.
func (l *Logger) Named(component string) *Logger {
	return &Logger{zap: l.zap.With(zap.String("component", component)), level: l.level}
}

// WithSession returns a child logger carrying session identity.
func (l *Logger) WithSession(sessionID, peer string) *Logger {
	return &Logger{
		zap:   l.zap.With(zap.String("session_id", sessionID), zap.String("peer", peer)),
		level: l.level,
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
