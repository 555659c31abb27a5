package utils

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger keeps the printf-style call sites used across handlers and stores
// while emitting structured zap output.
type Logger struct {
	z *zap.SugaredLogger
}

func NewLogger() *Logger {
	l, err := NewLoggerWithLevel("info")
	if err != nil {
		return NewNopLogger()
	}
	return l
}

func NewLoggerWithLevel(level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{z: z.Sugar()}, nil
}

func NewNopLogger() *Logger {
	return &Logger{z: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger, e.g. one built by tests with zaptest/observer.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{z: z.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.z.Infof(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.z.Debugf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.z.Warnf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.z.Errorf(format, args...)
}

// With returns a child logger carrying the given key/value pairs on every line.
func (l *Logger) With(keysAndValues ...any) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{z: l.z.With(keysAndValues...)}
}

func (l *Logger) Sync() error {
	if l == nil {
		return nil
	}
	return l.z.Sync()
}
