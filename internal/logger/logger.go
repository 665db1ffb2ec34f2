package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

var (
	mu    sync.RWMutex
	base  = zap.NewNop()
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Setup builds the process-wide zap logger. format is "json" or "console".
func Setup(lvl LogLevel, format string) error {
	level.SetLevel(toZapLevel(lvl))

	cfg := zap.NewProductionConfig()
	if strings.EqualFold(format, "console") {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = level

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	base = l
	mu.Unlock()
	return nil
}

// Use replaces the process-wide logger. Tests pass zap.NewNop().
func Use(l *zap.Logger) {
	mu.Lock()
	base = l
	mu.Unlock()
}

// Zap returns the process-wide zap logger.
func Zap() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Sync() {
	_ = Zap().Sync()
}

func SetGlobalLevel(lvl LogLevel) {
	level.SetLevel(toZapLevel(lvl))
}

func toZapLevel(lvl LogLevel) zapcore.Level {
	switch LogLevel(strings.ToLower(string(lvl))) {
	case LogLevelDebug:
		return zapcore.DebugLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type Log struct {
	z *zap.Logger
}

func New() *Log {
	return &Log{z: Zap()}
}

func (l *Log) WithError(err error) *Log {
	return &Log{z: l.z.With(zap.Error(err))}
}

func (l *Log) With(fields ...zap.Field) *Log {
	return &Log{z: l.z.With(fields...)}
}

func (l *Log) Named(name string) *Log {
	return &Log{z: l.z.Named(name)}
}

func (l *Log) Debug(msg string, fields ...zap.Field) {
	l.z.Debug(msg, fields...)
}

func (l *Log) Info(msg string, fields ...zap.Field) {
	l.z.Info(msg, fields...)
}

func (l *Log) Warn(msg string, fields ...zap.Field) {
	l.z.Warn(msg, fields...)
}

func (l *Log) Error(msg string, fields ...zap.Field) {
	l.z.Error(msg, fields...)
}
