package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	sugar = build(false)
)

func build(development bool) *zap.SugaredLogger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = level
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}

// SetGlobalLogLevel switches the level of the process logger. "debug"
// also switches to the human readable console encoder.
func SetGlobalLogLevel(name string) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)

	mu.Lock()
	defer mu.Unlock()
	_ = sugar.Sync()
	sugar = build(lvl == zapcore.DebugLevel)
}

// L returns the underlying sugared logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugar
}

// Replace swaps the process logger, mainly for tests.
func Replace(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	sugar = l.WithOptions(zap.AddCallerSkip(1)).Sugar()
}

func Sync() error { return L().Sync() }

func Debug(args ...any) { L().Debug(args...) }
func Info(args ...any)  { L().Info(args...) }
func Warn(args ...any)  { L().Warn(args...) }
func Error(args ...any) { L().Error(args...) }

func Debugf(format string, args ...any) { L().Debugf(format, args...) }
func Infof(format string, args ...any)  { L().Infof(format, args...) }
func Warnf(format string, args ...any)  { L().Warnf(format, args...) }
func Errorf(format string, args ...any) { L().Errorf(format, args...) }

// Fatalf logs and exits the process.
func Fatalf(format string, args ...any) { L().Fatalf(format, args...) }
