// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log provides the structured logger used across every PayAttn
// binary and package, a thin named wrapper over zap's SugaredLogger.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging surface every PayAttn component depends on. It is
// deliberately narrow so call sites stay readable and so a no-op
// implementation can be swapped in for tests.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	Fatal(msg string, kv ...interface{})
	With(kv ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// New creates a production logger at info level.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a logger at the named level ("debug", "info", "warn",
// "error"). Unrecognized levels fall back to info.
func NewWithLevel(level string) Logger {
	var zapLevel zap.AtomicLevel
	switch level {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		zapLevel = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		zapLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	l, err := cfg.Build()
	if err != nil {
		return NoOp()
	}
	return &zapLogger{sugar: l.Sugar()}
}

// NewLogger creates a named info-level logger, used when a component wants
// its name threaded through every log line.
func NewLogger(name string) Logger {
	return NewWithLevel("info").With("component", name)
}

// NoOp returns a logger that discards everything, useful in unit tests.
func NoOp() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// NoLog is a shared no-op logger instance.
var NoLog = NoOp()

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.sugar.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.sugar.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.sugar.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.sugar.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...interface{}) { l.sugar.Fatalw(msg, kv...) }

func (l *zapLogger) With(kv ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(kv...)}
}

func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
