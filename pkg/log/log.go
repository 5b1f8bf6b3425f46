// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging interface used across the settlement core
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Fatal(msg string, keysAndValues ...interface{})
	Sync() error
}

// zapLogger wraps a zap sugared logger
type zapLogger struct {
	log *zap.SugaredLogger
}

// New creates a new logger at info level
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a new logger with a specific level
func NewWithLevel(level string) Logger {
	lvl := zapcore.InfoLevel
	switch level {
	case "debug":
		lvl = zapcore.DebugLevel
	case "info":
		lvl = zapcore.InfoLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	case "fatal":
		lvl = zapcore.FatalLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	log, err := cfg.Build()
	if err != nil {
		return &noOpLogger{}
	}

	return &zapLogger{log: log.Named("attrib").Sugar()}
}

// NewLogger creates a new logger with a name
func NewLogger(name string) Logger {
	log, err := zap.NewProduction()
	if err != nil {
		return &noOpLogger{}
	}
	return &zapLogger{log: log.Named(name).Sugar()}
}

// NoOp returns a no-op logger
func NoOp() Logger {
	return &noOpLogger{}
}

// NoLog is a no-op logger instance
var NoLog = NoOp()

func (l *zapLogger) Debug(msg string, kv ...interface{}) { l.log.Debugw(msg, kv...) }
func (l *zapLogger) Info(msg string, kv ...interface{})  { l.log.Infow(msg, kv...) }
func (l *zapLogger) Warn(msg string, kv ...interface{})  { l.log.Warnw(msg, kv...) }
func (l *zapLogger) Error(msg string, kv ...interface{}) { l.log.Errorw(msg, kv...) }
func (l *zapLogger) Fatal(msg string, kv ...interface{}) { l.log.Fatalw(msg, kv...) }

// Sync flushes any buffered log entries
func (l *zapLogger) Sync() error {
	return l.log.Sync()
}

// noOpLogger is a logger that does nothing
type noOpLogger struct{}

func (n *noOpLogger) Debug(msg string, kv ...interface{}) {}
func (n *noOpLogger) Info(msg string, kv ...interface{})  {}
func (n *noOpLogger) Warn(msg string, kv ...interface{})  {}
func (n *noOpLogger) Error(msg string, kv ...interface{}) {}
func (n *noOpLogger) Fatal(msg string, kv ...interface{}) {}
func (n *noOpLogger) Sync() error                         { return nil }
