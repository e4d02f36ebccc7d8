// Copyright (C) 2026, Voltgrid Labs. All rights reserved.
// See the file LICENSE for licensing terms.

// Package log is a thin structured-logging wrapper so every manager in the
// core takes a Logger by constructor injection instead of reaching for a
// package-level global.
package log

import (
	"github.com/luxfi/node/utils/logging"
	"go.uber.org/zap"
)

// Logger is the logging interface every pkg/* manager depends on.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
	Fatal(msg string, kv ...interface{})
	Sync() error
}

// luxLogger wraps luxfi/node's Logger.
type luxLogger struct {
	log logging.Logger
}

// New creates a logger at info level.
func New() Logger {
	return NewWithLevel("info")
}

// NewWithLevel creates a logger at the named level.
func NewWithLevel(level string) Logger {
	lvl := logging.Info
	switch level {
	case "debug":
		lvl = logging.Debug
	case "info":
		lvl = logging.Info
	case "warn":
		lvl = logging.Warn
	case "error":
		lvl = logging.Error
	case "fatal":
		lvl = logging.Fatal
	}

	config := logging.Config{
		DisplayLevel:            lvl,
		LogLevel:                lvl,
		DisableWriterDisplaying: false,
	}

	factory := logging.NewFactory(config)
	l, err := factory.Make("auction-core")
	if err != nil {
		return &noOpLogger{}
	}

	return &luxLogger{log: l}
}

// NewLogger creates a named logger at info level.
func NewLogger(name string) Logger {
	config := logging.Config{
		DisplayLevel: logging.Info,
		LogLevel:     logging.Info,
	}

	factory := logging.NewFactory(config)
	l, err := factory.Make(name)
	if err != nil {
		return &noOpLogger{}
	}

	return &luxLogger{log: l}
}

// NoOp returns a logger that discards everything.
func NoOp() Logger {
	return &noOpLogger{}
}

// NoLog is a shared no-op logger instance.
var NoLog = NoOp()

func (l *luxLogger) Debug(msg string, kv ...interface{}) { l.log.Debug(msg, fields(kv)...) }
func (l *luxLogger) Info(msg string, kv ...interface{})  { l.log.Info(msg, fields(kv)...) }
func (l *luxLogger) Warn(msg string, kv ...interface{})  { l.log.Warn(msg, fields(kv)...) }
func (l *luxLogger) Error(msg string, kv ...interface{}) { l.log.Error(msg, fields(kv)...) }
func (l *luxLogger) Fatal(msg string, kv ...interface{}) { l.log.Fatal(msg, fields(kv)...) }

// Sync flushes buffered log entries.
func (l *luxLogger) Sync() error {
	l.log.Stop()
	return nil
}

// fields turns a flat (key, value, key, value, ...) list into zap.Fields.
func fields(kv []interface{}) []zap.Field {
	if len(kv) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, zap.Any(key, kv[i+1]))
	}
	return out
}

type noOpLogger struct{}

func (n *noOpLogger) Debug(msg string, kv ...interface{}) {}
func (n *noOpLogger) Info(msg string, kv ...interface{})  {}
func (n *noOpLogger) Warn(msg string, kv ...interface{})  {}
func (n *noOpLogger) Error(msg string, kv ...interface{}) {}
func (n *noOpLogger) Fatal(msg string, kv ...interface{}) {}
func (n *noOpLogger) Sync() error                         { return nil }
