// SPDX-FileCopyrightText: Copyright 2026 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package logger provides a logging capability for graphmcp.
package logger

import (
	"os"
	"strconv"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// singleton holds the process-wide sugared logger. It is stored atomically
// so that tests can swap it without racing concurrent log calls.
var singleton atomic.Pointer[zap.SugaredLogger]

func init() {
	// A usable logger must exist before Initialize is called, so that
	// packages logging from init paths do not nil-deref.
	singleton.Store(zap.NewNop().Sugar())
}

// unstructuredLogs returns true unless UNSTRUCTURED_LOGS is explicitly
// set to false. Unstructured (console) output is the default for
// interactive use; structured JSON is what deployments want.
func unstructuredLogs() bool {
	value, ok := os.LookupEnv("UNSTRUCTURED_LOGS")
	if !ok {
		return true
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return true
	}
	return parsed
}

// Initialize creates and configures the process logger.
func Initialize() {
	var cfg zap.Config
	if unstructuredLogs() {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if _, debug := os.LookupEnv("DEBUG"); debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	l, err := cfg.Build()
	if err != nil {
		// Fall back to a bare production logger rather than running silent.
		l = zap.Must(zap.NewProduction())
	}
	singleton.Store(l.Sugar())
}

func log() *zap.SugaredLogger { return singleton.Load() }

// Debug logs a message at debug level.
func Debug(args ...any) { log().Debug(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...any) { log().Debugf(format, args...) }

// Debugw logs a message at debug level with key-value pairs.
func Debugw(msg string, keysAndValues ...any) { log().Debugw(msg, keysAndValues...) }

// Info logs a message at info level.
func Info(args ...any) { log().Info(args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...any) { log().Infof(format, args...) }

// Infow logs a message at info level with key-value pairs.
func Infow(msg string, keysAndValues ...any) { log().Infow(msg, keysAndValues...) }

// Warn logs a message at warn level.
func Warn(args ...any) { log().Warn(args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...any) { log().Warnf(format, args...) }

// Warnw logs a message at warn level with key-value pairs.
func Warnw(msg string, keysAndValues ...any) { log().Warnw(msg, keysAndValues...) }

// Error logs a message at error level.
func Error(args ...any) { log().Error(args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...any) { log().Errorf(format, args...) }

// Errorw logs a message at error level with key-value pairs.
func Errorw(msg string, keysAndValues ...any) { log().Errorw(msg, keysAndValues...) }

// Panic logs a message at panic level and then panics.
func Panic(args ...any) { log().Panic(args...) }

// Panicf logs a formatted message at panic level and then panics.
func Panicf(format string, args ...any) { log().Panicf(format, args...) }

// Panicw logs a message at panic level with key-value pairs and then panics.
func Panicw(msg string, keysAndValues ...any) { log().Panicw(msg, keysAndValues...) }
