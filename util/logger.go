package util

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var currentLevel LogLevel = LogLevelInfo

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.DisableStacktrace = true

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
}

// SetLevel switches the minimum level emitted by the package functions.
// zap itself stays at debug; gating here keeps the level switchable at
// runtime without rebuilding the logger.
func SetLevel(level LogLevel) {
	currentLevel = level
}

func Debug(format string, v ...interface{}) {
	if currentLevel <= LogLevelDebug {
		zap.S().Debugf(format, v...)
	}
}

func Info(format string, v ...interface{}) {
	if currentLevel <= LogLevelInfo {
		zap.S().Infof(format, v...)
	}
}

func Warn(format string, v ...interface{}) {
	if currentLevel <= LogLevelWarn {
		zap.S().Warnf(format, v...)
	}
}

func Error(format string, v ...interface{}) {
	if currentLevel <= LogLevelError {
		zap.S().Errorf(format, v...)
	}
}

func Fatal(format string, v ...interface{}) {
	zap.S().Fatalf(format, v...)
}

// Sync flushes buffered log entries. Call before process exit.
func Sync() {
	_ = zap.L().Sync()
}
