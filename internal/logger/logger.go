// Package logger builds the process-wide zap logger and the tee that
// forwards warnings and errors into the telemetry stream.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log levels used across the application.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Options selects the level and an optional rotated log file.
type Options struct {
	Level string
	File  string // empty disables file logging

	MaxSizeMB  int // rotate after this size; 0 uses 10
	MaxBackups int // 0 uses 3
}

// defaultZapLevel is the fallback when an unknown level string is provided.
const defaultZapLevel = zapcore.DebugLevel

// ValidLevel reports whether s names a supported level.
func ValidLevel(s string) bool {
	switch s {
	case DebugLevel, InfoLevel, WarnLevel, ErrorLevel:
		return true
	}
	return false
}

func toZapLevel(levelStr string) zapcore.Level {
	switch levelStr {
	case InfoLevel:
		return zapcore.InfoLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return defaultZapLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

// newConsoleCore builds a console-encoded core targeting stdout.
func newConsoleCore(level zapcore.Level) zapcore.Core {
	encoder := zapcore.NewConsoleEncoder(encoderConfig())
	ws := zapcore.Lock(os.Stdout)
	return zapcore.NewCore(encoder, ws, zap.NewAtomicLevelAt(level))
}

// newFileCore builds a JSON core writing to a rotated file.
func newFileCore(level zapcore.Level, opts Options) (zapcore.Core, *lumberjack.Logger) {
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	if lj.MaxSize == 0 {
		lj.MaxSize = 10
	}
	if lj.MaxBackups == 0 {
		lj.MaxBackups = 3
	}
	encoder := zapcore.NewJSONEncoder(encoderConfig())
	return zapcore.NewCore(encoder, zapcore.AddSync(lj), zap.NewAtomicLevelAt(level)), lj
}

// New builds the base logger. The returned function flushes buffered
// entries and closes the log file, if any.
func New(opts Options) (*zap.SugaredLogger, func()) {
	level := toZapLevel(opts.Level)
	core := newConsoleCore(level)

	var lj *lumberjack.Logger
	if opts.File != "" {
		var fileCore zapcore.Core
		fileCore, lj = newFileCore(level, opts)
		core = zapcore.NewTee(core, fileCore)
	}

	log := zap.New(core).Sugar()
	return log, func() {
		_ = log.Sync()
		if lj != nil {
			_ = lj.Close()
		}
	}
}
