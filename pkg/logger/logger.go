// Package logger builds the process-wide structured logger. Every
// component derives its own named child (logger.Named("pipeline"),
// "netsim.reliable", ...) so log lines carry their origin.
package logger

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is an alias for zap.Logger for consistency
type Logger = *zap.Logger

// NewLogger creates the stdout JSON logger at the given level. An
// unknown level falls back to info rather than failing the boot.
func NewLogger(level string) (*zap.Logger, error) {
	return NewLoggerTo(level, os.Stdout)
}

// NewLoggerTo writes to an arbitrary sink, which lets tests capture the
// output and lets deployments redirect it without touching the logger
// construction.
func NewLoggerTo(level string, w io.Writer) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.MessageKey = "msg"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		lvl,
	)

	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}
