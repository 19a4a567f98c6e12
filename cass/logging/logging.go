// Package logging wraps zap with the event-id-tagged structured
// logging spec.md §7 expects from the base Processor ("Caught by the
// base processEvent, logged with the event id"). No package-level
// logger is kept — every call site receives an explicit *zap.Logger,
// per spec.md §9's guidance to turn former singletons into explicit
// context objects.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger at the given level ("debug", "info", "warn",
// "error"), writing JSON to stderr in production-style builds and a
// human-readable console encoding otherwise.
func New(level string, development bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      development,
		Encoding:         "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
	}
	if !development {
		cfg.Encoding = "json"
		cfg.EncoderConfig = zap.NewProductionEncoderConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return cfg.Build()
}

// WithEvent returns a logger annotated with the processor name and
// event id, the two fields spec.md §7 requires on every process-time
// error log line.
func WithEvent(l *zap.Logger, processor string, eventID uint64) *zap.Logger {
	return l.With(zap.String("processor", processor), zap.Uint64("event", eventID))
}
