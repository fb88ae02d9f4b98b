// Package logger wraps zap behind the narrow structured-logging contract the
// rest of the orchestrator depends on.
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging contract shared by every component. Implementations
// must be safe for concurrent use.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs and then exits the process.
	Fatal(msg string, fields ...Field)
	// With returns a logger with the fields attached to every entry.
	With(fields ...Field) Logger
	Sync() error
}

// Field aliases zap.Field so call sites construct fields through this
// package without importing zap.
type Field = zap.Field

// Config controls level and output destinations.
type Config struct {
	// Level is the minimum level emitted (debug, info, warn, error, fatal).
	Level string `env:"LOG_LEVEL" yaml:"level"`
	// Development disables sampling so every entry is emitted.
	Development bool `yaml:"development"`
	// OutputPaths lists URLs or file paths to write entries to.
	OutputPaths []string `yaml:"output_paths"`
}

// SetDefaults fills unset fields: info level, stdout output.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if len(c.OutputPaths) == 0 {
		c.OutputPaths = []string{"stdout"}
	}
}

// zlog adapts a zap.Logger to the Logger contract.
type zlog struct {
	z *zap.Logger
}

// New builds a logger from the configuration. Output is JSON in every
// environment so log aggregation sees one shape.
func New(cfg Config) (Logger, error) {
	cfg.SetDefaults()

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	zc.OutputPaths = cfg.OutputPaths
	if cfg.Development {
		zc.Sampling = nil
	}

	z, err := zc.Build(
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return &zlog{z: z}, nil
}

// Must builds a logger or exits. For process startup only.
func Must(cfg Config) Logger {
	l, err := New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return l
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zlog) Debug(msg string, fields ...Field) { l.z.Debug(msg, fields...) }
func (l *zlog) Info(msg string, fields ...Field)  { l.z.Info(msg, fields...) }
func (l *zlog) Warn(msg string, fields ...Field)  { l.z.Warn(msg, fields...) }
func (l *zlog) Error(msg string, fields ...Field) { l.z.Error(msg, fields...) }
func (l *zlog) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, fields...) }

func (l *zlog) With(fields ...Field) Logger {
	return &zlog{z: l.z.With(fields...)}
}

func (l *zlog) Sync() error {
	return l.z.Sync()
}
