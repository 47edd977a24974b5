// Package logging builds core.Logger implementations from config.LogConfig.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/Swind/go-tick-runner/config"
	"github.com/Swind/go-tick-runner/core"
)

// Setup builds a logger for c. The returned sync function flushes buffered
// output and closes rotated files; callers should defer it.
func Setup(c config.LogConfig) (core.Logger, func() error, error) {
	switch strings.ToLower(c.Backend) {
	case "", "zerolog":
		return setupZerolog(c)
	case "zap":
		zl := SetupZap(c)
		return NewZapLogger(zl), zl.Sync, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", c.Backend)
	}
}

// =============================================================================
// zerolog backend
// =============================================================================

func setupZerolog(c config.LogConfig) (core.Logger, func() error, error) {
	var (
		writers []io.Writer
		closers []io.Closer
	)
	for _, out := range c.Outputs {
		w, closer := openOutput(out, c)
		if strings.ToLower(c.Format) != "json" {
			w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: closer != nil}
		}
		writers = append(writers, w)
		if closer != nil {
			closers = append(closers, closer)
		}
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(zerologLevel(c.Level)).
		With().Timestamp().Logger()

	sync := func() error {
		var first error
		for _, cl := range closers {
			if err := cl.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return core.NewZerologLogger(zl), sync, nil
}

func zerologLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// openOutput resolves stdout, stderr or a file path. Files are rotated
// through lumberjack when rotation is enabled. The closer is nil for the
// standard streams.
func openOutput(out string, c config.LogConfig) (io.Writer, io.Closer) {
	switch strings.ToLower(out) {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}

	if c.Rotation.Enable {
		lj := &lumberjack.Logger{
			Filename:   out,
			MaxSize:    max(c.Rotation.MaxSizeMB, 10),
			MaxBackups: max(c.Rotation.MaxBackups, 1),
			MaxAge:     max(c.Rotation.MaxAgeDays, 7),
			Compress:   c.Rotation.Compress,
		}
		return lj, lj
	}

	if dir := filepath.Dir(out); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		// fallback to stderr on failure
		return os.Stderr, nil
	}
	return f, f
}

// =============================================================================
// zap backend
// =============================================================================

// SetupZap builds a zap.Logger from c. File outputs go through openOutput.
func SetupZap(c config.LogConfig) *zap.Logger {
	level := zap.NewAtomicLevelAt(zapLevel(c.Level))

	encCfg := zap.NewProductionEncoderConfig()
	if c.Development {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	var encoder zapcore.Encoder
	if strings.ToLower(c.Format) == "json" {
		encoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}

	var cores []zapcore.Core
	for _, out := range c.Outputs {
		w, _ := openOutput(out, c)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(w), level))
	}

	opts := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if c.Development {
		opts = append(opts, zap.Development())
	}
	return zap.New(zapcore.NewTee(cores...), opts...)
}

func zapLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// ZapLogger adapts a *zap.Logger to core.Logger.
type ZapLogger struct {
	zl *zap.Logger
}

// NewZapLogger wraps zl.
func NewZapLogger(zl *zap.Logger) *ZapLogger {
	return &ZapLogger{zl: zl}
}

func (l *ZapLogger) Debug(msg string, fields ...core.Field) { l.zl.Debug(msg, zapFields(fields)...) }
func (l *ZapLogger) Info(msg string, fields ...core.Field)  { l.zl.Info(msg, zapFields(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...core.Field)  { l.zl.Warn(msg, zapFields(fields)...) }
func (l *ZapLogger) Error(msg string, fields ...core.Field) { l.zl.Error(msg, zapFields(fields)...) }

func zapFields(fields []core.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		out = append(out, zap.Any(f.Key, f.Value))
	}
	return out
}

var _ core.Logger = (*ZapLogger)(nil)
