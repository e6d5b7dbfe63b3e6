// Package observe builds the process logger and tracer provider.
package observe

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions selects the logger level, encoding and optional file sink.
type LogOptions struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string // rotated JSON log file; empty disables it
	Out    io.Writer
}

// NewLogger builds a zap logger writing to Out (stderr by default) and, when
// File is set, to a rotated JSON file.
func NewLogger(opts LogOptions) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(orDefault(opts.Level, "info")))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var consoleEncoder zapcore.Encoder
	switch opts.Format {
	case "json":
		consoleEncoder = jsonEncoder
	case "", "console":
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(zapcore.AddSync(out)), level),
	}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // Megabytes
			MaxBackups: 5,
			MaxAge:     30, // Days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
