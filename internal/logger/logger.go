// Package logger builds the structured loggers used by the CLI and engine.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ErrInvalidFormat is returned for an unknown log format.
var ErrInvalidFormat = errors.New("logger: invalid format")

// New returns a sugared logger writing to stderr, tagged with service.
func New(service, level, format string) (*zap.SugaredLogger, error) {
	return NewWithWriter(os.Stderr, service, level, format)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, service, level, format string) (*zap.SugaredLogger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	switch strings.ToLower(format) {
	case "", FormatConsole:
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	case FormatJSON:
		enc = zapcore.NewJSONEncoder(encCfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidFormat, format)
	}
	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	log := zap.New(core, zap.ErrorOutput(zapcore.AddSync(w)))
	if service != "" {
		log = log.Named(service)
	}
	return log.Sugar(), nil
}

// ParseLevel parses a level name; the empty string means info.
func ParseLevel(level string) (zapcore.Level, error) {
	if level == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
		return lvl, fmt.Errorf("logger: invalid level %q: %w", level, err)
	}
	return lvl, nil
}
