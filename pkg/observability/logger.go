// Package observability sets up logging, metrics and tracing for dclass binaries.
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger bundles a zap logger with the level that controls it at runtime
type Logger struct {
	*zap.Logger
	Level zap.AtomicLevel
}

// NewLogger builds a production or development logger at the given level
func NewLogger(environment, level string) (*Logger, error) {
	var zapConfig zap.Config
	if environment == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(ParseLevel(level))

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: logger, Level: zapConfig.Level}, nil
}

// SetLevel changes the level of every logger derived from l
func (l *Logger) SetLevel(level string) bool {
	next := ParseLevel(level)
	if l.Level.Level() == next {
		return false
	}
	l.Level.SetLevel(next)
	return true
}

// ParseLevel maps debug/info/warn/error to zap levels, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
