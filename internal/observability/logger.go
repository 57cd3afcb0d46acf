// Package observability holds the process-wide CLI logger.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by CLI commands. It is a no-op logger until
// InitCLILogger runs.
var CLILogger = zap.NewNop()

// InitCLILogger builds a console logger on stderr named after the binary
// and installs it as CLILogger.
func InitCLILogger(name string, level zapcore.Level) *zap.Logger {
	CLILogger = NewLogger(name, level)
	return CLILogger
}

// NewLogger builds a console logger on stderr at the given level.
func NewLogger(name string, level zapcore.Level) *zap.Logger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core).Named(name)
}

// ParseLevel maps a configured level name to a zap level. Unknown names
// fall back to info.
func ParseLevel(name string) zapcore.Level {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(name)))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}
