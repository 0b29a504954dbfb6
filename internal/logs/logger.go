// Package logs builds the zap-backed logging backend every component
// in this proxy shares: a console core always on, an optional
// lumberjack-rotated file core, and a secret-sanitizing wrapper so
// OAuth tokens and upstream headers never reach disk or a terminal in
// the clear (SPEC_FULL.md §9).
package logs

import (
	"fmt"
	"os"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log level constants accepted in config.LogConfig.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

const logFilename = "mcpproxy.log"

// Default returns the logging configuration used when a loaded config
// carries no explicit Logging block: console-only, info level.
func Default() *config.LogConfig {
	return &config.LogConfig{
		Level:      LevelInfo,
		EnableFile: false,
		MaxSizeMB:  10,
		MaxBackups: 5,
		MaxAgeDays: 30,
		Compress:   true,
	}
}

// New builds the process-wide logger from cfg. Every core is wrapped
// in a SecretSanitizer so bearer tokens and other sensitive values
// never appear in a log line regardless of which core emits it.
func New(cfg *config.LogConfig) (*zap.Logger, error) {
	if cfg == nil {
		cfg = Default()
	}

	level := parseLevel(cfg.Level)

	var cores []zapcore.Core
	cores = append(cores, zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stderr), level))

	if cfg.EnableFile {
		fileCore, err := newFileCore(cfg, level)
		if err != nil {
			return nil, fmt.Errorf("building file log core: %w", err)
		}
		cores = append(cores, fileCore)
	}

	core := NewSecretSanitizer(zapcore.NewTee(cores...))
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(0)), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case LevelDebug:
		return zap.DebugLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	case LevelInfo, "":
		return zap.InfoLevel
	default:
		return zap.InfoLevel
	}
}

func newFileCore(cfg *config.LogConfig, level zapcore.Level) (zapcore.Core, error) {
	path, err := GetLogFilePathWithDir(cfg.LogDir, logFilename)
	if err != nil {
		return nil, err
	}

	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    orDefault(cfg.MaxSizeMB, 10),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 30),
		Compress:   cfg.Compress,
	}

	return zapcore.NewCore(fileEncoder(), zapcore.AddSync(writer), level), nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func consoleEncoder() zapcore.Encoder {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(encCfg)
}

func fileEncoder() zapcore.Encoder {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(encCfg)
}
