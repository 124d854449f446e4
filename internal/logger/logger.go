// Package logger holds the process-wide zap logger.
package logger

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"field-sync-service/internal/config"
)

// Log is a no-op until InitLogger runs, so packages and tests can log freely.
var Log = zap.NewNop()

// InitLogger replaces Log according to cfg. Format "auto" selects the console
// encoder when stderr is a terminal and JSON otherwise. When cfg.File is set
// output goes to a rotating file instead of stderr.
func InitLogger(cfg config.LoggingConfig) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch resolveFormat(cfg.Format, cfg.File) {
	case "console":
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		if cfg.File != "" {
			encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		}
		encoder = zapcore.NewConsoleEncoder(encCfg)
	case "json":
		encoder = zapcore.NewJSONEncoder(encCfg)
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}

	var sink zapcore.WriteSyncer
	if cfg.File != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}

	Log = zap.New(zapcore.NewCore(encoder, sink, level), zap.AddCaller())
	return nil
}

func resolveFormat(format, file string) string {
	if format != "auto" {
		return format
	}
	if file == "" && isatty.IsTerminal(os.Stderr.Fd()) {
		return "console"
	}
	return "json"
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Log.Sync()
}
