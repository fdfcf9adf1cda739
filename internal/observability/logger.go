package observability

import (
	"strings"

	"github.com/taskora-dev/taskora/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func NewLogger(cfg config.Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(parseLevel(cfg.Logging.Level))

	zapCfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Logging.Format, "console") {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	log, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	// Log level follows config file edits without a restart.
	config.Watch(func(fresh config.Config) {
		level.SetLevel(parseLevel(fresh.Logging.Level))
	})

	return log, nil
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
