package service

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("Flush applied", zap.Int("tickers", n))
var Logger = zap.NewNop()

// InitLogger 初始化高性能的 Zap 日志
func InitLogger(cfg LogConfig) {
	logger, err := NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	Logger = logger
}

// NewLogger 根据配置构建 zap.Logger，不修改全局变量
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if cfg.Development {
		config = zap.NewDevelopmentConfig()
	}

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		config.Level = zap.NewAtomicLevelAt(level)
	}

	return config.Build()
}
