package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypton-sync/internal/api"
	"crypton-sync/internal/clock"
	"crypton-sync/internal/data"
	"crypton-sync/internal/service"
	"crypton-sync/internal/trace"

	"go.uber.org/zap"
)

func main() {
	// config/config.yaml 可选，缺失时使用默认值和环境变量
	cfg, err := service.LoadConfig("config")
	if err != nil {
		// 日志尚未初始化，先用默认配置构建一个
		service.InitLogger(service.LogConfig{Level: "info"})
		service.Logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	service.InitLogger(cfg.Log)
	defer service.Logger.Sync()

	if err := trace.Init(cfg.Trace.Enabled); err != nil {
		service.Logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 所有定时器 (刷新、对账、重连) 都来自同一个调度器
	scheduler := clock.NewScheduler(service.Logger)
	defer scheduler.Shutdown()

	// 2. 拉取端：交易机器人后端 REST
	backend := api.NewRESTClient(cfg.Backend.RESTURL, cfg.Backend.RequestTimeout, service.Logger)

	// 3. 数据引擎：唯一修改状态的地方
	engine := data.NewDataEngine(
		data.NewEngineConfig(cfg),
		backend,
		scheduler,
		data.LogRenderer{Logger: service.Logger},
		service.Logger,
	)

	// 4. 推送端：Connector 只解析和投递，不直接修改状态
	connector := api.NewConnector(api.ConnectorConfig{
		URL:            cfg.Backend.WSURL,
		ReconnectDelay: cfg.Sync.ReconnectDelay,
	}, engine, scheduler, service.Logger)
	engine.AttachFeed(connector)

	if err := engine.Start(ctx); err != nil {
		service.Logger.Fatal("Failed to start data engine", zap.Error(err))
	}
	service.Logger.Info("Sync pipeline running",
		zap.String("Symbol", cfg.Chart.Symbol),
		zap.String("Interval", cfg.Chart.Interval),
		zap.String("RESTURL", cfg.Backend.RESTURL),
		zap.String("WSURL", cfg.Backend.WSURL))

	<-ctx.Done()
	service.Logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := engine.Stop(shutdownCtx); err != nil {
		service.Logger.Error("Data engine did not stop cleanly", zap.Error(err))
	}
	if err := trace.Shutdown(shutdownCtx); err != nil {
		service.Logger.Error("Failed to flush traces", zap.Error(err))
	}
}
