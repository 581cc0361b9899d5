package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"klgrid/api"
	"klgrid/config"
	"klgrid/level"
	"klgrid/logger"
	"klgrid/market"
	"klgrid/notify"
	"klgrid/store"
	"klgrid/strategy"
	"klgrid/trader"
)

func main() {
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("❌ 配置加载失败: %v", err)
	}
	logger.InitWithSimpleConfig(cfg.LogLevel)
	logger.Infof("🚀 klgrid 启动 (symbol=%s)", cfg.Strategy.Symbol)

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("❌ 数据库初始化失败: %v", err)
	}
	defer st.Close()

	calc, err := level.NewCalculator(cfg.Level)
	if err != nil {
		logger.Fatalf("❌ 关键位计算器创建失败: %v", err)
	}

	client := futures.NewClient(cfg.Binance.APIKey, cfg.Binance.SecretKey)
	feed := market.NewFeed(client)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.Errorf("⚠️ telegram 初始化失败, 降级为空通知: %v", err)
		} else {
			notifier = tg
		}
	}

	gridTrader, err := trader.NewGridTrader(cfg.Trader, st.Grid())
	if err != nil {
		logger.Fatalf("❌ 网格部署器创建失败: %v", err)
	}

	engine, err := strategy.New(cfg.Strategy, cfg.Level, feed, calc, st, gridTrader, notifier)
	if err != nil {
		logger.Fatalf("❌ 调度引擎创建失败: %v", err)
	}

	server := api.NewServer(st, cfg.Strategy.Symbol, cfg.APIPort)
	go func() {
		if err := server.Start(); err != nil {
			logger.Errorf("api: server exited: %v", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := engine.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("strategy: engine exited: %v", err)
		}
	}()

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("收到信号 %v, 开始退出", sig)

	cancel()
	engine.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("api: shutdown failed: %v", err)
	}
	logger.Info("👋 已退出")
}
