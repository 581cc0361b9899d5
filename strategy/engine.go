// Package strategy 调度层: 驱动关键位生成、刷新与网格重建
package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"klgrid/level"
	"klgrid/logger"
	"klgrid/market"
	"klgrid/notify"
	"klgrid/store"
	"klgrid/trader"
)

// Config 调度配置
type Config struct {
	Symbol        string `yaml:"symbol"`
	MaxLevels     int    `yaml:"max_levels"`     // 每个方向的输出上限
	TickInterval  int    `yaml:"tick_interval"`  // 刷新轮询间隔 (秒)
	DailyRebuild  string `yaml:"daily_rebuild"`  // cron 表达式, 空则禁用
	StaleTolerant bool   `yaml:"stale_tolerant"` // 数据过期时是否继续生成
}

// DefaultConfig 默认调度配置
func DefaultConfig() Config {
	return Config{
		MaxLevels:    6,
		TickInterval: 900, // 15m 战术节奏
		DailyRebuild: "5 0 * * *",
	}
}

// Validate 校验调度配置
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("strategy config: symbol is empty")
	}
	if c.MaxLevels <= 0 {
		return fmt.Errorf("strategy config: max_levels must be positive")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("strategy config: tick_interval must be positive")
	}
	return nil
}

// Engine 关键位调度引擎
//
// 主框架收出新 K 线时做全量生成, 其余 tick 只刷新评分;
// 每日定时 cron 做一次强制全量, 兜底漏检的收盘事件。
type Engine struct {
	cfg      Config
	levelCfg *level.Config
	feed     *market.Feed
	calc     *level.Calculator
	st       *store.Store
	grid     *trader.GridTrader
	notifier notify.Notifier
	cron     *cron.Cron

	mu               sync.Mutex
	lastMainOpenTime int64
	stopCh           chan struct{}
	stopped          sync.Once
}

// New 创建调度引擎
func New(cfg Config, levelCfg *level.Config, feed *market.Feed, calc *level.Calculator,
	st *store.Store, grid *trader.GridTrader, notifier notify.Notifier) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Engine{
		cfg:      cfg,
		levelCfg: levelCfg,
		feed:     feed,
		calc:     calc,
		st:       st,
		grid:     grid,
		notifier: notifier,
		stopCh:   make(chan struct{}),
	}, nil
}

// Run 阻塞运行调度循环, ctx 取消或 Stop 后返回
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.DailyRebuild != "" {
		e.cron = cron.New()
		if _, err := e.cron.AddFunc(e.cfg.DailyRebuild, func() {
			logger.Infof("strategy: daily rebuild triggered for %s", e.cfg.Symbol)
			if err := e.generate(ctx); err != nil {
				logger.Errorf("strategy: daily rebuild failed: %v", err)
			}
		}); err != nil {
			return fmt.Errorf("strategy: invalid cron expression %q: %w", e.cfg.DailyRebuild, err)
		}
		e.cron.Start()
		defer e.cron.Stop()
	}

	// 启动时先做一次全量
	if err := e.generate(ctx); err != nil {
		logger.Errorf("strategy: initial generation failed: %v", err)
	}

	ticker := time.NewTicker(time.Duration(e.cfg.TickInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.stopCh:
			return nil
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				logger.Errorf("strategy: tick failed: %v", err)
			}
		}
	}
}

// Stop 停止调度循环
func (e *Engine) Stop() {
	e.stopped.Do(func() { close(e.stopCh) })
}

// tick 单轮调度: 新主框架 K 线 → 全量生成, 否则只刷新评分
func (e *Engine) tick(ctx context.Context) error {
	mainKlines, err := e.feed.Klines(ctx, e.cfg.Symbol, e.levelCfg.MainTimeframe, 0)
	if err != nil {
		return err
	}
	closed := market.ClosedOnly(mainKlines)
	if len(closed) == 0 {
		return fmt.Errorf("no closed %s klines for %s", e.levelCfg.MainTimeframe, e.cfg.Symbol)
	}

	latestOpen := closed[len(closed)-1].OpenTime
	e.mu.Lock()
	newCandle := latestOpen > e.lastMainOpenTime
	e.mu.Unlock()

	if newCandle {
		return e.generate(ctx)
	}
	return e.refresh(ctx)
}

// generate 全量生成双向关键位并判定网格重建
func (e *Engine) generate(ctx context.Context) error {
	klinesByTF, currentPrice, err := e.fetchAll(ctx)
	if err != nil {
		return err
	}

	supports, err := e.calc.Generate(klinesByTF, currentPrice, level.RoleSupport, e.cfg.MaxLevels)
	if err != nil {
		return fmt.Errorf("generate supports: %w", err)
	}
	resistances, err := e.calc.Generate(klinesByTF, currentPrice, level.RoleResistance, e.cfg.MaxLevels)
	if err != nil {
		return fmt.Errorf("generate resistances: %w", err)
	}

	trend := level.DetermineTrend(market.ClosedOnly(klinesByTF[e.levelCfg.MainTimeframe]))
	if err := e.persist(level.RoleSupport, currentPrice, trend, supports); err != nil {
		return err
	}
	if err := e.persist(level.RoleResistance, currentPrice, trend, resistances); err != nil {
		return err
	}

	e.mu.Lock()
	closed := market.ClosedOnly(klinesByTF[e.levelCfg.MainTimeframe])
	if len(closed) > 0 {
		e.lastMainOpenTime = closed[len(closed)-1].OpenTime
	}
	e.mu.Unlock()

	e.maybeRebuild(klinesByTF, currentPrice, supports, resistances)
	return nil
}

// refresh 只刷新评分, 价格保持不变
func (e *Engine) refresh(ctx context.Context) error {
	klinesByTF, currentPrice, err := e.fetchAll(ctx)
	if err != nil {
		return err
	}

	for _, role := range []level.Role{level.RoleSupport, level.RoleResistance} {
		snap, err := e.st.Level().GetActive(e.cfg.Symbol, role)
		if err != nil {
			return err
		}
		if snap == nil || len(snap.Levels) == 0 {
			continue
		}
		refreshed := e.calc.RefreshScores(snap.Levels, klinesByTF, currentPrice, role)
		if err := e.st.Level().UpdateScores(e.cfg.Symbol, role, refreshed); err != nil {
			return fmt.Errorf("update %s scores: %w", role, err)
		}
	}
	logger.Debugf("strategy: scores refreshed for %s at %.4f", e.cfg.Symbol, currentPrice)
	return nil
}

// fetchAll 拉取全框架数据与现价, 并做新鲜度检查
func (e *Engine) fetchAll(ctx context.Context) (market.KlinesByTimeframe, float64, error) {
	klinesByTF, err := e.feed.Snapshot(ctx, e.cfg.Symbol, e.levelCfg.Timeframes)
	if err != nil {
		return nil, 0, err
	}
	currentPrice, err := e.feed.LastPrice(ctx, e.cfg.Symbol)
	if err != nil {
		return nil, 0, err
	}

	statuses := e.feed.CheckStaleness(e.cfg.Symbol, e.levelCfg.Timeframes, time.Now())
	for _, status := range statuses {
		if !status.IsStale {
			continue
		}
		e.notifier.NotifyStale(e.cfg.Symbol, status.Timeframe, status.LagSeconds)
		if !e.cfg.StaleTolerant {
			return nil, 0, fmt.Errorf("%s klines stale (lag %ds)", status.Timeframe, status.LagSeconds)
		}
	}
	return klinesByTF, currentPrice, nil
}

// persist 落快照与审计记录
func (e *Engine) persist(role level.Role, currentPrice float64, trend level.TrendState, levels []level.ScoredLevel) error {
	if _, err := e.st.Level().SaveSnapshot(e.cfg.Symbol, role, currentPrice, trend, levels); err != nil {
		return fmt.Errorf("save %s snapshot: %w", role, err)
	}
	if result := e.calc.LastAuditResult(role); result != nil {
		if err := e.st.Audit().Save(e.cfg.Symbol, role, result); err != nil {
			return fmt.Errorf("save %s audit: %w", role, err)
		}
		e.notifier.NotifyAudit(e.cfg.Symbol, role, result)
	}
	return nil
}

// maybeRebuild 锚点漂移超限时重新铺网
func (e *Engine) maybeRebuild(klinesByTF market.KlinesByTimeframe, currentPrice float64,
	supports, resistances []level.ScoredLevel) {
	if e.grid == nil {
		return
	}

	rebuild, reason := e.grid.ShouldRebuild(currentPrice, time.Now())
	if !rebuild {
		logger.Debugf("strategy: grid rebuild skipped (%s)", reason)
		return
	}

	mainKlines := market.ClosedOnly(klinesByTF[e.levelCfg.MainTimeframe])
	anchor := level.AnchorPrice(mainKlines, 55)
	if anchor <= 0 {
		anchor = currentPrice
	}

	if _, err := e.grid.Deploy(supports, resistances, currentPrice, anchor); err != nil {
		logger.Errorf("strategy: grid deploy failed: %v", err)
		return
	}
	logger.Infof("strategy: grid rebuilt (%s)", reason)
	e.notifier.NotifyRebuild(e.cfg.Symbol, anchor, supports, resistances)
}
