// Package trader 把关键位快照落成网格部署
//
// 不直接触碰交易所下单接口, 产出带 UUID 的挂单意图落库,
// 由外部执行器消费。重建判定依赖锚点漂移与冷却时间。
package trader

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"klgrid/level"
	"klgrid/logger"
	"klgrid/store"
)

// Config 网格部署配置
type Config struct {
	Symbol          string  `yaml:"symbol"`
	OrderQuantity   float64 `yaml:"order_quantity"`    // 每格下单数量
	RebuildDriftPct float64 `yaml:"rebuild_drift_pct"` // 锚点漂移阈值
	RebuildCooldown int     `yaml:"rebuild_cooldown_minutes"`
}

// DefaultConfig 默认网格配置
func DefaultConfig() Config {
	return Config{
		OrderQuantity:   0.001,
		RebuildDriftPct: 0.03,
		RebuildCooldown: 60,
	}
}

// Validate 校验网格配置
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return fmt.Errorf("trader config: symbol is empty")
	}
	if c.OrderQuantity <= 0 {
		return fmt.Errorf("trader config: order_quantity must be positive")
	}
	if c.RebuildDriftPct <= 0 {
		return fmt.Errorf("trader config: rebuild_drift_pct must be positive")
	}
	if c.RebuildCooldown < 0 {
		return fmt.Errorf("trader config: rebuild_cooldown_minutes must be >= 0")
	}
	return nil
}

// GridTrader 网格部署器
type GridTrader struct {
	cfg  Config
	grid *store.GridStore
}

// NewGridTrader 创建网格部署器
func NewGridTrader(cfg Config, gridStore *store.GridStore) (*GridTrader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GridTrader{cfg: cfg, grid: gridStore}, nil
}

// ShouldRebuild 判定是否需要重建网格
//
// 触发条件: 现价相对会话锚点漂移超阈值, 且距上次建网已过冷却期。
// 无活跃会话时直接重建。
func (t *GridTrader) ShouldRebuild(currentPrice float64, now time.Time) (bool, string) {
	session, err := t.grid.ActiveSession(t.cfg.Symbol)
	if err != nil {
		logger.Errorf("trader: load active session: %v", err)
		return false, "session load failed"
	}
	if session == nil {
		return true, "no active session"
	}
	if session.AnchorPrice <= 0 {
		return true, "invalid anchor"
	}

	drift := math.Abs(currentPrice-session.AnchorPrice) / session.AnchorPrice
	if drift < t.cfg.RebuildDriftPct {
		return false, fmt.Sprintf("drift %.2f%% below threshold", drift*100)
	}

	cooldown := time.Duration(t.cfg.RebuildCooldown) * time.Minute
	if elapsed := now.Sub(session.CreatedAt); elapsed < cooldown {
		return false, fmt.Sprintf("cooldown %.0fm remaining", (cooldown - elapsed).Minutes())
	}
	return true, fmt.Sprintf("anchor drift %.2f%%", drift*100)
}

// Deploy 依据支撑/阻力快照建网
//
// 支撑价挂买单, 阻力价挂卖单, 全部为意图态 (PENDING)。
func (t *GridTrader) Deploy(supports, resistances []level.ScoredLevel, currentPrice, anchorPrice float64) (*store.GridSession, error) {
	if len(supports) == 0 && len(resistances) == 0 {
		return nil, fmt.Errorf("trader: no levels to deploy")
	}

	session := &store.GridSession{
		ID:          uuid.New().String(),
		Symbol:      t.cfg.Symbol,
		AnchorPrice: anchorPrice,
		Supports:    levelPrices(supports),
		Resistances: levelPrices(resistances),
		Status:      store.GridActive,
		CreatedAt:   time.Now(),
	}
	if len(session.Supports) > 0 {
		session.LowerPrice = session.Supports[len(session.Supports)-1]
	}
	if len(session.Resistances) > 0 {
		session.UpperPrice = session.Resistances[0]
	}

	if err := t.grid.SaveSession(session); err != nil {
		return nil, fmt.Errorf("trader: save session: %w", err)
	}

	intents := t.buildIntents(session, currentPrice)
	if err := t.grid.SaveIntents(intents); err != nil {
		return nil, fmt.Errorf("trader: save intents: %w", err)
	}

	logger.Infof("trader: deployed grid %s for %s (anchor=%.4f supports=%d resistances=%d)",
		session.ID[:8], t.cfg.Symbol, anchorPrice, len(session.Supports), len(session.Resistances))
	return session, nil
}

// buildIntents 支撑挂买, 阻力挂卖, 价格越过现价的意图丢弃
func (t *GridTrader) buildIntents(session *store.GridSession, currentPrice float64) []store.OrderIntent {
	var intents []store.OrderIntent
	for _, p := range session.Supports {
		if p >= currentPrice {
			continue
		}
		intents = append(intents, t.newIntent(session, "BUY", p))
	}
	for _, p := range session.Resistances {
		if p <= currentPrice {
			continue
		}
		intents = append(intents, t.newIntent(session, "SELL", p))
	}
	return intents
}

func (t *GridTrader) newIntent(session *store.GridSession, side string, price float64) store.OrderIntent {
	return store.OrderIntent{
		ID:        uuid.New().String(),
		SessionID: session.ID,
		Symbol:    session.Symbol,
		Side:      side,
		Price:     price,
		Quantity:  t.cfg.OrderQuantity,
		Status:    "PENDING",
		CreatedAt: time.Now(),
	}
}

// Stop 停止当前活跃会话
func (t *GridTrader) Stop() error {
	session, err := t.grid.ActiveSession(t.cfg.Symbol)
	if err != nil || session == nil {
		return err
	}
	return t.grid.StopSession(session.ID)
}

func levelPrices(levels []level.ScoredLevel) []float64 {
	out := make([]float64, len(levels))
	for i, lv := range levels {
		out[i] = lv.Price
	}
	return out
}
