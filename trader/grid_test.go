package trader

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"klgrid/level"
	"klgrid/store"
)

func newTestTrader(t *testing.T) *GridTrader {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := DefaultConfig()
	cfg.Symbol = "BTCUSDT"
	tr, err := NewGridTrader(cfg, st.Grid())
	require.NoError(t, err)
	return tr
}

func scored(prices ...float64) []level.ScoredLevel {
	out := make([]level.ScoredLevel, len(prices))
	for i, p := range prices {
		out[i] = level.ScoredLevel{Price: p, Score: level.LevelScore{FinalScore: 50}}
	}
	return out
}

// TestConfigValidate 测试网格配置校验
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"默认配置补symbol合法", func(c *Config) { c.Symbol = "BTCUSDT" }, false},
		{"缺symbol", func(c *Config) {}, true},
		{"下单数量为0", func(c *Config) { c.Symbol = "X"; c.OrderQuantity = 0 }, true},
		{"漂移阈值为负", func(c *Config) { c.Symbol = "X"; c.RebuildDriftPct = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestDeployAndIntents 测试建网与挂单意图方向
func TestDeployAndIntents(t *testing.T) {
	tr := newTestTrader(t)

	supports := scored(89000, 87000)
	resistances := scored(95000, 93000)

	session, err := tr.Deploy(supports, resistances, 91000, 91000)
	require.NoError(t, err)
	require.Equal(t, 87000.0, session.LowerPrice)
	require.Equal(t, 95000.0, session.UpperPrice)

	intents, err := tr.grid.IntentsBySession(session.ID)
	require.NoError(t, err)
	require.Len(t, intents, 4)

	for _, it := range intents {
		if it.Side == "BUY" {
			require.Less(t, it.Price, 91000.0, "买单必须低于现价")
		} else {
			require.Greater(t, it.Price, 91000.0, "卖单必须高于现价")
		}
		require.Equal(t, "PENDING", it.Status)
		require.NotEmpty(t, it.ID)
	}
}

// TestDeployEmptyLevels 测试无水位时拒绝建网
func TestDeployEmptyLevels(t *testing.T) {
	tr := newTestTrader(t)
	_, err := tr.Deploy(nil, nil, 91000, 91000)
	require.Error(t, err)
}

// TestShouldRebuild 测试锚点漂移与冷却期判定
func TestShouldRebuild(t *testing.T) {
	tr := newTestTrader(t)
	now := time.Now()

	// 无会话: 直接重建
	rebuild, reason := tr.ShouldRebuild(91000, now)
	require.True(t, rebuild, reason)

	_, err := tr.Deploy(scored(89000), scored(93000), 91000, 91000)
	require.NoError(t, err)

	// 漂移 1% < 3% 阈值
	rebuild, _ = tr.ShouldRebuild(91910, now)
	require.False(t, rebuild)

	// 漂移 5% 但冷却期内 (会话刚创建)
	rebuild, _ = tr.ShouldRebuild(95550, now)
	require.False(t, rebuild)

	// 漂移 5% 且冷却已过
	rebuild, reason = tr.ShouldRebuild(95550, now.Add(2*time.Hour))
	require.True(t, rebuild, reason)
}
