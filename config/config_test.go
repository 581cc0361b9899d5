package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const minimalYAML = `
strategy:
  symbol: BTCUSDT
trader:
  order_quantity: 0.01
`

// TestLoadMinimal 测试最小配置与默认值补齐
func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}

	if cfg.Strategy.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s, 期望 BTCUSDT", cfg.Strategy.Symbol)
	}
	if cfg.Trader.Symbol != "BTCUSDT" {
		t.Errorf("trader symbol 应继承 strategy symbol, 实际 %q", cfg.Trader.Symbol)
	}
	if cfg.APIPort != 8080 {
		t.Errorf("默认端口 = %d, 期望 8080", cfg.APIPort)
	}
	if cfg.Level == nil || cfg.Level.MainTimeframe != "4h" {
		t.Error("level 默认配置未补齐")
	}
	if cfg.Strategy.MaxLevels != 6 {
		t.Errorf("默认 max_levels = %d, 期望 6", cfg.Strategy.MaxLevels)
	}
}

// TestLoadEnvOverride 测试环境变量覆盖
func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "test-key")
	t.Setenv("API_PORT", "9090")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("加载失败: %v", err)
	}
	if cfg.Binance.APIKey != "test-key" {
		t.Error("BINANCE_API_KEY 未覆盖")
	}
	if cfg.APIPort != 9090 {
		t.Errorf("API_PORT 未覆盖, 实际 %d", cfg.APIPort)
	}
}

// TestLoadValidation 测试非法配置快速失败
func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"缺symbol", "api_port: 8080\n"},
		{"非法端口", "api_port: -1\nstrategy:\n  symbol: BTCUSDT\n"},
		{"telegram缺chat_id", minimalYAML}, // 配合 token 环境变量
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "telegram缺chat_id" {
				t.Setenv("TELEGRAM_BOT_TOKEN", "abc:def")
			}
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("期望校验失败")
			}
		})
	}
}
