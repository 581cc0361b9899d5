// Package config 配置加载
//
// 策略参数走 yaml 文件, 密钥走环境变量 (.env 支持),
// 所有校验在启动时快速失败。
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"klgrid/level"
	"klgrid/logger"
	"klgrid/strategy"
	"klgrid/trader"
)

// Config 应用配置
type Config struct {
	LogLevel string `yaml:"log_level"`
	DBPath   string `yaml:"db_path"`
	APIPort  int    `yaml:"api_port"`

	Binance  BinanceConfig   `yaml:"binance"`
	Telegram TelegramConfig  `yaml:"telegram"`
	Level    *level.Config   `yaml:"level"`
	Strategy strategy.Config `yaml:"strategy"`
	Trader   trader.Config   `yaml:"trader"`
}

// BinanceConfig 交易所凭证 (只读行情可留空)
type BinanceConfig struct {
	APIKey    string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// TelegramConfig telegram 推送配置
type TelegramConfig struct {
	Token  string `yaml:"-"`
	ChatID int64  `yaml:"chat_id"`
}

// Load 加载配置: .env → yaml → 环境变量覆盖 → 默认值补齐
func Load(path string) (*Config, error) {
	// .env 不存在不算错误
	if err := godotenv.Load(); err == nil {
		logger.Info("config: .env loaded")
	}

	cfg := &Config{
		LogLevel: "info",
		DBPath:   "data/klgrid.db",
		APIPort:  8080,
		Level:    level.DefaultConfig(),
		Strategy: strategy.DefaultConfig(),
		Trader:   trader.DefaultConfig(),
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	// symbol 只配一处, trader/strategy 共用
	if cfg.Trader.Symbol == "" {
		cfg.Trader.Symbol = cfg.Strategy.Symbol
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 环境变量覆盖敏感字段
func (c *Config) applyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.APIKey = v
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Binance.SecretKey = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.APIPort = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("config: invalid api_port %d", c.APIPort)
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: db_path is empty")
	}
	if err := c.Level.Validate(); err != nil {
		return err
	}
	if err := c.Strategy.Validate(); err != nil {
		return err
	}
	if err := c.Trader.Validate(); err != nil {
		return err
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("config: telegram token set but chat_id missing")
	}
	return nil
}
