// Package notify 事件通知
package notify

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"klgrid/level"
	"klgrid/logger"
)

// Notifier 通知接口
type Notifier interface {
	NotifyRebuild(symbol string, anchorPrice float64, supports, resistances []level.ScoredLevel)
	NotifyAudit(symbol string, role level.Role, result *level.AuditResult)
	NotifyStale(symbol, timeframe string, lagSeconds int64)
}

// NoopNotifier 空实现, 未配置 telegram 时使用
type NoopNotifier struct{}

func (NoopNotifier) NotifyRebuild(string, float64, []level.ScoredLevel, []level.ScoredLevel) {}
func (NoopNotifier) NotifyAudit(string, level.Role, *level.AuditResult)                     {}
func (NoopNotifier) NotifyStale(string, string, int64)                                      {}

// TelegramNotifier telegram 推送
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier 创建 telegram 通知器
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create telegram bot: %w", err)
	}
	logger.Infof("notify: telegram bot authorized as @%s", bot.Self.UserName)
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

// NotifyRebuild 网格重建通知
func (n *TelegramNotifier) NotifyRebuild(symbol string, anchorPrice float64, supports, resistances []level.ScoredLevel) {
	var b strings.Builder
	fmt.Fprintf(&b, "🔄 网格重建 %s\n锚点: %.4f\n", symbol, anchorPrice)

	b.WriteString("\n阻力位:\n")
	for _, lv := range resistances {
		fmt.Fprintf(&b, "  %.4f (%.0f分)\n", lv.Price, lv.Score.FinalScore)
	}
	b.WriteString("支撑位:\n")
	for _, lv := range supports {
		fmt.Fprintf(&b, "  %.4f (%.0f分)\n", lv.Price, lv.Score.FinalScore)
	}
	n.send(b.String())
}

// NotifyAudit 审计结果通知, 只在有增删时推送
func (n *TelegramNotifier) NotifyAudit(symbol string, role level.Role, result *level.AuditResult) {
	if result == nil || (len(result.TrimmedPrices) == 0 && len(result.FilledPrices) == 0) {
		return
	}
	n.send(fmt.Sprintf("🧮 ATR 审计 %s/%s\nATR: %.4f\n剔除: %d\n补位: %d",
		symbol, role, result.ATRValue, len(result.TrimmedPrices), len(result.FilledPrices)))
}

// NotifyStale 数据延迟告警
func (n *TelegramNotifier) NotifyStale(symbol, timeframe string, lagSeconds int64) {
	n.send(fmt.Sprintf("⚠️ K线延迟 %s %s: %ds", symbol, timeframe, lagSeconds))
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.chatID, text)
	if _, err := n.bot.Send(msg); err != nil {
		logger.Errorf("notify: telegram send failed: %v", err)
	}
}
