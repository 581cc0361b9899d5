package market

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"klgrid/logger"
)

// 各框架默认拉取根数, 覆盖最大回溯周期 89 的对称窗口
var defaultFetchLimit = map[string]int{
	TF1w:  200,
	TF1d:  400,
	TF4h:  500,
	TF15m: 500,
}

// Feed binance 合约 K 线数据源
//
// 按 (symbol, timeframe) 缓存最近一次拉取结果, Snapshot 返回的切片
// 是副本, 调用方可以随意持有。
type Feed struct {
	client *futures.Client

	mu    sync.RWMutex
	cache map[string][]Kline // key: symbol + "|" + timeframe
}

// NewFeed creates a kline feed on a binance futures client
func NewFeed(client *futures.Client) *Feed {
	return &Feed{
		client: client,
		cache:  make(map[string][]Kline),
	}
}

// Klines 拉取单框架 K 线并更新缓存
func (f *Feed) Klines(ctx context.Context, symbol, timeframe string, limit int) ([]Kline, error) {
	if limit <= 0 {
		limit = defaultFetchLimit[timeframe]
		if limit <= 0 {
			limit = 500
		}
	}

	raw, err := f.client.NewKlinesService().
		Symbol(symbol).
		Interval(timeframe).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch klines %s %s: %w", symbol, timeframe, err)
	}

	now := time.Now()
	klines := make([]Kline, 0, len(raw))
	for _, k := range raw {
		klines = append(klines, FromFuturesKline(k, now))
	}

	f.mu.Lock()
	f.cache[cacheKey(symbol, timeframe)] = klines
	f.mu.Unlock()
	return klines, nil
}

// Snapshot 拉取全部框架的 K 线
//
// 任一框架失败即整体失败: 残缺的多框架数据会让共振判定失真。
func (f *Feed) Snapshot(ctx context.Context, symbol string, timeframes []string) (KlinesByTimeframe, error) {
	result := make(KlinesByTimeframe, len(timeframes))
	for _, tf := range timeframes {
		klines, err := f.Klines(ctx, symbol, tf, 0)
		if err != nil {
			return nil, err
		}
		result[tf] = klines
	}
	return result, nil
}

// Cached 返回缓存副本, 无缓存返回 nil
func (f *Feed) Cached(symbol, timeframe string) []Kline {
	f.mu.RLock()
	defer f.mu.RUnlock()
	klines, ok := f.cache[cacheKey(symbol, timeframe)]
	if !ok {
		return nil
	}
	out := make([]Kline, len(klines))
	copy(out, klines)
	return out
}

// LastPrice 拉取最新标记价格
func (f *Feed) LastPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch price %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("no price returned for %s", symbol)
	}
	v, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", prices[0].Price, err)
	}
	return v, nil
}

// CheckStaleness 检测缓存各框架的数据新鲜度, 过期框架打告警日志
func (f *Feed) CheckStaleness(symbol string, timeframes []string, now time.Time) []SyncStatus {
	statuses := make([]SyncStatus, 0, len(timeframes))
	for _, tf := range timeframes {
		status := CheckSync(tf, f.Cached(symbol, tf), now)
		if status.IsStale {
			logger.Warnf("market: %s %s klines stale (lag %ds)", symbol, tf, status.LagSeconds)
		}
		statuses = append(statuses, status)
	}
	return statuses
}

func cacheKey(symbol, timeframe string) string {
	return symbol + "|" + timeframe
}
