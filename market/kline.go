package market

import (
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// Kline one OHLCV bar. Immutable, ordered by OpenTime within a timeframe.
type Kline struct {
	OpenTime  int64   `json:"open_time"` // ms
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"` // ms
	IsClosed  bool    `json:"is_closed"`
}

// Timeframe labels used across the system, highest layer first.
const (
	TF1w  = "1w"  // strategic
	TF1d  = "1d"  // skeleton
	TF4h  = "4h"  // relay
	TF15m = "15m" // tactical
)

// KlinesByTimeframe maps a timeframe label to its ordered closed candles.
type KlinesByTimeframe map[string][]Kline

// IntervalMs K线步长 (毫秒)
var IntervalMs = map[string]int64{
	TF1w:  7 * 24 * 60 * 60 * 1000,
	TF1d:  24 * 60 * 60 * 1000,
	TF4h:  4 * 60 * 60 * 1000,
	TF15m: 15 * 60 * 1000,
}

// FromFuturesKline converts a binance futures kline to the internal model.
func FromFuturesKline(k *futures.Kline, now time.Time) Kline {
	return Kline{
		OpenTime:  k.OpenTime,
		Open:      parseF(k.Open),
		High:      parseF(k.High),
		Low:       parseF(k.Low),
		Close:     parseF(k.Close),
		Volume:    parseF(k.Volume),
		CloseTime: k.CloseTime,
		IsClosed:  k.CloseTime <= now.UnixMilli(),
	}
}

func parseF(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// ClosedOnly drops the trailing unfinished candle, if any.
func ClosedOnly(klines []Kline) []Kline {
	out := make([]Kline, 0, len(klines))
	for _, k := range klines {
		if k.IsClosed {
			out = append(out, k)
		}
	}
	return out
}

// LastClose returns the close of the newest candle, 0 if empty.
func LastClose(klines []Kline) float64 {
	if len(klines) == 0 {
		return 0
	}
	return klines[len(klines)-1].Close
}

// SyncStatus K线同步状态
//
// 检测某个时间框架的数据是否还在同一时间逻辑轴上，
// 防止基于旧趋势和新结构计算出错误共振。
type SyncStatus struct {
	Timeframe         string `json:"timeframe"`
	LastCloseTime     int64  `json:"last_close_time"`     // ms
	ExpectedCloseTime int64  `json:"expected_close_time"` // ms
	IsStale           bool   `json:"is_stale"`
	LagSeconds        int64  `json:"lag_seconds"`
}

// 各框架允许的最大延迟 (秒)
var maxKlineLag = map[string]int64{
	TF1w:  600,
	TF1d:  300,
	TF4h:  60,
	TF15m: 30,
}

// CheckSync computes the staleness of a candle series at time now.
func CheckSync(timeframe string, klines []Kline, now time.Time) SyncStatus {
	status := SyncStatus{Timeframe: timeframe, IsStale: true}
	step, ok := IntervalMs[timeframe]
	if !ok || len(klines) == 0 {
		return status
	}

	last := klines[len(klines)-1]
	status.LastCloseTime = last.CloseTime

	nowMs := now.UnixMilli()
	// 上一根应当闭合的 K 线的 close_time
	status.ExpectedCloseTime = (nowMs/step)*step - 1

	lagMs := status.ExpectedCloseTime - last.CloseTime
	if lagMs < 0 {
		lagMs = 0
	}
	status.LagSeconds = lagMs / 1000

	maxLag := maxKlineLag[timeframe]
	if maxLag == 0 {
		maxLag = 60
	}
	status.IsStale = status.LagSeconds > maxLag
	return status
}
