package market

import (
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// TestFromFuturesKline 测试币安 K 线转换与闭合判定
func TestFromFuturesKline(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	closed := FromFuturesKline(&futures.Kline{
		OpenTime:  1_699_999_000_000,
		Open:      "100.5",
		High:      "101.0",
		Low:       "99.5",
		Close:     "100.8",
		Volume:    "1234.5",
		CloseTime: 1_699_999_900_000,
	}, now)

	if !closed.IsClosed {
		t.Error("close_time 已过的 K 线应判定闭合")
	}
	if closed.High != 101.0 || closed.Low != 99.5 || closed.Volume != 1234.5 {
		t.Errorf("字段解析错误: %+v", closed)
	}

	open := FromFuturesKline(&futures.Kline{
		OpenTime:  1_699_999_000_000,
		Open:      "100",
		High:      "101",
		Low:       "99",
		Close:     "100",
		Volume:    "10",
		CloseTime: 1_700_000_100_000,
	}, now)
	if open.IsClosed {
		t.Error("close_time 未到的 K 线不应判定闭合")
	}

	bad := FromFuturesKline(&futures.Kline{Open: "not-a-number"}, now)
	if bad.Open != 0 {
		t.Errorf("非法数字应解析为 0, 实际 %.2f", bad.Open)
	}
}

// TestClosedOnly 测试未闭合 K 线过滤
func TestClosedOnly(t *testing.T) {
	klines := []Kline{
		{Close: 100, IsClosed: true},
		{Close: 101, IsClosed: true},
		{Close: 102, IsClosed: false},
	}

	closed := ClosedOnly(klines)
	if len(closed) != 2 {
		t.Fatalf("期望 2 根闭合 K 线, 实际 %d", len(closed))
	}
	if LastClose(closed) != 101 {
		t.Errorf("最后闭合收盘价 = %.2f, 期望 101", LastClose(closed))
	}
	if LastClose(nil) != 0 {
		t.Error("空序列 LastClose 应为 0")
	}
}

// TestCheckSync 测试 K 线新鲜度判定
func TestCheckSync(t *testing.T) {
	step := IntervalMs[TF4h]
	// now 正好落在某根 4h K 线开盘后 1 分钟
	nowMs := int64(1_700_000_000_000)/step*step + 60_000
	now := time.UnixMilli(nowMs)
	expectedClose := (nowMs/step)*step - 1

	tests := []struct {
		name      string
		closeTime int64
		wantStale bool
	}{
		{"刚好同步", expectedClose, false},
		{"延迟30秒_容忍内", expectedClose - 30_000, false},
		{"延迟5分钟_过期", expectedClose - 300_000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			klines := []Kline{{CloseTime: tt.closeTime, IsClosed: true}}
			status := CheckSync(TF4h, klines, now)
			if status.IsStale != tt.wantStale {
				t.Errorf("IsStale = %v (lag %ds), 期望 %v",
					status.IsStale, status.LagSeconds, tt.wantStale)
			}
		})
	}

	if status := CheckSync(TF4h, nil, now); !status.IsStale {
		t.Error("无数据应判定过期")
	}
	if status := CheckSync("2h", []Kline{{CloseTime: nowMs}}, now); !status.IsStale {
		t.Error("未知框架应判定过期")
	}
}
