package level

import (
	"math"

	"klgrid/market"
)

// makeKlines 按 (high, low) 序列构造已收盘 K 线，成交量恒为 100
func makeKlines(highs, lows []float64) []market.Kline {
	klines := make([]market.Kline, len(highs))
	for i := range highs {
		mid := (highs[i] + lows[i]) / 2
		klines[i] = market.Kline{
			OpenTime:  int64(i) * 14400000,
			Open:      mid,
			High:      highs[i],
			Low:       lows[i],
			Close:     mid,
			Volume:    100,
			CloseTime: int64(i+1)*14400000 - 1,
			IsClosed:  true,
		}
	}
	return klines
}

// makeWaveKlines 围绕 center 的正弦摆动序列，振幅 amp
func makeWaveKlines(n int, center, amp float64) []market.Kline {
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i := 0; i < n; i++ {
		p := center + amp*math.Sin(float64(i)/5)
		highs[i] = p + 1
		lows[i] = p - 1
	}
	return makeKlines(highs, lows)
}

// makeFlatKlines n 根恒定价格区间的 K 线
func makeFlatKlines(n int, high, low, volume float64) []market.Kline {
	klines := make([]market.Kline, n)
	for i := 0; i < n; i++ {
		klines[i] = market.Kline{
			OpenTime:  int64(i) * 14400000,
			Open:      (high + low) / 2,
			High:      high,
			Low:       low,
			Close:     (high + low) / 2,
			Volume:    volume,
			CloseTime: int64(i+1)*14400000 - 1,
			IsClosed:  true,
		}
	}
	return klines
}

// makePeakKlines 缓升序列加单根尖峰，区间宽度恒定便于精确控制 ATR
func makePeakKlines(n, peakIdx int, base, step, peakHigh, barRange float64) []market.Kline {
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i := 0; i < n; i++ {
		highs[i] = base + float64(i)*step
		if i == peakIdx {
			highs[i] = peakHigh
		}
		lows[i] = highs[i] - barRange
	}
	return makeKlines(highs, lows)
}

// testFractal 构造测试分形点
func testFractal(price float64, ftype FractalType, tf string, lookback int, strength float64) FractalPoint {
	return FractalPoint{
		Price:     price,
		Type:      ftype,
		Timeframe: tf,
		Lookback:  lookback,
		Strength:  strength,
	}
}
