package level

import (
	"math"
	"sort"

	"klgrid/market"
)

// ============================================================================
// Fractal extraction
// ============================================================================

// FractalExtractor MTF 分形点提取器
//
// 对每个时间框架、每个回溯周期做对称窗口极值检测:
// 某根 K 线的 high ≥ 窗口 [i-lookback, i+lookback] 内所有其他 high
// 即为 HIGH 分形，LOW 为镜像条件。
type FractalExtractor struct {
	cfg *Config
}

func NewFractalExtractor(cfg *Config) *FractalExtractor {
	return &FractalExtractor{cfg: cfg}
}

// Extract 从多时间框架数据提取分形点
func (e *FractalExtractor) Extract(klinesByTF market.KlinesByTimeframe) map[string][]FractalPoint {
	result := make(map[string][]FractalPoint, len(klinesByTF))
	for tf, klines := range klinesByTF {
		result[tf] = e.ExtractTimeframe(klines, tf)
	}
	return result
}

// ExtractTimeframe 提取单框架分形点，按价格降序
func (e *FractalExtractor) ExtractTimeframe(klines []market.Kline, timeframe string) []FractalPoint {
	if len(klines) < 3 {
		return nil
	}

	var all []FractalPoint
	for _, lookback := range e.cfg.SwingLookbacks {
		// 数据不足以覆盖对称窗口的周期不产出
		if len(klines) < lookback*2+1 {
			continue
		}
		all = append(all, e.findSwings(klines, timeframe, lookback)...)
	}

	unique := e.deduplicate(all)
	sort.Slice(unique, func(i, j int) bool {
		return unique[i].Price > unique[j].Price
	})
	return unique
}

// findSwings 单周期扫描高低点
func (e *FractalExtractor) findSwings(klines []market.Kline, timeframe string, lookback int) []FractalPoint {
	var points []FractalPoint
	n := len(klines)

	for i := lookback; i < n-lookback; i++ {
		high := klines[i].High
		low := klines[i].Low
		isHigh := true
		isLow := true

		for j := i - lookback; j <= i+lookback; j++ {
			if j == i {
				continue
			}
			if klines[j].High > high {
				isHigh = false
			}
			if klines[j].Low < low {
				isLow = false
			}
			if !isHigh && !isLow {
				break
			}
		}

		age := n - 1 - i
		if isHigh {
			points = append(points, FractalPoint{
				Price:     high,
				Timestamp: klines[i].OpenTime,
				Type:      FractalHigh,
				Timeframe: timeframe,
				Lookback:  lookback,
				Age:       age,
				Strength:  e.strength(lookback, age),
			})
		}
		if isLow {
			points = append(points, FractalPoint{
				Price:     low,
				Timestamp: klines[i].OpenTime,
				Type:      FractalLow,
				Timeframe: timeframe,
				Lookback:  lookback,
				Age:       age,
				Strength:  e.strength(lookback, age),
			})
		}
	}

	return points
}

// strength 基础强度随年龄衰减: base × max(floor, 1 − age/decay)
func (e *FractalExtractor) strength(lookback, age int) float64 {
	base := e.cfg.periodScore(lookback)
	decay := 1.0 - float64(age)/float64(e.cfg.StrengthDecayBars)
	return base * math.Max(e.cfg.StrengthFloor, decay)
}

// deduplicate 去重: 价格相差 <0.1% 的同类型分形只保留最大周期的一个
func (e *FractalExtractor) deduplicate(points []FractalPoint) []FractalPoint {
	const tolerance = 0.001

	var unique []FractalPoint
	for _, p := range points {
		merged := false
		for i := range unique {
			u := &unique[i]
			if u.Type != p.Type || u.Price <= 0 {
				continue
			}
			if math.Abs(u.Price-p.Price)/u.Price < tolerance {
				if p.Lookback > u.Lookback {
					*u = p
				}
				merged = true
				break
			}
		}
		if !merged {
			unique = append(unique, p)
		}
	}
	return unique
}

// TotalCount 统计各框架分形点总数
func TotalCount(fractalsByTF map[string][]FractalPoint) int {
	total := 0
	for _, fs := range fractalsByTF {
		total += len(fs)
	}
	return total
}

// AnchorPrice 锚点价格: 最近 lookback 根 K 线的 (最高高点 + 最低低点) / 2
// 数据为空时返回 0
func AnchorPrice(klines []market.Kline, lookback int) float64 {
	if len(klines) == 0 {
		return 0
	}
	recent := klines
	if len(klines) > lookback {
		recent = klines[len(klines)-lookback:]
	}

	high := recent[0].High
	low := recent[0].Low
	for _, k := range recent[1:] {
		if k.High > high {
			high = k.High
		}
		if k.Low < low {
			low = k.Low
		}
	}
	return (high + low) / 2
}
