package level

import (
	"math"
	"sort"

	"klgrid/market"
)

// ============================================================================
// Psychological (round number) anchors
// ============================================================================

// PsychologyMatcher 心理关口匹配器
//
// 生成量级自适应的整数位阶梯 (高价标的步长粗，低价标的步长细)。
// 匹配结果只用于评分加成，绝不修改候选水位的存储价格。
type PsychologyMatcher struct {
	cfg *Config
}

func NewPsychologyMatcher(cfg *Config) *PsychologyMatcher {
	return &PsychologyMatcher{cfg: cfg}
}

// stepsFor 按价格量级确定整数位步长 (细 → 粗)
func stepsFor(price float64) []float64 {
	switch {
	case price >= 10000:
		return []float64{500, 1000, 5000, 10000}
	case price >= 1000:
		return []float64{100, 500, 1000}
	case price >= 100:
		return []float64{10, 50, 100}
	case price >= 10:
		return []float64{1, 5, 10}
	case price >= 1:
		return []float64{0.1, 0.5, 1}
	case price >= 0.1:
		return []float64{0.01, 0.05, 0.1}
	default:
		return []float64{0.001, 0.005, 0.01}
	}
}

// AllLevels 生成覆盖 K 线价格区间的整数位，按价格降序
func (m *PsychologyMatcher) AllLevels(klines []market.Kline) []PsychologyAnchor {
	if len(klines) == 0 {
		return nil
	}

	priceMin := klines[0].Low
	priceMax := klines[0].High
	for _, k := range klines[1:] {
		if k.High > priceMax {
			priceMax = k.High
		}
		if k.Low < priceMin {
			priceMin = k.Low
		}
	}
	if priceMax <= 0 || priceMax <= priceMin {
		return nil
	}

	seen := make(map[float64]bool)
	var anchors []PsychologyAnchor

	for _, step := range stepsFor(priceMax) {
		start := math.Floor(priceMin/step) * step
		for p := start; p <= priceMax+step/2; p += step {
			if p < priceMin || p > priceMax {
				continue
			}
			key := roundKey(p)
			if seen[key] {
				continue
			}
			seen[key] = true
			anchors = append(anchors, PsychologyAnchor{Price: p, Step: step})
		}
	}

	sort.Slice(anchors, func(i, j int) bool {
		return anchors[i].Price > anchors[j].Price
	})
	return anchors
}

// LadderAbove 从 floor 之上生成 count 个整数位，按价格升序
//
// 兜底阻力生成用: 阶梯从略高于现价处开始向上铺。
func (m *PsychologyMatcher) LadderAbove(floor float64, count int) []PsychologyAnchor {
	if floor <= 0 || count <= 0 {
		return nil
	}

	seen := make(map[float64]bool)
	var anchors []PsychologyAnchor

	for _, step := range stepsFor(floor) {
		base := math.Floor(floor/step) * step
		for i := 1; i <= count; i++ {
			p := base + step*float64(i)
			if p <= floor {
				continue
			}
			key := roundKey(p)
			if seen[key] {
				continue
			}
			seen[key] = true
			anchors = append(anchors, PsychologyAnchor{Price: p, Step: step})
		}
	}

	sort.Slice(anchors, func(i, j int) bool {
		return anchors[i].Price < anchors[j].Price
	})
	if len(anchors) > count {
		anchors = anchors[:count]
	}
	return anchors
}

// Snap 寻找距 price 最近且在容差内的心理位
//
// 只返回匹配结果，price 本身原样保留，吸附仅体现在评分加成上。
func (m *PsychologyMatcher) Snap(price float64, anchors []PsychologyAnchor) (PsychologyAnchor, bool) {
	if price <= 0 || len(anchors) == 0 {
		return PsychologyAnchor{}, false
	}

	bestDist := math.Inf(1)
	var best PsychologyAnchor
	found := false

	for _, a := range anchors {
		if a.Price <= 0 {
			continue
		}
		dist := math.Abs(price-a.Price) / price
		if dist < m.cfg.SnapTolerance && dist < bestDist {
			bestDist = dist
			best = a
			found = true
		}
	}
	return best, found
}

// roundKey 价格去重键 (1e-9 精度)
func roundKey(p float64) float64 {
	return math.Round(p*1e9) / 1e9
}
