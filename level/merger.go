package level

import (
	"math"
	"sort"
)

// ============================================================================
// Multi-timeframe merging
// ============================================================================

// MTFMerger 多周期分形合并器
//
// 把各周期的分形点聚成价格簇，簇代表价取最强成员的价格，
// 候选创建之后代表价不再变动。
type MTFMerger struct {
	cfg *Config
}

func NewMTFMerger(cfg *Config) *MTFMerger {
	return &MTFMerger{cfg: cfg}
}

// Merge 跨周期合并分形点，返回按价格降序的候选列表
//
// 贪心首次适配: 展平后先按价格降序排序 (结果与输入顺序无关)，
// 逐个尝试并入已有簇，容差内最先匹配的簇胜出。
func (m *MTFMerger) Merge(fractalsByTF map[string][]FractalPoint) []*LevelCandidate {
	var flat []FractalPoint
	for _, tf := range m.cfg.Timeframes {
		flat = append(flat, fractalsByTF[tf]...)
	}
	if len(flat) == 0 {
		return nil
	}

	sort.Slice(flat, func(i, j int) bool {
		if flat[i].Price != flat[j].Price {
			return flat[i].Price > flat[j].Price
		}
		return flat[i].Strength > flat[j].Strength
	})

	// 聚簇阶段只累积成员，代表价等全员确定后一次性生成
	var clusters [][]FractalPoint
	for _, fp := range flat {
		placed := false
		for ci := range clusters {
			if m.withinTolerance(clusterAnchor(clusters[ci]), fp.Price) {
				clusters[ci] = append(clusters[ci], fp)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []FractalPoint{fp})
		}
	}

	candidates := make([]*LevelCandidate, 0, len(clusters))
	for _, members := range clusters {
		candidates = append(candidates, newClusterCandidate(members))
	}
	sortCandidatesByPriceDesc(candidates)
	return candidates
}

// withinTolerance 相对容差判定，分母取两价较大者
func (m *MTFMerger) withinTolerance(p1, p2 float64) bool {
	base := math.Max(p1, p2)
	if base <= 0 {
		return false
	}
	return math.Abs(p1-p2)/base <= m.cfg.MergeTolerance
}

// clusterAnchor 簇的锚定价: 创始成员 (价格降序里首个并入者) 的价格
func clusterAnchor(members []FractalPoint) float64 {
	return members[0].Price
}

// newClusterCandidate 由簇成员生成候选，代表价取最强成员
func newClusterCandidate(members []FractalPoint) *LevelCandidate {
	strongest := members[0]
	for _, fp := range members[1:] {
		if fp.Strength > strongest.Strength {
			strongest = fp
		}
	}

	tfSet := make(map[string]bool)
	for _, fp := range members {
		tfSet[fp.Timeframe] = true
	}
	timeframes := make([]string, 0, len(tfSet))
	for tf := range tfSet {
		timeframes = append(timeframes, tf)
	}
	sort.Strings(timeframes)

	return &LevelCandidate{
		Price:      strongest.Price,
		Fractals:   members,
		Timeframes: timeframes,
		Resonance:  len(timeframes) > 1,
		Kind:       CandidateRegular,
	}
}

// FilterByType 按角色保留对应类型的候选
//
// 支撑取低点分形簇，阻力取高点分形簇。簇内混合类型时以最强成员为准。
func FilterByType(candidates []*LevelCandidate, role Role) []*LevelCandidate {
	want := FractalLow
	if role == RoleResistance {
		want = FractalHigh
	}

	out := candidates[:0:0]
	for _, c := range candidates {
		if c.Kind == CandidateFilled {
			out = append(out, c)
			continue
		}
		if sf := c.strongestFractal(); sf != nil && sf.Type == want {
			out = append(out, c)
		}
	}
	return out
}

// FilterByDirection 支撑必须低于现价，阻力必须高于现价
func FilterByDirection(candidates []*LevelCandidate, role Role, currentPrice float64) []*LevelCandidate {
	out := candidates[:0:0]
	for _, c := range candidates {
		if role == RoleSupport && c.Price < currentPrice {
			out = append(out, c)
		} else if role == RoleResistance && c.Price > currentPrice {
			out = append(out, c)
		}
	}
	return out
}

// FilterByDistance 剔除距现价过近或过远的候选
func (m *MTFMerger) FilterByDistance(candidates []*LevelCandidate, currentPrice float64) []*LevelCandidate {
	if currentPrice <= 0 {
		return candidates
	}
	out := candidates[:0:0]
	for _, c := range candidates {
		dist := math.Abs(c.Price-currentPrice) / currentPrice
		if dist >= m.cfg.MinDistancePct && dist <= m.cfg.MaxDistancePct {
			out = append(out, c)
		}
	}
	return out
}
