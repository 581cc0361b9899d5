package level

import (
	"math"
	"sort"

	"klgrid/market"
)

// ============================================================================
// ATR density / sparsity audit
// ============================================================================

// ATRGapAuditor ATR 间距审计器
//
// 密集段剔除能量较低的一侧，稀疏段按 战术分形 → VPVR 量能带 → 斐波那契
// 的优先级补位。补位水位带固定分，不参与常规评分链。
type ATRGapAuditor struct {
	cfg *Config
}

// AuditSetup 单次审计所需的外部上下文
type AuditSetup struct {
	VPVR         *VPVRData
	TacticalPool []FractalPoint
}

// AuditResult 审计过程记录，用于落库与接口观测
type AuditResult struct {
	ATRValue      float64   `json:"atr_value"`
	DensityPasses int       `json:"density_passes"`
	TrimmedPrices []float64 `json:"trimmed_prices"`
	FilledPrices  []float64 `json:"filled_prices"`
	FilledReasons []string  `json:"filled_reasons"`
}

func NewATRGapAuditor(cfg *Config) *ATRGapAuditor {
	return &ATRGapAuditor{cfg: cfg}
}

// ComputeATR 真实波幅的简单均值，数据不足返回 0
func ComputeATR(klines []market.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 0
	}

	var sum float64
	start := len(klines) - period
	for i := start; i < len(klines); i++ {
		k := klines[i]
		prevClose := klines[i-1].Close
		tr := math.Max(k.High-k.Low,
			math.Max(math.Abs(k.High-prevClose), math.Abs(k.Low-prevClose)))
		sum += tr
	}
	return sum / float64(period)
}

// Audit 对候选列表做密度与稀疏双向审计
//
// 输入输出均保持价格降序。代表价不会被修改，只有整条候选的增删。
func (a *ATRGapAuditor) Audit(candidates []*LevelCandidate, atr float64, role Role, setup AuditSetup) ([]*LevelCandidate, *AuditResult) {
	result := &AuditResult{ATRValue: atr}
	if !a.cfg.Audit.Enabled || atr <= 0 || len(candidates) < 2 {
		return candidates, result
	}

	sortCandidatesByPriceDesc(candidates)
	candidates = a.densityPass(candidates, atr, setup.VPVR, result)
	candidates = a.sparsityPass(candidates, atr, role, setup, result)
	return candidates, result
}

// densityPass 剔除间距不足 ATR×DensityRatio 的相邻对中能量较低者
//
// 删除会改变相邻关系，循环重扫直到无违规。
func (a *ATRGapAuditor) densityPass(candidates []*LevelCandidate, atr float64, vpvr *VPVRData, result *AuditResult) []*LevelCandidate {
	minGap := atr * a.cfg.Audit.DensityRatio

	for {
		removed := false
		for i := 0; i+1 < len(candidates); i++ {
			gap := candidates[i].Price - candidates[i+1].Price
			if gap >= minGap {
				continue
			}

			drop := i + 1
			if a.energy(candidates[i], vpvr) < a.energy(candidates[i+1], vpvr) {
				drop = i
			}
			result.TrimmedPrices = append(result.TrimmedPrices, candidates[drop].Price)
			candidates = append(candidates[:drop], candidates[drop+1:]...)
			removed = true
			break
		}
		if !removed {
			return candidates
		}
		result.DensityPasses++
	}
}

// energy 密度对比用的能量值: 分形强度合计 + 共振加成 + 量能带加成
func (a *ATRGapAuditor) energy(c *LevelCandidate, vpvr *VPVRData) float64 {
	if c.Kind == CandidateFilled {
		return c.FillScore
	}

	var e float64
	for _, fp := range c.Fractals {
		e += a.cfg.timeframeWeight(fp.Timeframe) * fp.Strength
	}
	if c.Resonance {
		e += 20
	}
	if zone := vpvr.ZoneAt(c.Price); zone != nil {
		e += 15 * zone.Strength
	}
	return e
}

// sparsityPass 补齐间距超过 ATR×GapRatio 的相邻空档
//
// 每次补位后重扫，迭代上限防御病态输入。
func (a *ATRGapAuditor) sparsityPass(candidates []*LevelCandidate, atr float64, role Role, setup AuditSetup, result *AuditResult) []*LevelCandidate {
	const maxIterations = 100
	maxGap := atr * a.cfg.Audit.GapRatio

	for iter := 0; iter < maxIterations; iter++ {
		filled := false
		for i := 0; i+1 < len(candidates); i++ {
			upper := candidates[i].Price
			lower := candidates[i+1].Price
			if upper-lower <= maxGap {
				continue
			}

			added := a.fillGap(lower, upper, atr, role, setup, result)
			if len(added) == 0 {
				continue
			}
			candidates = append(candidates, added...)
			sortCandidatesByPriceDesc(candidates)
			filled = true
			break
		}
		if !filled {
			return candidates
		}
	}
	return candidates
}

// fillGap 单个空档的补位: 战术分形优先，其次量能带，最后斐波那契细分
func (a *ATRGapAuditor) fillGap(lower, upper, atr float64, role Role, setup AuditSetup, result *AuditResult) []*LevelCandidate {
	if fp, ok := tacticalInGap(setup.TacticalPool, lower, upper); ok {
		c := newFilledCandidate(fp.Price, a.cfg.Audit.FillScore, FillReasonTactical)
		result.FilledPrices = append(result.FilledPrices, c.Price)
		result.FilledReasons = append(result.FilledReasons, FillReasonTactical)
		return []*LevelCandidate{c}
	}

	if zone := setup.VPVR.ZoneInRange(lower, upper); zone != nil {
		c := newFilledCandidate(zone.Price, a.cfg.Audit.FillScore, FillReasonVPVR)
		result.FilledPrices = append(result.FilledPrices, c.Price)
		result.FilledReasons = append(result.FilledReasons, FillReasonVPVR)
		return []*LevelCandidate{c}
	}

	prices := a.fibonacciFill(lower, upper, atr, role)
	out := make([]*LevelCandidate, 0, len(prices))
	for _, p := range prices {
		out = append(out, newFilledCandidate(p, a.cfg.Audit.FillScore, FillReasonFibonacci))
		result.FilledPrices = append(result.FilledPrices, p)
		result.FilledReasons = append(result.FilledReasons, FillReasonFibonacci)
	}
	return out
}

// tacticalInGap 空档内距中点最近的战术周期分形
func tacticalInGap(pool []FractalPoint, lower, upper float64) (FractalPoint, bool) {
	mid := (lower + upper) / 2
	bestDist := math.Inf(1)
	var best FractalPoint
	found := false

	for _, fp := range pool {
		if fp.Price <= lower || fp.Price >= upper {
			continue
		}
		if dist := math.Abs(fp.Price - mid); dist < bestDist {
			bestDist = dist
			best = fp
			found = true
		}
	}
	return best, found
}

// fibonacciFill 黄金分割细分空档，显式工作队列代替递归
//
// 支撑位从下沿向上取 0.618，阻力位从上沿向下取 0.618，
// 细分出的两段子空档继续入队，深度超过上限即止。
func (a *ATRGapAuditor) fibonacciFill(lower, upper, atr float64, role Role) []float64 {
	type span struct {
		lower, upper float64
		depth        int
	}

	maxGap := atr * a.cfg.Audit.GapRatio
	ratio := a.cfg.Audit.FillRatio
	var prices []float64

	work := []span{{lower: lower, upper: upper}}
	for len(work) > 0 {
		s := work[len(work)-1]
		work = work[:len(work)-1]

		gap := s.upper - s.lower
		if gap <= maxGap || s.depth >= a.cfg.Audit.MaxFillDepth {
			continue
		}

		var fill float64
		if role == RoleSupport {
			fill = s.lower + gap*ratio
		} else {
			fill = s.upper - gap*ratio
		}
		if fill <= s.lower || fill >= s.upper {
			continue
		}
		prices = append(prices, fill)

		work = append(work,
			span{lower: s.lower, upper: fill, depth: s.depth + 1},
			span{lower: fill, upper: s.upper, depth: s.depth + 1},
		)
	}

	sort.Float64s(prices)
	return prices
}

// FillBetween 在指定区间内生成补位水位，近现价检查复用
func (a *ATRGapAuditor) FillBetween(lower, upper, atr float64, role Role, reason string) []*LevelCandidate {
	prices := a.fibonacciFill(lower, upper, atr, role)
	out := make([]*LevelCandidate, 0, len(prices))
	for _, p := range prices {
		out = append(out, newFilledCandidate(p, a.cfg.Audit.FillScore, reason))
	}
	return out
}
