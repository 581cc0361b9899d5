package level

import (
	"sort"

	"klgrid/market"
)

// ============================================================================
// Scoring
// ============================================================================

// LevelScorer 水位评分器
//
// 最终分 = 基础分 × 成交量权重 × 心理位权重 × 趋势系数 × 多周期共振系数，
// 截断到 [0, 100]。填补水位直接取固定分，不走乘法链。
type LevelScorer struct {
	cfg     *Config
	matcher *PsychologyMatcher
}

func NewLevelScorer(cfg *Config) *LevelScorer {
	return &LevelScorer{cfg: cfg, matcher: NewPsychologyMatcher(cfg)}
}

// Score 计算单个候选水位的综合评分
func (s *LevelScorer) Score(c *LevelCandidate, vpvr *VPVRData, anchors []PsychologyAnchor, trend TrendState, role Role) LevelScore {
	score := LevelScore{
		VolumeWeight:     1.0,
		PsychologyWeight: 1.0,
		TrendCoefficient: 1.0,
		TrendState:       trend,
		MTFCoefficient:   1.0,
		Timeframes:       append([]string(nil), c.Timeframes...),
	}

	// 填补水位: 固定分直出
	if c.Kind == CandidateFilled {
		score.BaseScore = c.FillScore
		score.FinalScore = clampScore(c.FillScore)
		return score
	}

	score.BaseScore = s.baseScore(c)
	score.Resonance = c.Resonance
	score.Lookbacks = candidateLookbacks(c)

	if vpvr.ZoneAt(c.Price) != nil {
		score.VolumeWeight = s.cfg.VolumeWeight
	}

	if anchor, ok := s.matcher.Snap(c.Price, anchors); ok {
		score.PsychologyWeight = s.cfg.PsychologyWeight
		score.PsychologyAnchor = anchor.Price
	}

	score.TrendCoefficient = s.trendCoefficient(trend, role)

	if c.Resonance {
		score.MTFCoefficient = resonanceCoefficient(c.Timeframes)
	}

	score.FinalScore = clampScore(score.BaseScore *
		score.VolumeWeight *
		score.PsychologyWeight *
		score.TrendCoefficient *
		score.MTFCoefficient)
	return score
}

// baseScore 基础分: 各周期取最强分形的 周期权重×强度，共振时求和否则取最大
func (s *LevelScorer) baseScore(c *LevelCandidate) float64 {
	bestByTF := make(map[string]float64)
	for _, fp := range c.Fractals {
		v := s.cfg.timeframeWeight(fp.Timeframe) * fp.Strength
		if v > bestByTF[fp.Timeframe] {
			bestByTF[fp.Timeframe] = v
		}
	}

	if c.Resonance {
		var sum float64
		for _, v := range bestByTF {
			sum += v
		}
		return sum
	}

	var best float64
	for _, v := range bestByTF {
		if v > best {
			best = v
		}
	}
	return best
}

// trendCoefficient 顺势水位加成，逆势水位折价
//
// 上升趋势中支撑更可靠，下降趋势中阻力更可靠，震荡不调整。
func (s *LevelScorer) trendCoefficient(trend TrendState, role Role) float64 {
	boost := s.cfg.TrendBoost
	switch trend {
	case TrendUp:
		if role == RoleSupport {
			return 1 + boost
		}
		return 1 - boost
	case TrendDown:
		if role == RoleResistance {
			return 1 + boost
		}
		return 1 - boost
	default:
		return 1.0
	}
}

// DetermineTrend 用 EMA 快慢线判定主周期趋势
//
// 快线偏离慢线不足 1% 视为震荡。
func DetermineTrend(klines []market.Kline) TrendState {
	const (
		fastPeriod = 20
		slowPeriod = 50
		band       = 0.01
	)
	if len(klines) < slowPeriod {
		return TrendRanging
	}

	fast := ema(klines, fastPeriod)
	slow := ema(klines, slowPeriod)
	if slow <= 0 {
		return TrendRanging
	}

	diff := (fast - slow) / slow
	switch {
	case diff > band:
		return TrendUp
	case diff < -band:
		return TrendDown
	default:
		return TrendRanging
	}
}

// ema 整段收盘价的指数均线终值
func ema(klines []market.Kline, period int) float64 {
	alpha := 2.0 / float64(period+1)
	v := klines[0].Close
	for _, k := range klines[1:] {
		v = alpha*k.Close + (1-alpha)*v
	}
	return v
}

// candidateLookbacks 去重后的贡献回看周期，升序
func candidateLookbacks(c *LevelCandidate) []int {
	seen := make(map[int]bool)
	var out []int
	for _, fp := range c.Fractals {
		if !seen[fp.Lookback] {
			seen[fp.Lookback] = true
			out = append(out, fp.Lookback)
		}
	}
	sort.Ints(out)
	return out
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
