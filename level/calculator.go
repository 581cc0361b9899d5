package level

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"klgrid/logger"
	"klgrid/market"
)

// ============================================================================
// Calculator: full generation pipeline
// ============================================================================

// Calculator 关键位计算器，串联完整生成流水线
//
// 提取 → 融合 → 类型/方向/距离过滤 → ATR 审计 → 近现价检查 → 评分 →
// 阈值筛选 → 边界裁剪 → top-N。所有阶段共享同一份配置。
type Calculator struct {
	cfg       *Config
	extractor *FractalExtractor
	analyzer  *VPVRAnalyzer
	matcher   *PsychologyMatcher
	merger    *MTFMerger
	scorer    *LevelScorer
	auditor   *ATRGapAuditor

	mu        sync.Mutex
	lastAudit map[Role]*AuditResult
}

// NewCalculator 创建计算器，配置非法立即报错
func NewCalculator(cfg *Config) (*Calculator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{
		cfg:       cfg,
		extractor: NewFractalExtractor(cfg),
		analyzer:  NewVPVRAnalyzer(cfg),
		matcher:   NewPsychologyMatcher(cfg),
		merger:    NewMTFMerger(cfg),
		scorer:    NewLevelScorer(cfg),
		auditor:   NewATRGapAuditor(cfg),
		lastAudit: make(map[Role]*AuditResult),
	}, nil
}

// Generate 生成指定方向的关键位列表
//
// 输出不超过 maxLevels 条，按价格降序。支撑全部低于现价，阻力全部高于现价。
func (c *Calculator) Generate(klinesByTF market.KlinesByTimeframe, currentPrice float64, role Role, maxLevels int) ([]ScoredLevel, error) {
	if currentPrice <= 0 {
		return nil, fmt.Errorf("level: invalid current price %.8f", currentPrice)
	}
	if maxLevels <= 0 {
		return nil, fmt.Errorf("level: invalid max levels %d", maxLevels)
	}

	mainKlines := market.ClosedOnly(klinesByTF[c.cfg.MainTimeframe])
	fractalsByTF := c.extractor.Extract(klinesByTF)

	atr := c.computeATR(klinesByTF)
	vpvr := c.analyzer.Analyze(mainKlines, currentPrice)
	anchors := c.matcher.AllLevels(mainKlines)
	trend := DetermineTrend(mainKlines)

	candidates := c.merger.Merge(fractalsByTF)
	candidates = FilterByType(candidates, role)
	candidates = FilterByDirection(candidates, role, currentPrice)
	candidates = c.merger.FilterByDistance(candidates, currentPrice)

	// 无可用分形: 阻力侧给兜底阶梯，支撑侧宁缺毋滥
	if len(candidates) == 0 {
		logger.Warnf("level: no %s candidates after filtering (%d fractals extracted)",
			role, TotalCount(fractalsByTF))
		if role == RoleResistance {
			levels := c.fallbackResistance(mainKlines, currentPrice, atr, trend, maxLevels)
			logger.Infof("level: no resistance fractals, fallback ladder generated %d levels", len(levels))
			return levels, nil
		}
		return nil, nil
	}

	// ATR 审计会增删候选，方向约束需要重新收紧
	setup := AuditSetup{
		VPVR:         vpvr,
		TacticalPool: fractalsByTF[c.cfg.TacticalTimeframe],
	}
	candidates, auditResult := c.auditor.Audit(candidates, atr, role, setup)
	candidates = FilterByDirection(candidates, role, currentPrice)

	candidates = c.nearPricePass(candidates, currentPrice, atr, role)
	candidates = FilterByDirection(candidates, role, currentPrice)

	c.mu.Lock()
	c.lastAudit[role] = auditResult
	c.mu.Unlock()

	// 评分与阈值: 补位水位带固定分，跳过常规阈值
	levels := make([]ScoredLevel, 0, len(candidates))
	for _, cand := range candidates {
		score := c.scorer.Score(cand, vpvr, anchors, trend, role)
		if cand.Kind == CandidateRegular && score.FinalScore < c.cfg.MinScoreThreshold {
			continue
		}
		levels = append(levels, ScoredLevel{Price: cand.Price, Score: score})
	}

	levels = c.applyBoundary(levels, role, currentPrice)

	// top-N 按评分裁剪，输出按价格降序
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Score.FinalScore > levels[j].Score.FinalScore
	})
	if len(levels) > maxLevels {
		levels = levels[:maxLevels]
	}

	// 展示阈值: 最后一道输出筛选，补位水位同样受约束
	if c.cfg.DisplayScoreThreshold > 0 {
		kept := levels[:0]
		for _, lv := range levels {
			if lv.Score.FinalScore >= c.cfg.DisplayScoreThreshold {
				kept = append(kept, lv)
			}
		}
		levels = kept
	}
	sortLevelsByPriceDesc(levels)

	logger.Infof("level: generated %d %s levels (trend=%s atr=%.4f trimmed=%d filled=%d)",
		len(levels), role, trend, atr,
		len(auditResult.TrimmedPrices), len(auditResult.FilledPrices))
	return levels, nil
}

// RefreshScores 只刷新评分，绝不改动任何已有价格
//
// 每条水位在其原始贡献周期内找 1% 相对容差内最近的新分形重新评分;
// 找不到则保留旧分，仅更新趋势状态字段。
func (c *Calculator) RefreshScores(levels []ScoredLevel, klinesByTF market.KlinesByTimeframe, currentPrice float64, role Role) []ScoredLevel {
	const refreshTolerance = 0.01

	mainKlines := market.ClosedOnly(klinesByTF[c.cfg.MainTimeframe])
	fractalsByTF := c.extractor.Extract(klinesByTF)
	vpvr := c.analyzer.Analyze(mainKlines, currentPrice)
	anchors := c.matcher.AllLevels(mainKlines)
	trend := DetermineTrend(mainKlines)

	out := make([]ScoredLevel, 0, len(levels))
	for _, lv := range levels {
		fp, ok := nearestFractal(fractalsByTF, lv.Score.Timeframes, lv.Price, refreshTolerance)
		if !ok {
			// 分形漂移出容差: 价格与旧分保留，只同步趋势
			lv.Score.TrendState = trend
			out = append(out, lv)
			continue
		}

		// 刷新只认单个最近分形，不重建共振簇，避免评分虚高
		rescored := &LevelCandidate{
			Price:      lv.Price,
			Fractals:   []FractalPoint{fp},
			Timeframes: []string{fp.Timeframe},
			Kind:       CandidateRegular,
		}
		out = append(out, ScoredLevel{
			Price: lv.Price,
			Score: c.scorer.Score(rescored, vpvr, anchors, trend, role),
		})
	}
	sortLevelsByPriceDesc(out)
	return out
}

// LastAuditResult 返回指定方向最近一次审计记录
func (c *Calculator) LastAuditResult(role Role) *AuditResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastAudit[role]
}

// computeATR 取审计框架 K 线，缺失时回退主框架
func (c *Calculator) computeATR(klinesByTF market.KlinesByTimeframe) float64 {
	tf := c.cfg.Audit.ATRTimeframe
	klines := market.ClosedOnly(klinesByTF[tf])
	if len(klines) < c.cfg.Audit.ATRPeriod+1 {
		klines = market.ClosedOnly(klinesByTF[c.cfg.MainTimeframe])
	}
	return ComputeATR(klines, c.cfg.Audit.ATRPeriod)
}

// nearPricePass 现价与最近水位之间的空档超限时补位
func (c *Calculator) nearPricePass(candidates []*LevelCandidate, currentPrice, atr float64, role Role) []*LevelCandidate {
	if !c.cfg.Audit.Enabled || atr <= 0 || len(candidates) == 0 {
		return candidates
	}
	maxGap := atr * c.cfg.Audit.GapRatio

	sortCandidatesByPriceDesc(candidates)
	var lower, upper float64
	if role == RoleSupport {
		// 最近支撑 = 列表首位 (价格最高者)
		lower, upper = candidates[0].Price, currentPrice
	} else {
		// 最近阻力 = 列表末位 (价格最低者)
		lower, upper = currentPrice, candidates[len(candidates)-1].Price
	}
	if upper-lower <= maxGap {
		return candidates
	}

	added := c.auditor.FillBetween(lower, upper, atr, role, FillReasonNearPrice)
	if len(added) == 0 {
		return candidates
	}
	candidates = append(candidates, added...)
	sortCandidatesByPriceDesc(candidates)
	return candidates
}

// fallbackResistance 无阻力分形时的兜底生成
//
// 心理位阶梯从略高于现价处向上铺，再叠加近期高点之上的 ATR 整数倍位，
// 全部带固定兜底分，受最大距离约束。
func (c *Calculator) fallbackResistance(mainKlines []market.Kline, currentPrice, atr float64, trend TrendState, maxLevels int) []ScoredLevel {
	floor := currentPrice * 1.005
	ceiling := currentPrice * (1 + c.cfg.MaxDistancePct)

	seen := make(map[float64]bool)
	var prices []float64

	for _, a := range c.matcher.LadderAbove(floor, maxLevels) {
		if a.Price <= ceiling && !seen[roundKey(a.Price)] {
			seen[roundKey(a.Price)] = true
			prices = append(prices, a.Price)
		}
	}

	if atr > 0 {
		base := currentPrice
		for _, k := range mainKlines {
			if k.High > base {
				base = k.High
			}
		}
		for i := 1; i <= maxLevels; i++ {
			p := base + atr*float64(i)
			if p <= floor || p > ceiling || seen[roundKey(p)] {
				continue
			}
			seen[roundKey(p)] = true
			prices = append(prices, p)
		}
	}

	sort.Float64s(prices)
	if len(prices) > maxLevels {
		prices = prices[:maxLevels]
	}

	levels := make([]ScoredLevel, 0, len(prices))
	for _, p := range prices {
		levels = append(levels, ScoredLevel{
			Price: p,
			Score: LevelScore{
				BaseScore:        c.cfg.FallbackScore,
				VolumeWeight:     1.0,
				PsychologyWeight: 1.0,
				TrendCoefficient: 1.0,
				TrendState:       trend,
				MTFCoefficient:   1.0,
				FinalScore:       c.cfg.FallbackScore,
			},
		})
	}
	sortLevelsByPriceDesc(levels)
	return levels
}

// applyBoundary 手动边界裁剪
func (c *Calculator) applyBoundary(levels []ScoredLevel, role Role, currentPrice float64) []ScoredLevel {
	b := c.cfg.Boundary
	if !b.Enabled {
		return levels
	}

	lower := b.LowerPrice * (1 - b.BufferPct)
	upper := b.UpperPrice
	if upper > 0 {
		upper *= 1 + b.BufferPct
	} else {
		upper = math.Inf(1)
	}

	out := levels[:0:0]
	for _, lv := range levels {
		if lv.Price >= lower && lv.Price <= upper {
			out = append(out, lv)
		}
	}

	// expand 模式: 边界价本身并入对应方向
	if b.Mode == "expand" {
		if role == RoleSupport && b.LowerPrice > 0 && b.LowerPrice < currentPrice {
			out = appendBoundaryLevel(out, b.LowerPrice, c.cfg.FallbackScore)
		}
		if role == RoleResistance && b.UpperPrice > currentPrice {
			out = appendBoundaryLevel(out, b.UpperPrice, c.cfg.FallbackScore)
		}
	}
	return out
}

func appendBoundaryLevel(levels []ScoredLevel, price, score float64) []ScoredLevel {
	for _, lv := range levels {
		if math.Abs(lv.Price-price) < 1e-9 {
			return levels
		}
	}
	return append(levels, ScoredLevel{
		Price: price,
		Score: LevelScore{
			BaseScore:        score,
			VolumeWeight:     1.0,
			PsychologyWeight: 1.0,
			TrendCoefficient: 1.0,
			MTFCoefficient:   1.0,
			FinalScore:       score,
		},
	})
}

// nearestFractal 在指定周期内找距 price 相对容差内最近的单个分形
func nearestFractal(fractalsByTF map[string][]FractalPoint, timeframes []string, price, tolerance float64) (FractalPoint, bool) {
	var best FractalPoint
	bestDist := math.Inf(1)
	for _, tf := range timeframes {
		for _, fp := range fractalsByTF[tf] {
			dist := math.Abs(fp.Price - price)
			if dist/price <= tolerance && dist < bestDist {
				best, bestDist = fp, dist
			}
		}
	}
	return best, !math.IsInf(bestDist, 1)
}
