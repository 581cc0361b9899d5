package level

import (
	"math"
	"testing"
)

// TestComputeATR 测试真实波幅均值
func TestComputeATR(t *testing.T) {
	// 恒定波幅 2.0 的序列
	klines := makeFlatKlines(20, 101, 99, 100)
	if got := ComputeATR(klines, 14); math.Abs(got-2.0) > 1e-9 {
		t.Errorf("ATR = %.4f, 期望 2.0", got)
	}

	if got := ComputeATR(klines[:10], 14); got != 0 {
		t.Errorf("数据不足 ATR 应为 0, 实际 %.4f", got)
	}
	if got := ComputeATR(klines, 0); got != 0 {
		t.Errorf("非法周期 ATR 应为 0, 实际 %.4f", got)
	}
}

// TestDensityPass 测试密集剔除保留高能量侧
func TestDensityPass(t *testing.T) {
	cfg := DefaultConfig()
	a := NewATRGapAuditor(cfg)

	weak := &LevelCandidate{
		Price:    100.2,
		Fractals: []FractalPoint{testFractal(100.2, FractalLow, "4h", 8, 20)},
	}
	strong := &LevelCandidate{
		Price:      100.0,
		Fractals:   []FractalPoint{testFractal(100.0, FractalLow, "1d", 89, 80)},
		Timeframes: []string{"1d", "4h"},
		Resonance:  true,
	}
	far := &LevelCandidate{
		Price:    97.5,
		Fractals: []FractalPoint{testFractal(97.5, FractalLow, "4h", 8, 20)},
	}

	// atr=1, density 0.5: 100.2 与 100.0 间距 0.2 < 0.5 触发剔除
	adjusted, result := a.Audit([]*LevelCandidate{weak, strong, far}, 1.0, RoleSupport, AuditSetup{})
	if len(adjusted) != 2 {
		t.Fatalf("期望剔除后 2 个候选, 实际 %d", len(adjusted))
	}
	if adjusted[0].Price != 100.0 {
		t.Errorf("应保留高能量候选 100.0, 实际保留 %.2f", adjusted[0].Price)
	}
	if len(result.TrimmedPrices) != 1 || result.TrimmedPrices[0] != 100.2 {
		t.Errorf("审计记录应包含被剔除的 100.2, 实际 %v", result.TrimmedPrices)
	}
}

// TestSparsityPassTacticalPriority 测试稀疏补位优先使用战术分形
func TestSparsityPassTacticalPriority(t *testing.T) {
	cfg := DefaultConfig()
	a := NewATRGapAuditor(cfg)

	candidates := []*LevelCandidate{
		{Price: 110, Fractals: []FractalPoint{testFractal(110, FractalLow, "4h", 34, 50)}},
		{Price: 100, Fractals: []FractalPoint{testFractal(100, FractalLow, "4h", 34, 50)}},
	}
	setup := AuditSetup{
		TacticalPool: []FractalPoint{testFractal(105.2, FractalLow, "15m", 8, 20)},
	}

	// atr=1, gap 10 > 3×1 触发补位
	adjusted, result := a.Audit(candidates, 1.0, RoleSupport, setup)

	var tacticalUsed bool
	for _, c := range adjusted {
		if c.Kind == CandidateFilled && c.Price == 105.2 {
			tacticalUsed = true
			if c.FillReason != FillReasonTactical {
				t.Errorf("补位来源 = %s, 期望 tactical", c.FillReason)
			}
			if c.FillScore != 35 {
				t.Errorf("补位固定分 = %.0f, 期望 35", c.FillScore)
			}
		}
	}
	if !tacticalUsed {
		t.Fatalf("战术分形 105.2 应被优先采用, 补位记录: %v", result.FilledPrices)
	}

	assertSpacingWithin(t, adjusted, 3.0)
	assertInsideRange(t, result.FilledPrices, 100, 110)
}

// TestSparsityPassVPVRFallback 测试无战术分形时回退量能带
func TestSparsityPassVPVRFallback(t *testing.T) {
	cfg := DefaultConfig()
	a := NewATRGapAuditor(cfg)

	candidates := []*LevelCandidate{
		{Price: 110, Fractals: []FractalPoint{testFractal(110, FractalLow, "4h", 34, 50)}},
		{Price: 100, Fractals: []FractalPoint{testFractal(100, FractalLow, "4h", 34, 50)}},
	}
	setup := AuditSetup{
		VPVR: &VPVRData{
			BucketWidth: 1.0,
			POCPrice:    104.5,
			Zones:       []VolumeZone{{Price: 104.5, Strength: 1.0}},
		},
	}

	_, result := a.Audit(candidates, 1.0, RoleSupport, setup)
	if len(result.FilledPrices) == 0 {
		t.Fatal("期望发生补位")
	}
	if result.FilledPrices[0] != 104.5 || result.FilledReasons[0] != FillReasonVPVR {
		t.Errorf("首次补位应取 POC 104.5 (vpvr), 实际 %.2f (%s)",
			result.FilledPrices[0], result.FilledReasons[0])
	}
}

// TestFibonacciFillSpacing 测试黄金分割补位后的间距约束
func TestFibonacciFillSpacing(t *testing.T) {
	cfg := DefaultConfig()
	a := NewATRGapAuditor(cfg)

	candidates := []*LevelCandidate{
		{Price: 91000, Fractals: []FractalPoint{testFractal(91000, FractalLow, "4h", 34, 50)}},
		{Price: 89000, Fractals: []FractalPoint{testFractal(89000, FractalLow, "4h", 34, 50)}},
	}

	// atr=100: 2000 空档 vs 300 上限, 纯斐波那契细分
	adjusted, result := a.Audit(candidates, 100, RoleSupport, AuditSetup{})

	assertSpacingWithin(t, adjusted, 300)
	assertInsideRange(t, result.FilledPrices, 89000, 91000)
	for _, reason := range result.FilledReasons {
		if reason != FillReasonFibonacci {
			t.Errorf("补位来源 = %s, 期望 fibonacci", reason)
		}
	}
}

// TestFibonacciFillDepthBound 测试病态空档下细分深度有界
func TestFibonacciFillDepthBound(t *testing.T) {
	cfg := DefaultConfig()
	a := NewATRGapAuditor(cfg)

	// ATR 极小, 完全填满需要远超深度上限的细分次数
	filled := a.FillBetween(100, 200, 0.0001, RoleSupport, FillReasonFibonacci)
	if len(filled) == 0 {
		t.Fatal("期望产生补位")
	}
	// 深度 ≤ 10 限制细分规模
	if len(filled) >= 1<<11 {
		t.Errorf("补位数量 %d 超出深度上限应有的规模", len(filled))
	}
	for _, c := range filled {
		if c.Price <= 100 || c.Price >= 200 {
			t.Errorf("补位价 %.4f 超出区间 (100, 200)", c.Price)
		}
		if c.Kind != CandidateFilled {
			t.Error("FillBetween 产物必须是补位变体")
		}
	}
}

// TestAuditDisabled 测试审计关闭与无效 ATR 时原样返回
func TestAuditDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	a := NewATRGapAuditor(cfg)

	candidates := []*LevelCandidate{{Price: 110}, {Price: 100}}
	adjusted, result := a.Audit(candidates, 1.0, RoleSupport, AuditSetup{})
	if len(adjusted) != 2 || len(result.FilledPrices) != 0 {
		t.Error("审计关闭时不应增删候选")
	}

	cfg2 := DefaultConfig()
	a2 := NewATRGapAuditor(cfg2)
	adjusted2, _ := a2.Audit(candidates, 0, RoleSupport, AuditSetup{})
	if len(adjusted2) != 2 {
		t.Error("ATR 为 0 时不应增删候选")
	}
}

// assertSpacingWithin 校验相邻候选间距不超过 maxGap
func assertSpacingWithin(t *testing.T, candidates []*LevelCandidate, maxGap float64) {
	t.Helper()
	for i := 0; i+1 < len(candidates); i++ {
		gap := candidates[i].Price - candidates[i+1].Price
		if gap > maxGap+1e-9 {
			t.Errorf("候选 %.4f 与 %.4f 间距 %.4f 超过上限 %.4f",
				candidates[i].Price, candidates[i+1].Price, gap, maxGap)
		}
	}
}

// assertInsideRange 校验补位价严格位于开区间内
func assertInsideRange(t *testing.T, prices []float64, lower, upper float64) {
	t.Helper()
	for _, p := range prices {
		if p <= lower || p >= upper {
			t.Errorf("补位价 %.4f 超出区间 (%.4f, %.4f)", p, lower, upper)
		}
	}
}
