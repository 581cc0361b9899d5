package level

import (
	"testing"
)

// TestStepsFor 测试量级自适应步长
func TestStepsFor(t *testing.T) {
	tests := []struct {
		price    float64
		wantMin  float64
		wantMax  float64
		wantSize int
	}{
		{91000, 500, 10000, 4},
		{3500, 100, 1000, 3},
		{250, 10, 100, 3},
		{45, 1, 10, 3},
		{2.5, 0.1, 1, 3},
		{0.35, 0.01, 0.1, 3},
		{0.005, 0.001, 0.01, 3},
	}
	for _, tt := range tests {
		steps := stepsFor(tt.price)
		if len(steps) != tt.wantSize {
			t.Errorf("stepsFor(%.4f) 返回 %d 档, 期望 %d", tt.price, len(steps), tt.wantSize)
			continue
		}
		if steps[0] != tt.wantMin || steps[len(steps)-1] != tt.wantMax {
			t.Errorf("stepsFor(%.4f) = %v, 期望 [%.3f ... %.3f]",
				tt.price, steps, tt.wantMin, tt.wantMax)
		}
	}
}

// TestAllLevels 测试整数位生成覆盖价格区间
func TestAllLevels(t *testing.T) {
	m := NewPsychologyMatcher(DefaultConfig())

	klines := makeKlines(
		[]float64{105, 118, 112},
		[]float64{95, 98, 96},
	)

	anchors := m.AllLevels(klines)
	if len(anchors) == 0 {
		t.Fatal("期望生成整数位")
	}
	for i, a := range anchors {
		if a.Price < 95 || a.Price > 118 {
			t.Errorf("整数位 %.2f 超出 K 线价格区间 [95, 118]", a.Price)
		}
		if i > 0 && anchors[i-1].Price <= a.Price {
			t.Errorf("整数位未按价格降序排列")
		}
	}

	// 100 与 110 必须在其中 (步长 10)
	if !containsAnchor(anchors, 100) || !containsAnchor(anchors, 110) {
		t.Errorf("期望包含 100 和 110, 实际 %v", anchorPrices(anchors))
	}
}

// TestSnap 测试心理位匹配不改动输入价格
func TestSnap(t *testing.T) {
	cfg := DefaultConfig() // SnapTolerance 1%
	m := NewPsychologyMatcher(cfg)
	anchors := []PsychologyAnchor{{Price: 100, Step: 10}, {Price: 110, Step: 10}}

	tests := []struct {
		name      string
		price     float64
		wantMatch bool
		wantPrice float64
	}{
		{"容差内吸附最近位", 100.5, true, 100},
		{"恰好命中", 110, true, 110},
		{"超出容差", 105, false, 0},
		{"非法价格", 0, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.price
			anchor, ok := m.Snap(input, anchors)
			if ok != tt.wantMatch {
				t.Fatalf("Snap(%.2f) matched=%v, 期望 %v", tt.price, ok, tt.wantMatch)
			}
			if ok && anchor.Price != tt.wantPrice {
				t.Errorf("Snap(%.2f) 匹配 %.2f, 期望 %.2f", tt.price, anchor.Price, tt.wantPrice)
			}
			// 匹配只用于评分加成, 输入价格保持原值
			if input != tt.price {
				t.Errorf("Snap 不得改动输入价格")
			}
		})
	}
}

// TestLadderAbove 测试兜底阶梯从下沿向上铺设
func TestLadderAbove(t *testing.T) {
	m := NewPsychologyMatcher(DefaultConfig())

	anchors := m.LadderAbove(91000, 3)
	if len(anchors) != 3 {
		t.Fatalf("期望 3 档, 实际 %d: %v", len(anchors), anchorPrices(anchors))
	}
	want := []float64{91500, 92000, 92500}
	for i, a := range anchors {
		if a.Price != want[i] {
			t.Errorf("阶梯第 %d 档 = %.0f, 期望 %.0f", i, a.Price, want[i])
		}
		if a.Price <= 91000 {
			t.Errorf("阶梯价 %.0f 未高于下沿", a.Price)
		}
	}

	if got := m.LadderAbove(0, 3); got != nil {
		t.Errorf("非法下沿应返回 nil")
	}
	if got := m.LadderAbove(100, 0); got != nil {
		t.Errorf("非法数量应返回 nil")
	}
}

func containsAnchor(anchors []PsychologyAnchor, price float64) bool {
	for _, a := range anchors {
		if a.Price == price {
			return true
		}
	}
	return false
}

func anchorPrices(anchors []PsychologyAnchor) []float64 {
	out := make([]float64, len(anchors))
	for i, a := range anchors {
		out[i] = a.Price
	}
	return out
}
