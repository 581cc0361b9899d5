package level

import (
	"math"
	"testing"
)

// TestAnalyzeInsufficientData 测试数据不足与退化区间
func TestAnalyzeInsufficientData(t *testing.T) {
	cfg := DefaultConfig() // MinVPVRKlines 20
	a := NewVPVRAnalyzer(cfg)

	if got := a.Analyze(makeFlatKlines(10, 101, 99, 100), 100); got != nil {
		t.Error("K 线不足 20 根应返回 nil")
	}
	// 所有 K 线同价, 价格区间为 0
	if got := a.Analyze(makeFlatKlines(25, 100, 100, 100), 100); got != nil {
		t.Error("退化价格区间应返回 nil")
	}
	// 无成交量
	if got := a.Analyze(makeFlatKlines(25, 101, 99, 0), 100); got != nil {
		t.Error("零成交量应返回 nil")
	}
}

// TestAnalyzePOCAndZones 测试 POC 识别与高能量区筛选
func TestAnalyzePOCAndZones(t *testing.T) {
	cfg := DefaultConfig() // 桶宽 = 现价 × 1%, top 20%
	a := NewVPVRAnalyzer(cfg)

	// 20 根中点 100 (量 100), 5 根中点 105 (量 1000): 105 桶放量
	klines := makeFlatKlines(20, 100.2, 99.8, 100)
	klines = append(klines, makeFlatKlines(5, 105.2, 104.8, 1000)...)

	data := a.Analyze(klines, 100)
	if data == nil {
		t.Fatal("期望有效 VPVR 数据")
	}
	if data.BucketWidth != 1.0 {
		t.Errorf("桶宽 = %.4f, 期望 1.0", data.BucketWidth)
	}
	if math.Abs(data.POCPrice-105.3) > 1e-9 {
		t.Errorf("POC = %.4f, 期望 105.3", data.POCPrice)
	}
	if data.TotalVolume != 7000 {
		t.Errorf("总成交量 = %.0f, 期望 7000", data.TotalVolume)
	}
	if len(data.Zones) != 1 {
		t.Fatalf("期望 1 个高能量区, 实际 %d", len(data.Zones))
	}
	if data.Zones[0].Strength != 1.0 {
		t.Errorf("POC 桶强度 = %.2f, 期望 1.0", data.Zones[0].Strength)
	}
}

// TestZoneAt 测试密集区命中判定 (半桶宽容差)
func TestZoneAt(t *testing.T) {
	data := &VPVRData{
		BucketWidth: 1.0,
		Zones:       []VolumeZone{{Price: 105.3, Strength: 1.0}},
	}

	if data.ZoneAt(105.5) == nil {
		t.Error("105.5 在半桶宽内应命中")
	}
	if data.ZoneAt(106.0) != nil {
		t.Error("106.0 超出半桶宽不应命中")
	}
	var nilData *VPVRData
	if nilData.ZoneAt(105.3) != nil {
		t.Error("nil 接收者应返回 nil")
	}
}

// TestZoneInRange 测试区间内最强密集区选取与 POC 优先
func TestZoneInRange(t *testing.T) {
	data := &VPVRData{
		BucketWidth: 1.0,
		POCPrice:    105.3,
		Zones: []VolumeZone{
			{Price: 105.3, Strength: 1.0},
			{Price: 102.5, Strength: 0.6},
		},
	}

	// POC 在区间内优先
	if z := data.ZoneInRange(104, 106); z == nil || z.Price != 105.3 {
		t.Errorf("POC 在区间内应优先返回")
	}
	// POC 不在区间, 取最强普通密集区
	if z := data.ZoneInRange(101, 104); z == nil || z.Price != 102.5 {
		t.Errorf("期望返回 102.5 密集区")
	}
	if z := data.ZoneInRange(110, 120); z != nil {
		t.Errorf("空区间应返回 nil, 实际 %.2f", z.Price)
	}
}
