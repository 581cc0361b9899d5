// Package level 实现关键位生成引擎 (LEVEL_GENERATION v3)
//
// 从多时间框架 K 线数据生成带评分的支撑/阻力位:
// 分形提取 → MTF 融合 → ATR 空间审计 → 多因子评分
package level

import (
	"sort"
)

// Role 水位角色
type Role string

const (
	RoleSupport    Role = "support"
	RoleResistance Role = "resistance"
)

// FractalType 分形类型
type FractalType string

const (
	FractalHigh FractalType = "HIGH"
	FractalLow  FractalType = "LOW"
)

// TrendState 趋势状态
type TrendState string

const (
	TrendUp      TrendState = "up"
	TrendDown    TrendState = "down"
	TrendRanging TrendState = "ranging"
)

// FractalPoint 分形点
//
// 基于对称回溯窗口识别的物理极值点，每次提取时重新生成，不可变。
type FractalPoint struct {
	Price     float64     `json:"price"`
	Timestamp int64       `json:"timestamp"` // ms
	Type      FractalType `json:"type"`
	Timeframe string      `json:"timeframe"` // "1w" | "1d" | "4h" | "15m"
	Lookback  int         `json:"lookback"`  // 回溯周期 8/13/21/34/55/89
	Age       int         `json:"age"`       // 距最新 K 线的根数
	Strength  float64     `json:"strength"`  // 周期基础分 × 时间衰减
}

// VolumeZone 成交量密集区
type VolumeZone struct {
	Price    float64 `json:"price"`    // 桶中心价格
	Strength float64 `json:"strength"` // 相对强度 volume/maxVolume, (0,1]
}

// VPVRData 成交量分布数据 (Volume Profile Visible Range)
type VPVRData struct {
	Zones       []VolumeZone `json:"zones"`        // 高能量区, 按价格降序
	POCPrice    float64      `json:"poc_price"`    // 控制价 (最高成交量桶中心)
	BucketWidth float64      `json:"bucket_width"` // 桶宽
	TotalVolume float64      `json:"total_volume"`
}

// ZoneAt 返回覆盖 price 的密集区 (半桶宽容差)，无则返回 nil
func (v *VPVRData) ZoneAt(price float64) *VolumeZone {
	if v == nil || v.BucketWidth <= 0 {
		return nil
	}
	half := v.BucketWidth / 2
	for i := range v.Zones {
		z := &v.Zones[i]
		if price >= z.Price-half && price <= z.Price+half {
			return z
		}
	}
	return nil
}

// ZoneInRange 返回 (lower, upper) 开区间内最强的密集区，无则返回 nil
// POC 优先于普通密集区
func (v *VPVRData) ZoneInRange(lower, upper float64) *VolumeZone {
	if v == nil {
		return nil
	}
	if v.POCPrice > lower && v.POCPrice < upper {
		if z := v.ZoneAt(v.POCPrice); z != nil {
			return z
		}
		return &VolumeZone{Price: v.POCPrice, Strength: 1.0}
	}
	var best *VolumeZone
	for i := range v.Zones {
		z := &v.Zones[i]
		if z.Price > lower && z.Price < upper {
			if best == nil || z.Strength > best.Strength {
				best = z
			}
		}
	}
	return best
}

// PsychologyAnchor 心理关口 (整数位阶梯的一档)
type PsychologyAnchor struct {
	Price float64 `json:"price"`
	Step  float64 `json:"step"` // 所属阶梯步长
}

// CandidateKind 候选水位变体标签
type CandidateKind int

const (
	CandidateRegular CandidateKind = iota // 分形合并产生
	CandidateFilled                       // 稀疏审计补全产生
)

// 补全来源
const (
	FillReasonTactical  = "tactical"
	FillReasonVPVR      = "vpvr"
	FillReasonFibonacci = "fibonacci"
	FillReasonNearPrice = "near_price"
)

// LevelCandidate 水位候选
//
// Price 在创建时确定，之后任何阶段都不得修改。评分、补全标注、
// 刷新都只能创建新候选。
type LevelCandidate struct {
	Price      float64        `json:"price"` // 代表价格，创建后不可变
	Fractals   []FractalPoint `json:"fractals"`
	Timeframes []string       `json:"timeframes"`
	Resonance  bool           `json:"resonance"` // 跨 ≥2 时间框架
	Kind       CandidateKind  `json:"kind"`
	FillScore  float64        `json:"fill_score,omitempty"`  // Kind == CandidateFilled 时有效
	FillReason string         `json:"fill_reason,omitempty"` // 同上
}

// newFilledCandidate 构造补全变体
func newFilledCandidate(price, score float64, reason string) *LevelCandidate {
	return &LevelCandidate{
		Price:      price,
		Kind:       CandidateFilled,
		FillScore:  score,
		FillReason: reason,
	}
}

// strongestFractal 返回强度最高的来源分形，空候选返回 nil
func (c *LevelCandidate) strongestFractal() *FractalPoint {
	var best *FractalPoint
	for i := range c.Fractals {
		f := &c.Fractals[i]
		if best == nil || f.Strength > best.Strength {
			best = f
		}
	}
	return best
}

// LevelScore 水位评分详情
//
// Final = Base × W_volume × W_psychology × T_trend × M_mtf, 截断到 [0,100]
type LevelScore struct {
	BaseScore        float64    `json:"base_score"`
	VolumeWeight     float64    `json:"volume_weight"`
	PsychologyWeight float64    `json:"psychology_weight"`
	PsychologyAnchor float64    `json:"psychology_anchor,omitempty"` // 0 表示未匹配
	TrendCoefficient float64    `json:"trend_coefficient"`
	TrendState       TrendState `json:"trend_state"`
	MTFCoefficient   float64    `json:"mtf_coefficient"`
	Resonance        bool       `json:"resonance"`
	FinalScore       float64    `json:"final_score"` // [0,100]
	Timeframes       []string   `json:"timeframes"`
	Lookbacks        []int      `json:"lookbacks,omitempty"`
}

// ScoredLevel 最终输出的 (价格, 评分) 对
type ScoredLevel struct {
	Price float64    `json:"price"`
	Score LevelScore `json:"score"`
}

// sortCandidatesByPriceDesc 按价格降序排列候选
func sortCandidatesByPriceDesc(cands []*LevelCandidate) {
	sort.Slice(cands, func(i, j int) bool {
		return cands[i].Price > cands[j].Price
	})
}

// sortLevelsByPriceDesc 按价格降序排列输出水位
func sortLevelsByPriceDesc(levels []ScoredLevel) {
	sort.Slice(levels, func(i, j int) bool {
		return levels[i].Price > levels[j].Price
	})
}
