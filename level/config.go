package level

import (
	"fmt"
	"sort"
	"strings"
)

// ============================================================================
// Pipeline configuration
// ============================================================================

// Config 水位生成引擎配置
//
// 所有字段都有可用的默认值 (DefaultConfig)，部署前由 Validate 做
// 快速失败校验。配置错误属于部署错误，与行情数据不足严格区分。
type Config struct {
	// 时间框架，按优先级从高到低 (周线战略层 → 15m 战术层)
	Timeframes        []string `yaml:"timeframes"`
	MainTimeframe     string   `yaml:"main_timeframe"`     // VPVR/趋势/心理位的主框架
	TacticalTimeframe string   `yaml:"tactical_timeframe"` // 战术种子池来源

	// 分形提取
	SwingLookbacks    []int   `yaml:"swing_lookbacks"`     // 回溯周期 (斐波那契数列)
	StrengthDecayBars int     `yaml:"strength_decay_bars"` // 强度衰减窗口
	StrengthFloor     float64 `yaml:"strength_floor"`      // 衰减下限

	// MTF 融合与距离过滤
	MergeTolerance float64 `yaml:"merge_tolerance"`  // 相对价格合并容差
	MinDistancePct float64 `yaml:"min_distance_pct"` // 距现价最小距离
	MaxDistancePct float64 `yaml:"max_distance_pct"` // 距现价最大距离

	// VPVR
	VolumeBucketPct float64 `yaml:"volume_bucket_pct"` // 桶宽 = 现价 × 该值
	VolumeTopPct    float64 `yaml:"volume_top_pct"`    // 高能量桶占比
	MinVPVRKlines   int     `yaml:"min_vpvr_klines"`   // 最少 K 线数

	// 评分
	TimeframeWeights map[string]float64 `yaml:"timeframe_weights"`
	PeriodScores     map[int]float64    `yaml:"period_scores"`
	VolumeWeight     float64            `yaml:"volume_weight"`     // 密集区加成
	PsychologyWeight float64            `yaml:"psychology_weight"` // 心理位加成
	SnapTolerance    float64            `yaml:"snap_tolerance"`    // 心理位匹配容差
	TrendBoost       float64            `yaml:"trend_boost"`       // 顺势 1+x / 逆势 1-x
	MinScoreThreshold     float64       `yaml:"min_score_threshold"`
	DisplayScoreThreshold float64       `yaml:"display_score_threshold"`
	FallbackScore         float64       `yaml:"fallback_score"` // 兜底阻力位固定分

	// ATR 空间硬约束
	Audit AuditConfig `yaml:"atr_audit"`

	// 手动边界
	Boundary ManualBoundary `yaml:"manual_boundary"`
}

// AuditConfig ATR 审计配置
type AuditConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ATRTimeframe string  `yaml:"atr_timeframe"` // 无数据时回退主框架
	ATRPeriod    int     `yaml:"atr_period"`
	DensityRatio float64 `yaml:"density_ratio"` // 最小间距 = ratio × ATR
	GapRatio     float64 `yaml:"gap_ratio"`     // 最大间距 = ratio × ATR
	FillRatio    float64 `yaml:"fill_ratio"`    // 黄金分割补全比例
	FillScore    float64 `yaml:"fill_score"`    // 补全水位固定分
	MaxFillDepth int     `yaml:"max_fill_depth"`
}

// ManualBoundary 手动边界
//
// 模式:
//   - strict: 超出边界的水位直接丢弃
//   - filter: 保留但不参与 top-N 之前的裁剪 (与 strict 同为过滤，保留语义)
//   - expand: 边界价格本身作为水位并入
type ManualBoundary struct {
	Enabled    bool    `yaml:"enabled"`
	UpperPrice float64 `yaml:"upper_price"`
	LowerPrice float64 `yaml:"lower_price"`
	Mode       string  `yaml:"mode"`
	BufferPct  float64 `yaml:"buffer_pct"`
}

// DefaultConfig 返回 v3 默认配置
func DefaultConfig() *Config {
	return &Config{
		Timeframes:        []string{"1w", "1d", "4h", "15m"},
		MainTimeframe:     "4h",
		TacticalTimeframe: "15m",

		SwingLookbacks:    []int{8, 13, 21, 34, 55, 89},
		StrengthDecayBars: 200,
		StrengthFloor:     0.5,

		MergeTolerance: 0.005,
		MinDistancePct: 0.005,
		MaxDistancePct: 0.30,

		VolumeBucketPct: 0.01,
		VolumeTopPct:    0.20,
		MinVPVRKlines:   20,

		TimeframeWeights: map[string]float64{
			"1w":  1.8,
			"1d":  1.5,
			"4h":  1.0,
			"15m": 0.6,
		},
		PeriodScores: map[int]float64{
			89: 80, 55: 80,
			34: 50, 21: 50,
			13: 20, 8: 20,
		},
		VolumeWeight:     1.3,
		PsychologyWeight: 1.2,
		SnapTolerance:    0.01,
		TrendBoost:       0.1,

		MinScoreThreshold:     30,
		DisplayScoreThreshold: 0,
		FallbackScore:         35,

		Audit: AuditConfig{
			Enabled:      true,
			ATRTimeframe: "4h",
			ATRPeriod:    14,
			DensityRatio: 0.5,
			GapRatio:     3.0,
			FillRatio:    0.618,
			FillScore:    35,
			MaxFillDepth: 10,
		},

		Boundary: ManualBoundary{Mode: "strict"},
	}
}

// Validate 校验配置，部署错误立即失败
func (c *Config) Validate() error {
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("level config: timeframes is empty")
	}
	if c.MainTimeframe == "" {
		return fmt.Errorf("level config: main_timeframe is empty")
	}
	if len(c.SwingLookbacks) == 0 {
		return fmt.Errorf("level config: swing_lookbacks is empty")
	}
	for _, lb := range c.SwingLookbacks {
		if lb < 1 {
			return fmt.Errorf("level config: invalid swing lookback %d", lb)
		}
	}
	if c.StrengthDecayBars <= 0 {
		return fmt.Errorf("level config: strength_decay_bars must be positive")
	}
	if c.StrengthFloor < 0 || c.StrengthFloor > 1 {
		return fmt.Errorf("level config: strength_floor %.2f out of [0,1]", c.StrengthFloor)
	}
	if c.MergeTolerance <= 0 {
		return fmt.Errorf("level config: merge_tolerance must be positive")
	}
	if c.MinDistancePct < 0 || c.MaxDistancePct <= c.MinDistancePct {
		return fmt.Errorf("level config: distance bounds invalid (min=%.4f max=%.4f)",
			c.MinDistancePct, c.MaxDistancePct)
	}
	if c.VolumeBucketPct <= 0 || c.VolumeTopPct <= 0 || c.VolumeTopPct > 1 {
		return fmt.Errorf("level config: vpvr ratios invalid")
	}
	if err := c.Audit.validate(); err != nil {
		return err
	}
	if c.Boundary.Enabled {
		switch c.Boundary.Mode {
		case "strict", "filter", "expand":
		default:
			return fmt.Errorf("level config: unknown boundary mode %q", c.Boundary.Mode)
		}
		if c.Boundary.UpperPrice > 0 && c.Boundary.LowerPrice > 0 &&
			c.Boundary.UpperPrice <= c.Boundary.LowerPrice {
			return fmt.Errorf("level config: boundary upper %.4f <= lower %.4f",
				c.Boundary.UpperPrice, c.Boundary.LowerPrice)
		}
	}
	return nil
}

func (a *AuditConfig) validate() error {
	if !a.Enabled {
		return nil
	}
	if a.ATRPeriod < 2 {
		return fmt.Errorf("level config: atr_period %d too small", a.ATRPeriod)
	}
	if a.DensityRatio <= 0 || a.GapRatio <= 0 || a.DensityRatio >= a.GapRatio {
		return fmt.Errorf("level config: atr ratios invalid (density=%.2f gap=%.2f)",
			a.DensityRatio, a.GapRatio)
	}
	if a.FillRatio <= 0 || a.FillRatio >= 1 {
		return fmt.Errorf("level config: fill_ratio %.3f out of (0,1)", a.FillRatio)
	}
	if a.MaxFillDepth < 1 {
		return fmt.Errorf("level config: max_fill_depth %d too small", a.MaxFillDepth)
	}
	return nil
}

// periodScore 返回回溯周期的基础分，未配置的周期给保守分
func (c *Config) periodScore(lookback int) float64 {
	if s, ok := c.PeriodScores[lookback]; ok {
		return s
	}
	return 20
}

// timeframeWeight 返回时间框架权重，未配置的框架为 1.0
func (c *Config) timeframeWeight(tf string) float64 {
	if w, ok := c.TimeframeWeights[tf]; ok {
		return w
	}
	return 1.0
}

// ============================================================================
// MTF resonance coefficients
// ============================================================================

// 默认共振系数，按参与框架组合取值
var defaultResonance = map[string]float64{
	"15m,1d,1w,4h": 2.2,
	"1d,1w,4h":     2.1,
	"15m,1d,4h":    2.0,
	"1d,4h":        1.5,
	"1d,1w":        1.5,
	"1w,4h":        1.4,
	"15m,1d":       1.3,
	"15m,4h":       1.2,
	"15m,1w":       1.2,
}

// resonanceCoefficient 计算 MTF 共振系数 (单框架 = 1.0)
func resonanceCoefficient(timeframes []string) float64 {
	if len(timeframes) <= 1 {
		return 1.0
	}
	key := make([]string, len(timeframes))
	copy(key, timeframes)
	sort.Strings(key)
	if coef, ok := defaultResonance[strings.Join(key, ",")]; ok {
		return coef
	}
	// 未登记的组合按框架数给保底加成
	return 1.0 + 0.1*float64(len(timeframes)-1)
}
