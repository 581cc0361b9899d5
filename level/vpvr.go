package level

import (
	"sort"

	"klgrid/market"
)

// ============================================================================
// Volume profile (VPVR)
// ============================================================================

// VPVRAnalyzer 成交量分布分析器
//
// 将可视价格区间按现价比例分桶，每根 K 线的成交量全部记入其中点
// (high+low)/2 所在的桶，不做 K 线内部的成交量分布建模。
type VPVRAnalyzer struct {
	cfg *Config
}

func NewVPVRAnalyzer(cfg *Config) *VPVRAnalyzer {
	return &VPVRAnalyzer{cfg: cfg}
}

// Analyze 分析成交量分布
//
// K 线数不足或价格区间退化时返回 nil，属于数据不足，不是错误。
func (a *VPVRAnalyzer) Analyze(klines []market.Kline, currentPrice float64) *VPVRData {
	if len(klines) < a.cfg.MinVPVRKlines {
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
	priceRange := priceMax - priceMin
	if priceRange <= 0 {
		return nil
	}

	bucketWidth := currentPrice * a.cfg.VolumeBucketPct
	if bucketWidth <= 0 {
		bucketWidth = priceRange / 100
	}

	buckets := make(map[int]float64)
	totalVolume := 0.0
	for _, k := range klines {
		if k.Volume <= 0 {
			continue
		}
		mid := (k.High + k.Low) / 2
		idx := int((mid - priceMin) / bucketWidth)
		buckets[idx] += k.Volume
		totalVolume += k.Volume
	}
	if len(buckets) == 0 || totalVolume <= 0 {
		return nil
	}

	// 按成交量降序确定高能量阈值
	volumes := make([]float64, 0, len(buckets))
	for _, v := range buckets {
		volumes = append(volumes, v)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(volumes)))

	topN := int(float64(len(volumes)) * a.cfg.VolumeTopPct)
	if topN < 1 {
		topN = 1
	}
	threshold := volumes[topN-1]
	maxVolume := volumes[0]

	data := &VPVRData{
		BucketWidth: bucketWidth,
		TotalVolume: totalVolume,
	}

	pocVolume := 0.0
	for idx, vol := range buckets {
		center := priceMin + (float64(idx)+0.5)*bucketWidth
		if vol > pocVolume {
			pocVolume = vol
			data.POCPrice = center
		}
		if vol >= threshold {
			data.Zones = append(data.Zones, VolumeZone{
				Price:    center,
				Strength: vol / maxVolume,
			})
		}
	}

	sort.Slice(data.Zones, func(i, j int) bool {
		return data.Zones[i].Price > data.Zones[j].Price
	})
	return data
}
