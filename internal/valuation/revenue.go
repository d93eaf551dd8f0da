// 收入曲线生成
package valuation

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// 爬坡期起点占峰值收入的比例
const rampStartFraction = 0.1

// CurveParams 收入曲线参数
type CurveParams struct {
	EligiblePopulation    float64
	PricePerPatient       float64
	MarketPenetrationRate float64 // 百分比 0-100
	RampYears             int
	PeakYears             int
	DeclineYears          int
	DeclineRate           float64 // 0-1
}

// PeakRevenue 峰值收入 = 患者数 × 单价 × 渗透率
func (p CurveParams) PeakRevenue() float64 {
	return p.EligiblePopulation * p.PricePerPatient * (p.MarketPenetrationRate / 100.0)
}

// RevenueCurve 生成爬坡-峰值-衰退三段收入曲线
//
// 爬坡期在 10% 与 100% 峰值之间线性插值 (含两端), 峰值期保持不变,
// 衰退期第 k 年为 peak × (1 - declineRate)^k。
// 输出长度恒为 RampYears + PeakYears + DeclineYears。
func RevenueCurve(p CurveParams) CashFlowSeries {
	peak := p.PeakRevenue()
	curve := make(CashFlowSeries, 0, nonNegative(p.RampYears)+nonNegative(p.PeakYears)+nonNegative(p.DeclineYears))

	curve = append(curve, rampSegment(peak, p.RampYears)...)

	for i := 0; i < p.PeakYears; i++ {
		curve = append(curve, peak)
	}

	for k := 1; k <= p.DeclineYears; k++ {
		curve = append(curve, peak*math.Pow(1-p.DeclineRate, float64(k)))
	}

	return curve
}

// rampSegment 爬坡段, 单点时取起点 (与 linspace 一致)
func rampSegment(peak float64, years int) []float64 {
	switch {
	case years <= 0:
		return nil
	case years == 1:
		return []float64{rampStartFraction * peak}
	}
	return floats.Span(make([]float64, years), rampStartFraction*peak, peak)
}

// GrowthCurve 旧模型: 首年收入 = 初始收入 + 治疗人数 × 单价, 之后按增长率复利
func GrowthCurve(p CurveParams, initialRevenue, growthRatePct float64, years int) CashFlowSeries {
	curve := make(CashFlowSeries, 0, nonNegative(years))
	treated := p.EligiblePopulation * (p.MarketPenetrationRate / 100.0)
	revenue := initialRevenue + treated*p.PricePerPatient

	for i := 0; i < years; i++ {
		curve = append(curve, revenue)
		revenue *= 1 + growthRatePct/100.0
	}
	return curve
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
