package valuation

// DefaultDelayCost 上市前每年的固定现金流 (研发/临床投入的占位值, 非校准成本模型)
const DefaultDelayCost = -500e6

// SimulateCashFlows 在收入曲线前补 delay 年的固定负现金流
func SimulateCashFlows(asset PipelineAsset, delayCost float64) CashFlowSeries {
	var revenue CashFlowSeries
	switch asset.Model() {
	case CurveGrowth:
		revenue = GrowthCurve(asset.CurveParams(), asset.InitialRevenue, asset.GrowthRate, asset.YearsToSimulate)
	default:
		revenue = RevenueCurve(asset.CurveParams())
	}
	return PrependDelay(revenue, asset.DelayYears, delayCost)
}

// PrependDelay 返回新序列: delayYears 个 delayCost 后接 revenue
func PrependDelay(revenue CashFlowSeries, delayYears int, delayCost float64) CashFlowSeries {
	flows := make(CashFlowSeries, 0, nonNegative(delayYears)+len(revenue))
	for i := 0; i < delayYears; i++ {
		flows = append(flows, delayCost)
	}
	return append(flows, revenue...)
}
