package valuation

import (
	"fmt"
)

// Engine 组合曲线生成、风险调整与聚合, 本身无 I/O, 可并发使用
type Engine struct {
	assumptions Assumptions
}

// NewEngine 创建估值引擎
func NewEngine(assumptions Assumptions) (*Engine, error) {
	if err := assumptions.Validate(); err != nil {
		return nil, err
	}
	return &Engine{assumptions: assumptions}, nil
}

// Assumptions 返回引擎使用的假设
func (e *Engine) Assumptions() Assumptions {
	return e.assumptions
}

// WithOverrides 返回覆盖了折现率/合并方式的新引擎, 原引擎不变
func (e *Engine) WithOverrides(discountRate *float64, mode string) (*Engine, error) {
	a := e.assumptions
	if discountRate != nil {
		a.DiscountRate = *discountRate
	}
	if mode != "" {
		parsed, err := ParseCombinationMode(mode)
		if err != nil {
			return nil, err
		}
		a.CombinationMode = parsed
	}
	return NewEngine(a)
}

// WithLimits 返回覆盖了资产数/年数上限的新引擎, 零值保留原上限
func (e *Engine) WithLimits(maxAssets, maxYears int) (*Engine, error) {
	a := e.assumptions
	if maxAssets != 0 {
		a.MaxAssets = maxAssets
	}
	if maxYears != 0 {
		a.MaxYears = maxYears
	}
	return NewEngine(a)
}

// SimulateAsset 单资产: 收入曲线 -> 现金流 -> 风险调整
func (e *Engine) SimulateAsset(index int, asset PipelineAsset) (*AssetProjection, error) {
	if err := ValidateAsset(asset, e.assumptions.MaxYears); err != nil {
		return nil, fmt.Errorf("%s: %w", asset.Label(index), err)
	}

	probability, err := e.assumptions.Probabilities.Lookup(asset.Phase, asset.RareDisease)
	if err != nil {
		return nil, err
	}

	flows := SimulateCashFlows(asset, e.assumptions.DelayCost)
	revenue := flows[asset.DelayYears:].Clone()

	adjusted, err := RiskAdjust(flows, probability)
	if err != nil {
		return nil, err
	}

	standalone, err := NPV(adjusted, e.assumptions.DiscountRate)
	if err != nil {
		return nil, err
	}

	return &AssetProjection{
		Index:         index,
		Name:          asset.Label(index),
		Phase:         asset.Phase,
		RareDisease:   asset.RareDisease,
		Probability:   probability,
		PeakRevenue:   asset.CurveParams().PeakRevenue(),
		Revenue:       revenue,
		CashFlows:     flows,
		RiskAdjusted:  adjusted,
		StandaloneNPV: standalone,
	}, nil
}

// Aggregate 对已按资产顺序排列的模拟结果做聚合
func (e *Engine) Aggregate(snapshot MarketSnapshot, projections []AssetProjection) (*Report, error) {
	series := make([]CashFlowSeries, len(projections))
	for i, p := range projections {
		series[i] = p.RiskAdjusted
	}

	result, err := Aggregate(snapshot, series, AggregateOptions{
		DiscountRate:   e.assumptions.DiscountRate,
		FallbackShares: e.assumptions.FallbackShares,
		Mode:           e.assumptions.CombinationMode,
	})
	if err != nil {
		return nil, err
	}

	combined, err := CombineSeries(series, result.CombinationMode)
	if err != nil {
		return nil, err
	}

	return &Report{
		Ticker:      snapshot.Ticker,
		Snapshot:    snapshot,
		Result:      *result,
		Projections: projections,
		Chart:       combined.Chart(),
	}, nil
}

// Value 完整估值: 校验全部资产, 逐个模拟, 再聚合
func (e *Engine) Value(snapshot MarketSnapshot, assets []PipelineAsset) (*Report, error) {
	if err := ValidateAssets(assets, e.assumptions.MaxAssets, e.assumptions.MaxYears); err != nil {
		return nil, err
	}

	projections := make([]AssetProjection, 0, len(assets))
	for i, asset := range assets {
		p, err := e.SimulateAsset(i, asset)
		if err != nil {
			return nil, err
		}
		projections = append(projections, *p)
	}
	return e.Aggregate(snapshot, projections)
}
