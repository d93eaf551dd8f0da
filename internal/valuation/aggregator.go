// 估值聚合
package valuation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// DefaultFallbackShares 流通股数非正时使用的兜底值 (防止除零, 不是真实估计)
const DefaultFallbackShares = 1_000_000

// AggregateOptions 聚合参数
type AggregateOptions struct {
	DiscountRate   float64
	FallbackShares float64
	Mode           CombinationMode
}

// CombineSeries 按合并方式把多条风险调整后序列合成一条
func CombineSeries(series []CashFlowSeries, mode CombinationMode) (CashFlowSeries, error) {
	switch mode {
	case CombineConcatenated:
		var total int
		for _, s := range series {
			total += len(s)
		}
		out := make(CashFlowSeries, 0, total)
		for _, s := range series {
			out = append(out, s...)
		}
		return out, nil

	case CombinePerAsset, "":
		var longest int
		for _, s := range series {
			if len(s) > longest {
				longest = len(s)
			}
		}
		out := make(CashFlowSeries, longest)
		for _, s := range series {
			floats.Add(out[:len(s)], s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unknown combination mode %q", bverrors.ErrInvalidInput, mode)
}

// EffectiveShares 有效流通股数, 非正时返回兜底值并标记降级
func EffectiveShares(shares, fallback float64) (float64, bool) {
	if fallback <= 0 {
		fallback = DefaultFallbackShares
	}
	if shares > 0 && !math.IsInf(shares, 0) {
		return shares, false
	}
	return fallback, true
}

// Aggregate 合并市场数据与管线 NPV, 得到当前和预测每股价格
func Aggregate(snapshot MarketSnapshot, series []CashFlowSeries, opts AggregateOptions) (*ValuationResult, error) {
	if math.IsNaN(snapshot.MarketCap) || math.IsInf(snapshot.MarketCap, 0) || snapshot.MarketCap < 0 {
		return nil, fmt.Errorf("%w: market cap %v must be a non-negative number", bverrors.ErrInvalidInput, snapshot.MarketCap)
	}
	if math.IsNaN(snapshot.SharesOutstanding) {
		return nil, fmt.Errorf("%w: shares outstanding is NaN", bverrors.ErrInvalidInput)
	}

	mode := opts.Mode
	if mode == "" {
		mode = CombinePerAsset
	}

	combined, err := CombineSeries(series, mode)
	if err != nil {
		return nil, err
	}

	npv, err := NPV(combined, opts.DiscountRate)
	if err != nil {
		return nil, err
	}

	shares, degraded := EffectiveShares(snapshot.SharesOutstanding, opts.FallbackShares)
	projectedCap := math.Max(0, snapshot.MarketCap+npv)

	result := &ValuationResult{
		CurrentPricePerShare:   snapshot.MarketCap / shares,
		ProjectedPricePerShare: projectedCap / shares,
		NPVPipeline:            npv,
		ProjectedMarketCap:     projectedCap,
		EffectiveShares:        shares,
		DiscountRate:           opts.DiscountRate,
		CombinationMode:        mode,
		Degraded:               degraded,
	}
	if degraded {
		result.Annotations = append(result.Annotations, Annotation{
			Code: AnnotationSharesFallback,
			Message: fmt.Sprintf("shares outstanding %v is not a positive finite number, per-share prices use fallback divisor %v",
				snapshot.SharesOutstanding, shares),
		})
	}
	return result, nil
}
