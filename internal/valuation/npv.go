package valuation

import (
	"fmt"
	"math"

	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// DefaultDiscountRate 默认折现率
const DefaultDiscountRate = 0.10

// NPV 计算净现值: Σ cf[t] / (1+rate)^t, t 从 1 开始 (首个现金流折现一期)
func NPV(series CashFlowSeries, rate float64) (float64, error) {
	if err := checkDiscountRate(rate); err != nil {
		return 0, err
	}

	var npv float64
	for i, cf := range series {
		npv += cf / math.Pow(1+rate, float64(i+1))
	}

	if math.IsNaN(npv) || math.IsInf(npv, 0) {
		return 0, fmt.Errorf("%w: npv is not finite (rate %v, %d cash flows)", bverrors.ErrInvalidInput, rate, len(series))
	}
	return npv, nil
}

func checkDiscountRate(rate float64) error {
	if math.IsNaN(rate) || math.IsInf(rate, 0) {
		return fmt.Errorf("%w: discount rate %v is not finite", bverrors.ErrInvalidInput, rate)
	}
	if rate <= -1 {
		return fmt.Errorf("%w: discount rate %v must be greater than -1", bverrors.ErrInvalidInput, rate)
	}
	return nil
}
