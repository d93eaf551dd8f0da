package valuation

import (
	"fmt"
	"math"

	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

const (
	// DefaultMaxYears 单段年数上限
	DefaultMaxYears = 50
	// DefaultMaxAssets 每次估值的资产数上限
	DefaultMaxAssets = 10
)

// Assumptions 估值假设, 替代全局常量, 可按场景覆盖
type Assumptions struct {
	DiscountRate    float64          `json:"discount_rate"`
	DelayCost       float64          `json:"delay_cost"`
	FallbackShares  float64          `json:"fallback_shares_outstanding"`
	CombinationMode CombinationMode  `json:"combination_mode"`
	Probabilities   ProbabilityTable `json:"probabilities"`
	MaxYears        int              `json:"max_years"`
	MaxAssets       int              `json:"max_assets"`
}

// DefaultAssumptions 默认假设
func DefaultAssumptions() Assumptions {
	return Assumptions{
		DiscountRate:    DefaultDiscountRate,
		DelayCost:       DefaultDelayCost,
		FallbackShares:  DefaultFallbackShares,
		CombinationMode: CombinePerAsset,
		Probabilities:   DefaultProbabilityTable(),
		MaxYears:        DefaultMaxYears,
		MaxAssets:       DefaultMaxAssets,
	}
}

// Validate 校验假设本身
func (a Assumptions) Validate() error {
	if err := checkDiscountRate(a.DiscountRate); err != nil {
		return err
	}
	if math.IsNaN(a.DelayCost) || math.IsInf(a.DelayCost, 0) {
		return fmt.Errorf("%w: delay cost %v is not finite", bverrors.ErrInvalidInput, a.DelayCost)
	}
	if a.FallbackShares <= 0 {
		return fmt.Errorf("%w: fallback shares outstanding must be positive, got %v", bverrors.ErrInvalidInput, a.FallbackShares)
	}
	if _, err := ParseCombinationMode(string(a.CombinationMode)); err != nil {
		return err
	}
	if a.MaxYears <= 0 || a.MaxAssets <= 0 {
		return fmt.Errorf("%w: max years and max assets must be positive", bverrors.ErrInvalidInput)
	}
	return a.Probabilities.Validate()
}

// ValidateAsset 在进入核心计算前校验单个资产
func ValidateAsset(asset PipelineAsset, maxYears int) error {
	if maxYears <= 0 {
		maxYears = DefaultMaxYears
	}
	if !asset.Phase.Valid() {
		return fmt.Errorf("%w: unknown clinical phase %d", bverrors.ErrInvalidInput, int(asset.Phase))
	}
	if asset.EligiblePopulation < 0 {
		return fmt.Errorf("%w: eligible population %d is negative", bverrors.ErrInvalidInput, asset.EligiblePopulation)
	}
	if err := checkRange("price per patient", asset.PricePerPatient, 0, math.MaxFloat64); err != nil {
		return err
	}
	if err := checkRange("market penetration rate", asset.MarketPenetrationRate, 0, 100); err != nil {
		return err
	}
	if err := checkYears("delay years", asset.DelayYears, 0, maxYears); err != nil {
		return err
	}

	switch asset.Model() {
	case CurveRampPeakDecline:
		for _, y := range []struct {
			name  string
			value int
		}{
			{"ramp years", asset.RampYears},
			{"peak years", asset.PeakYears},
			{"decline years", asset.DeclineYears},
		} {
			if err := checkYears(y.name, y.value, 1, maxYears); err != nil {
				return err
			}
		}
		return checkRange("decline rate", asset.DeclineRate, 0, 1)

	case CurveGrowth:
		if err := checkRange("initial revenue", asset.InitialRevenue, 0, math.MaxFloat64); err != nil {
			return err
		}
		if err := checkRange("growth rate", asset.GrowthRate, -100, math.MaxFloat64); err != nil {
			return err
		}
		return checkYears("years to simulate", asset.YearsToSimulate, 1, maxYears)
	}
	return fmt.Errorf("%w: unknown curve model %q", bverrors.ErrInvalidInput, asset.CurveModel)
}

// ValidateAssets 校验资产列表, 错误信息带资产序号
func ValidateAssets(assets []PipelineAsset, maxAssets, maxYears int) error {
	if maxAssets <= 0 {
		maxAssets = DefaultMaxAssets
	}
	if len(assets) == 0 {
		return fmt.Errorf("%w: at least one pipeline asset is required", bverrors.ErrInvalidInput)
	}
	if len(assets) > maxAssets {
		return fmt.Errorf("%w: %d pipeline assets exceeds the limit of %d", bverrors.ErrInvalidInput, len(assets), maxAssets)
	}
	for i, asset := range assets {
		if err := ValidateAsset(asset, maxYears); err != nil {
			return fmt.Errorf("%s: %w", asset.Label(i), err)
		}
	}
	return nil
}

func checkRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return fmt.Errorf("%w: %s %v outside [%v, %v]", bverrors.ErrInvalidInput, name, v, lo, hi)
	}
	return nil
}

func checkYears(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d outside [%d, %d]", bverrors.ErrInvalidInput, name, v, lo, hi)
	}
	return nil
}
