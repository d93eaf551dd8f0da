package valuation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleParams() CurveParams {
	return CurveParams{
		EligiblePopulation:    100_000,
		PricePerPatient:       50_000,
		MarketPenetrationRate: 70,
		RampYears:             2,
		PeakYears:             1,
		DeclineYears:          1,
		DeclineRate:           0.1,
	}
}

func TestRevenueCurveExample(t *testing.T) {
	curve := RevenueCurve(exampleParams())

	expected := []float64{3.5e8, 3.5e9, 3.5e9, 3.15e9}
	require.Len(t, curve, len(expected))
	for i := range expected {
		assert.InEpsilon(t, expected[i], curve[i], 1e-12, "year %d", i+1)
	}
}

func TestRevenueCurveLength(t *testing.T) {
	tests := []struct {
		ramp, peak, decline int
	}{
		{1, 1, 1},
		{2, 1, 1},
		{5, 3, 7},
		{10, 10, 30},
		{50, 50, 50},
	}

	for _, tt := range tests {
		p := exampleParams()
		p.RampYears, p.PeakYears, p.DeclineYears = tt.ramp, tt.peak, tt.decline
		curve := RevenueCurve(p)
		assert.Len(t, curve, tt.ramp+tt.peak+tt.decline, "ramp=%d peak=%d decline=%d", tt.ramp, tt.peak, tt.decline)
	}
}

func TestRevenueCurveRampEndpoints(t *testing.T) {
	p := exampleParams()
	p.RampYears = 4
	peak := p.PeakRevenue()

	curve := RevenueCurve(p)
	assert.InEpsilon(t, 0.1*peak, curve[0], 1e-12)
	assert.InEpsilon(t, 0.4*peak, curve[1], 1e-12)
	assert.InEpsilon(t, 0.7*peak, curve[2], 1e-12)
	assert.InEpsilon(t, peak, curve[3], 1e-12)
}

func TestRevenueCurveSingleRampYearStartsAtTenPercent(t *testing.T) {
	p := exampleParams()
	p.RampYears = 1

	curve := RevenueCurve(p)
	assert.InEpsilon(t, 0.1*p.PeakRevenue(), curve[0], 1e-12)
}

func TestRevenueCurvePeakSegmentConstant(t *testing.T) {
	p := exampleParams()
	p.RampYears, p.PeakYears, p.DeclineYears = 3, 6, 2

	curve := RevenueCurve(p)
	peak := curve[3]
	assert.InEpsilon(t, 100_000*50_000*0.7, peak, 1e-12)
	for _, v := range curve[3:9] {
		assert.Equal(t, peak, v)
	}
}

func TestRevenueCurveDeclineSegment(t *testing.T) {
	p := exampleParams()
	p.RampYears, p.PeakYears, p.DeclineYears = 2, 2, 12

	t.Run("decaying", func(t *testing.T) {
		p.DeclineRate = 0.25
		decline := RevenueCurve(p)[4:]
		prev := p.PeakRevenue()
		for i, v := range decline {
			assert.LessOrEqual(t, v, prev, "decline year %d", i+1)
			assert.Greater(t, v, 0.0, "geometric decay never reaches zero")
			prev = v
		}
	})

	t.Run("flat", func(t *testing.T) {
		p.DeclineRate = 0
		for _, v := range RevenueCurve(p)[4:] {
			assert.Equal(t, p.PeakRevenue(), v)
		}
	})
}

func TestRevenueCurveZeroInputsYieldZeroCurve(t *testing.T) {
	p := exampleParams()
	p.EligiblePopulation = 0
	for _, v := range RevenueCurve(p) {
		assert.Zero(t, v)
	}

	p = exampleParams()
	p.PricePerPatient = 0
	for _, v := range RevenueCurve(p) {
		assert.Zero(t, v)
	}
}

func TestGrowthCurve(t *testing.T) {
	p := CurveParams{EligiblePopulation: 1000, PricePerPatient: 100, MarketPenetrationRate: 50}

	curve := GrowthCurve(p, 1e6, 10, 3)
	require.Len(t, curve, 3)
	assert.InEpsilon(t, 1_050_000.0, curve[0], 1e-12)
	assert.InEpsilon(t, 1_155_000.0, curve[1], 1e-12)
	assert.InEpsilon(t, 1_270_500.0, curve[2], 1e-12)
}

func TestSimulateCashFlowsPrependsDelayCost(t *testing.T) {
	asset := PipelineAsset{
		Phase:                 Phase2,
		EligiblePopulation:    100_000,
		PricePerPatient:       50_000,
		MarketPenetrationRate: 70,
		DelayYears:            3,
		RampYears:             2,
		PeakYears:             1,
		DeclineYears:          1,
		DeclineRate:           0.1,
	}

	flows := SimulateCashFlows(asset, DefaultDelayCost)
	require.Len(t, flows, 3+2+1+1)
	for _, v := range flows[:3] {
		assert.Equal(t, -500e6, v)
	}
	assert.InEpsilon(t, 3.5e8, flows[3], 1e-12)
	assert.InEpsilon(t, 3.15e9, flows[6], 1e-12)
}

func TestSimulateCashFlowsGrowthModel(t *testing.T) {
	asset := PipelineAsset{
		Phase:                 Phase1,
		EligiblePopulation:    1000,
		PricePerPatient:       100,
		MarketPenetrationRate: 50,
		DelayYears:            1,
		CurveModel:            CurveGrowth,
		InitialRevenue:        1e6,
		GrowthRate:            10,
		YearsToSimulate:       2,
	}

	flows := SimulateCashFlows(asset, -1e6)
	require.Len(t, flows, 3)
	assert.Equal(t, -1e6, flows[0])
	assert.InEpsilon(t, 1_050_000.0, flows[1], 1e-12)
}

func TestPrependDelayDoesNotMutateInput(t *testing.T) {
	revenue := CashFlowSeries{1, 2, 3}
	flows := PrependDelay(revenue, 2, -10)

	assert.Equal(t, CashFlowSeries{-10, -10, 1, 2, 3}, flows)
	assert.Equal(t, CashFlowSeries{1, 2, 3}, revenue)
}
