package valuation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

func TestNPVEmptySeriesIsZero(t *testing.T) {
	for _, rate := range []float64{-0.99, -0.5, 0, 0.1, 0.35, 5} {
		npv, err := NPV(nil, rate)
		require.NoError(t, err)
		assert.Equal(t, 0.0, npv, "rate %v", rate)

		npv, err = NPV(CashFlowSeries{}, rate)
		require.NoError(t, err)
		assert.Equal(t, 0.0, npv, "rate %v", rate)
	}
}

func TestNPVFirstCashFlowDiscountedOnePeriod(t *testing.T) {
	npv, err := NPV(CashFlowSeries{110}, 0.10)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, npv, 1e-9)

	npv, err = NPV(CashFlowSeries{0, 121}, 0.10)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, npv, 1e-9)
}

func TestNPVZeroRateIsPlainSum(t *testing.T) {
	npv, err := NPV(CashFlowSeries{1, 2, 3, -4}, 0)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, npv, 1e-12)
}

func TestNPVIsLinear(t *testing.T) {
	flows := CashFlowSeries{-5e8, 1.26e8, 1.26e9, 1.26e9, 1.134e9}
	base, err := NPV(flows, 0.12)
	require.NoError(t, err)

	for _, scale := range []float64{0, 0.36, 2, -1.5} {
		scaled := make(CashFlowSeries, len(flows))
		for i, cf := range flows {
			scaled[i] = cf * scale
		}
		got, err := NPV(scaled, 0.12)
		require.NoError(t, err)
		assert.InDelta(t, scale*base, got, math.Abs(base)*1e-12+1e-6, "scale %v", scale)
	}
}

func TestNPVRejectsUndefinedRates(t *testing.T) {
	tests := []struct {
		name string
		rate float64
	}{
		{"minus one", -1},
		{"below minus one", -1.5},
		{"NaN", math.NaN()},
		{"positive infinity", math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NPV(CashFlowSeries{100, 200}, tt.rate)
			require.Error(t, err)
			assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput))
		})
	}
}

func TestNPVRejectsOverflow(t *testing.T) {
	_, err := NPV(CashFlowSeries{math.MaxFloat64, math.MaxFloat64}, 0)
	require.Error(t, err)
	assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput))
}
