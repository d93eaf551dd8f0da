package valuation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

func TestValidateAsset(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *PipelineAsset)
		wantErr bool
	}{
		{name: "valid", mutate: func(a *PipelineAsset) {}},
		{name: "zero population allowed", mutate: func(a *PipelineAsset) { a.EligiblePopulation = 0 }},
		{name: "penetration upper bound", mutate: func(a *PipelineAsset) { a.MarketPenetrationRate = 100 }},
		{name: "unknown phase", mutate: func(a *PipelineAsset) { a.Phase = Phase(4) }, wantErr: true},
		{name: "negative population", mutate: func(a *PipelineAsset) { a.EligiblePopulation = -1 }, wantErr: true},
		{name: "negative price", mutate: func(a *PipelineAsset) { a.PricePerPatient = -1 }, wantErr: true},
		{name: "NaN price", mutate: func(a *PipelineAsset) { a.PricePerPatient = math.NaN() }, wantErr: true},
		{name: "penetration above 100", mutate: func(a *PipelineAsset) { a.MarketPenetrationRate = 100.5 }, wantErr: true},
		{name: "negative delay", mutate: func(a *PipelineAsset) { a.DelayYears = -1 }, wantErr: true},
		{name: "zero ramp", mutate: func(a *PipelineAsset) { a.RampYears = 0 }, wantErr: true},
		{name: "decline too long", mutate: func(a *PipelineAsset) { a.DeclineYears = DefaultMaxYears + 1 }, wantErr: true},
		{name: "decline rate above 1", mutate: func(a *PipelineAsset) { a.DeclineRate = 1.2 }, wantErr: true},
		{name: "unknown curve model", mutate: func(a *PipelineAsset) { a.CurveModel = "logistic" }, wantErr: true},
		{
			name: "growth model",
			mutate: func(a *PipelineAsset) {
				a.CurveModel = CurveGrowth
				a.InitialRevenue = 1e6
				a.GrowthRate = 5
				a.YearsToSimulate = 10
			},
		},
		{
			name: "growth model needs years",
			mutate: func(a *PipelineAsset) {
				a.CurveModel = CurveGrowth
				a.YearsToSimulate = 0
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset := examplePhase2Asset()
			tt.mutate(&asset)

			err := ValidateAsset(asset, 0)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput))
		})
	}
}

func TestValidateAssetsLabelsFailingAsset(t *testing.T) {
	bad := examplePhase2Asset()
	bad.Name = ""
	bad.RampYears = 0

	err := ValidateAssets([]PipelineAsset{examplePhase2Asset(), bad}, 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Asset 2")
	assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput))
}

func TestValidateAssetsCount(t *testing.T) {
	assert.Error(t, ValidateAssets(nil, 0, 0))

	assets := make([]PipelineAsset, 3)
	for i := range assets {
		assets[i] = examplePhase2Asset()
	}
	assert.NoError(t, ValidateAssets(assets, 3, 0))
	assert.Error(t, ValidateAssets(assets, 2, 0))
}

func TestAssumptionsValidate(t *testing.T) {
	require.NoError(t, DefaultAssumptions().Validate())

	tests := []struct {
		name   string
		mutate func(a *Assumptions)
	}{
		{name: "rate at -1", mutate: func(a *Assumptions) { a.DiscountRate = -1 }},
		{name: "infinite delay cost", mutate: func(a *Assumptions) { a.DelayCost = math.Inf(-1) }},
		{name: "zero fallback shares", mutate: func(a *Assumptions) { a.FallbackShares = 0 }},
		{name: "unknown mode", mutate: func(a *Assumptions) { a.CombinationMode = "sum" }},
		{name: "zero max assets", mutate: func(a *Assumptions) { a.MaxAssets = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DefaultAssumptions()
			tt.mutate(&a)
			assert.Error(t, a.Validate())
		})
	}
}
