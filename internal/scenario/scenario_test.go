package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

const fullScenario = `
ticker: EXMP
discount_rate: 0.12
combination_mode: concatenated
snapshot:
  market_cap: 5000000000
  shares_outstanding: 100000000
  total_assets: 1100000000
  summary: Example Therapeutics
assets:
  - name: EX-101
    phase: Phase 2
    eligible_population: 100000
    price_per_patient: 50000
    market_penetration_rate: 70
    ramp_years: 2
    peak_years: 1
    decline_years: 1
    decline_rate: 0.1
  - name: EX-202
    phase: 3
    rare_disease: true
    eligible_population: 8000
    price_per_patient: 250000
    market_penetration_rate: 40
    delay_years: 2
    curve_model: growth
    initial_revenue: 1000000
    growth_rate: 8
    years_to_simulate: 6
`

func TestParseFullScenario(t *testing.T) {
	s, err := Parse([]byte(fullScenario))
	require.NoError(t, err)

	assert.Equal(t, "EXMP", s.Ticker)
	require.NotNil(t, s.DiscountRate)
	assert.Equal(t, 0.12, *s.DiscountRate)
	assert.Equal(t, "concatenated", s.CombinationMode)

	require.Len(t, s.Assets, 2)
	assert.Equal(t, valuation.Phase2, s.Assets[0].Phase)
	assert.Equal(t, int64(100_000), s.Assets[0].EligiblePopulation)
	assert.Equal(t, valuation.CurveRampPeakDecline, s.Assets[0].Model())

	assert.Equal(t, valuation.Phase3, s.Assets[1].Phase)
	assert.True(t, s.Assets[1].RareDisease)
	assert.Equal(t, valuation.CurveGrowth, s.Assets[1].Model())
	assert.Equal(t, 6, s.Assets[1].YearsToSimulate)

	require.NotNil(t, s.Snapshot)
	snapshot := s.Snapshot.MarketSnapshot(s.Ticker)
	assert.Equal(t, "EXMP", snapshot.Ticker)
	assert.Equal(t, 5e9, snapshot.MarketCap)
	require.NotNil(t, snapshot.TotalAssets)
	assert.Equal(t, 1.1e9, *snapshot.TotalAssets)
	assert.Nil(t, snapshot.CommonEquity)
}

func TestParseRejectsInvalidScenarios(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty document", ""},
		{"no ticker or snapshot", "assets:\n  - phase: Phase 1\n"},
		{"no assets", "ticker: EXMP\n"},
		{"unknown phase", "ticker: EXMP\nassets:\n  - phase: Phase 4\n"},
		{"unknown field", "ticker: EXMP\nhorizon: 10\nassets:\n  - phase: Phase 1\n"},
		{"unknown combination mode", "ticker: EXMP\ncombination_mode: sideways\nassets:\n  - phase: Phase 1\n"},
		{"malformed yaml", "ticker: [EXMP\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.body))
			require.Error(t, err)
			assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput), err.Error())
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullScenario), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, s.Assets, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExampleScenarioValues(t *testing.T) {
	s, err := Load(filepath.Join("..", "..", "scenarios", "example.yaml"))
	require.NoError(t, err)

	engine, err := valuation.NewEngine(valuation.DefaultAssumptions())
	require.NoError(t, err)

	report, err := engine.Value(valuation.MarketSnapshot{Ticker: s.Ticker, MarketCap: 5e9, SharesOutstanding: 1e8}, s.Assets)
	require.NoError(t, err)
	assert.InDelta(t, 2_877_061_676.115, report.Result.NPVPipeline, 1e-2)
}
