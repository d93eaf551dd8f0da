package valuation

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

func TestDefaultProbabilityTable(t *testing.T) {
	table := DefaultProbabilityTable()
	require.NoError(t, table.Validate())

	tests := []struct {
		phase    Phase
		rare     bool
		expected float64
	}{
		{Phase1, false, 0.60},
		{Phase2, false, 0.36},
		{Phase3, false, 0.63},
		{Phase1, true, 0.70},
		{Phase2, true, 0.45},
		{Phase3, true, 0.80},
	}

	for _, tt := range tests {
		p, err := table.Lookup(tt.phase, tt.rare)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, p, "%s rare=%t", tt.phase, tt.rare)
	}
}

func TestProbabilityLookupUnknownPhase(t *testing.T) {
	_, err := DefaultProbabilityTable().Lookup(Phase(7), false)
	require.Error(t, err)
	assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput))
}

func TestProbabilityTableValidate(t *testing.T) {
	missing := DefaultProbabilityTable()
	delete(missing.RareDisease, Phase3)
	err := missing.Validate()
	require.Error(t, err)
	assert.True(t, bverrors.Is(err, bverrors.ErrConfigInvalid))

	outOfRange := DefaultProbabilityTable()
	outOfRange.Standard[Phase2] = 1.2
	err = outOfRange.Validate()
	require.Error(t, err)
	assert.True(t, bverrors.Is(err, bverrors.ErrConfigInvalid))
}

func TestRiskAdjustElementwise(t *testing.T) {
	input := CashFlowSeries{3.5e8, 3.5e9, 3.5e9, 3.15e9}
	adjusted, err := RiskAdjust(input, 0.36)
	require.NoError(t, err)

	require.Len(t, adjusted, len(input))
	for i := range input {
		assert.Equal(t, input[i]*0.36, adjusted[i])
	}
	assert.Equal(t, CashFlowSeries{3.5e8, 3.5e9, 3.5e9, 3.15e9}, input, "input must not be mutated")
}

func TestRiskAdjustEmptySeries(t *testing.T) {
	adjusted, err := RiskAdjust(nil, 0.5)
	require.NoError(t, err)
	assert.Empty(t, adjusted)
}

func TestRiskAdjustRejectsInvalidProbability(t *testing.T) {
	for _, p := range []float64{0, -0.1, 1.01, math.NaN()} {
		_, err := RiskAdjust(CashFlowSeries{1}, p)
		require.Error(t, err, "probability %v", p)
		assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput))
	}
}

func TestParsePhase(t *testing.T) {
	tests := []struct {
		input    string
		expected Phase
	}{
		{"Phase 1", Phase1},
		{"phase2", Phase2},
		{"PHASE_3", Phase3},
		{"p2", Phase2},
		{"3", Phase3},
		{" Phase II ", Phase2},
	}
	for _, tt := range tests {
		got, err := ParsePhase(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got, tt.input)
	}

	_, err := ParsePhase("Phase 4")
	require.Error(t, err)
	assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput))
}

func TestPhaseJSON(t *testing.T) {
	data, err := json.Marshal(PipelineAsset{Phase: Phase3})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"Phase 3"`)

	var asset PipelineAsset
	require.NoError(t, json.Unmarshal([]byte(`{"phase":"phase 2"}`), &asset))
	assert.Equal(t, Phase2, asset.Phase)

	assert.Error(t, json.Unmarshal([]byte(`{"phase":"Phase Four"}`), &asset))
}
