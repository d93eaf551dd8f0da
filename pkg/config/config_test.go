package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "rnpv-valuation", cfg.Temporal.TaskQueue)
	assert.Equal(t, "valuation:results", cfg.Storage.Redis.ResultsStream)
	assert.Equal(t, 6*time.Hour, cfg.Storage.Redis.SnapshotTTL)
	assert.Equal(t, 60, cfg.MarketData.RateLimit.RequestsPerMinute)

	a, err := cfg.Assumptions()
	require.NoError(t, err)
	assert.Equal(t, valuation.DefaultAssumptions(), a)
}

func TestLoadFileOverridesValuation(t *testing.T) {
	path := writeConfig(t, `
temporal:
  task_queue: custom-queue
valuation:
  discount_rate: 0.12
  combination_mode: concatenated
  probabilities:
    standard:
      "Phase 2": 0.40
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom-queue", cfg.Temporal.TaskQueue)

	a, err := cfg.Assumptions()
	require.NoError(t, err)
	assert.Equal(t, 0.12, a.DiscountRate)
	assert.Equal(t, valuation.CombineConcatenated, a.CombinationMode)
	assert.Equal(t, 0.40, a.Probabilities.Standard[valuation.Phase2])
	// 未覆盖的条目保留默认值
	assert.Equal(t, 0.60, a.Probabilities.Standard[valuation.Phase1])
	assert.Equal(t, 0.80, a.Probabilities.RareDisease[valuation.Phase3])
	assert.Equal(t, valuation.DefaultDelayCost, a.DelayCost)
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("VALUATION_DISCOUNT_RATE", "0.08")
	path := writeConfig(t, "system:\n  env: test\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 0.08, cfg.Valuation.DiscountRate)
}

func TestLoadFileRejectsInvalidValuation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown phase key", "valuation:\n  probabilities:\n    standard:\n      \"Phase 4\": 0.5\n"},
		{"probability above one", "valuation:\n  probabilities:\n    rare_disease:\n      \"Phase 1\": 1.5\n"},
		{"unknown combination mode", "valuation:\n  combination_mode: sideways\n"},
		{"discount rate minus one", "valuation:\n  discount_rate: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.True(t, bverrors.Is(err, bverrors.ErrConfigInvalid), err.Error())
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
