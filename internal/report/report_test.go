package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

func exampleReport(t *testing.T, snapshot valuation.MarketSnapshot) *valuation.Report {
	t.Helper()
	engine, err := valuation.NewEngine(valuation.DefaultAssumptions())
	require.NoError(t, err)

	report, err := engine.Value(snapshot, []valuation.PipelineAsset{{
		Name:                  "EX-101",
		Phase:                 valuation.Phase2,
		EligiblePopulation:    100_000,
		PricePerPatient:       50_000,
		MarketPenetrationRate: 70,
		RampYears:             2,
		PeakYears:             1,
		DeclineYears:          1,
		DeclineRate:           0.1,
	}})
	require.NoError(t, err)
	return report
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$5,000,000,000.00", Money(5e9))
	assert.Equal(t, "$50.00", Money(50))
	assert.Equal(t, NotAvailable, OptionalMoney(nil))
	v := 1234.5
	assert.Equal(t, "$1,234.50", OptionalMoney(&v))
}

func TestRenderTextFullSnapshot(t *testing.T) {
	assets := 1.1e9
	report := exampleReport(t, valuation.MarketSnapshot{
		Ticker:            "EXMP",
		MarketCap:         5e9,
		SharesOutstanding: 1e8,
		TotalAssets:       &assets,
		Summary:           "Example Therapeutics develops medicines.",
	})

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, FormatText))
	out := buf.String()

	assert.Contains(t, out, "=== rNPV Valuation: EXMP ===")
	assert.Contains(t, out, "Example Therapeutics develops medicines.")
	assert.Regexp(t, `Total Assets:\s+\$1,100,000,000\.00`, out)
	assert.Regexp(t, `Total Liabilities:\s+N/A`, out)
	assert.Regexp(t, `Common Equity:\s+N/A`, out)
	assert.Regexp(t, `Shares Outstanding:\s+100,000,000\n`, out)
	assert.Regexp(t, `Current Price per Share:\s+\$50\.00`, out)
	assert.Regexp(t, `Combination Mode:\s+per_asset`, out)
	assert.Regexp(t, `Discount Rate:\s+10\.00%`, out)
	assert.Contains(t, out, "EX-101")
	assert.Contains(t, out, "Phase 2")
	assert.Contains(t, out, "36%")
	assert.Contains(t, out, "Risk-Adjusted Cash Flows")
	assert.NotContains(t, out, "Notes")
}

func TestRenderTextDegradedSnapshot(t *testing.T) {
	report := exampleReport(t, valuation.MarketSnapshot{Ticker: "EXMP", MarketCap: 5e9})

	var buf bytes.Buffer
	require.NoError(t, RenderText(&buf, report))
	out := buf.String()

	assert.Contains(t, out, "No summary available.")
	assert.Regexp(t, `Shares Outstanding:\s+1,000,000 \(fallback\)`, out)
	assert.Contains(t, out, "["+valuation.AnnotationSharesFallback+"]")
	assert.Regexp(t, `Current Price per Share:\s+\$5,000\.00`, out)
}

func TestRenderJSON(t *testing.T) {
	report := exampleReport(t, valuation.MarketSnapshot{Ticker: "EXMP", MarketCap: 5e9, SharesOutstanding: 1e8})

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, FormatJSON))

	var decoded valuation.Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "EXMP", decoded.Ticker)
	assert.Equal(t, valuation.Phase2, decoded.Projections[0].Phase)
	assert.InDelta(t, report.Result.NPVPipeline, decoded.Result.NPVPipeline, 1e-6)
	assert.Len(t, decoded.Chart, 4)
	assert.Contains(t, buf.String(), `"phase": "Phase 2"`)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	f, err = ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("xml")
	assert.True(t, bverrors.Is(err, bverrors.ErrInvalidInput))
}
