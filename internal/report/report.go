// Package report 渲染估值报告
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/leekchan/accounting"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// Format 输出格式
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// NotAvailable 缺失字段的占位文本
const NotAvailable = "N/A"

// ParseFormat 解析输出格式, 空串为 text
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%w: unknown output format %q", bverrors.ErrInvalidInput, s)
}

// Render 按格式输出报告
func Render(w io.Writer, r *valuation.Report, format Format) error {
	switch format {
	case FormatJSON:
		return RenderJSON(w, r)
	case FormatText, "":
		return RenderText(w, r)
	default:
		return fmt.Errorf("%w: unknown output format %q", bverrors.ErrInvalidInput, format)
	}
}

// RenderJSON 输出 JSON
func RenderJSON(w io.Writer, r *valuation.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// money 金额格式
var money = accounting.Accounting{Symbol: "$", Precision: 2}

// Money 金额文本
func Money(v float64) string {
	return money.FormatMoney(v)
}

// OptionalMoney 可缺失的金额, 缺失时为 N/A
func OptionalMoney(v *float64) string {
	if v == nil {
		return NotAvailable
	}
	return Money(*v)
}

// RenderText 输出终端可读的文本报告
func RenderText(w io.Writer, r *valuation.Report) error {
	p := message.NewPrinter(language.English)
	res := r.Result
	snap := r.Snapshot

	var b strings.Builder
	fmt.Fprintf(&b, "=== rNPV Valuation: %s ===\n\n", displayTicker(r.Ticker))

	b.WriteString("Company Summary\n")
	summary := strings.TrimSpace(snap.Summary)
	if summary == "" {
		summary = "No summary available."
	}
	fmt.Fprintf(&b, "  %s\n\n", summary)

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Balance Sheet Highlights")
	fmt.Fprintf(tw, "  Total Assets:\t%s\n", OptionalMoney(snap.TotalAssets))
	fmt.Fprintf(tw, "  Total Liabilities:\t%s\n", OptionalMoney(snap.TotalLiabilities))
	fmt.Fprintf(tw, "  Common Equity:\t%s\n", OptionalMoney(snap.CommonEquity))
	fmt.Fprintf(tw, "  Cash on Hand:\t%s\n", OptionalMoney(snap.CashOnHand))
	fmt.Fprintln(tw)

	fmt.Fprintln(tw, "Market Data")
	fmt.Fprintf(tw, "  Market Cap:\t%s\n", Money(snap.MarketCap))
	shares := p.Sprintf("%d", int64(res.EffectiveShares))
	if res.Degraded {
		shares += " (fallback)"
	}
	fmt.Fprintf(tw, "  Shares Outstanding:\t%s\n", shares)
	if snap.AnalystTarget != nil {
		fmt.Fprintf(tw, "  Analyst Target:\t%s\n", Money(*snap.AnalystTarget))
	}
	fmt.Fprintln(tw)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Projections) > 0 {
		b.WriteString("Pipeline Assets\n")
		tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "  #\tName\tPhase\tRare\tP(success)\tPeak Revenue\tYears\tStandalone NPV\t")
		for _, a := range r.Projections {
			rare := "no"
			if a.RareDisease {
				rare = "yes"
			}
			fmt.Fprintf(tw, "  %d\t%s\t%s\t%s\t%.0f%%\t%s\t%d\t%s\t\n",
				a.Index+1, a.Name, a.Phase, rare, a.Probability*100,
				Money(a.PeakRevenue), len(a.CashFlows), Money(a.StandaloneNPV))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		b.WriteString("\n")
	}

	tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Valuation")
	fmt.Fprintf(tw, "  Discount Rate:\t%.2f%%\n", res.DiscountRate*100)
	fmt.Fprintf(tw, "  Combination Mode:\t%s\n", res.CombinationMode)
	fmt.Fprintf(tw, "  Pipeline NPV:\t%s\n", Money(res.NPVPipeline))
	fmt.Fprintf(tw, "  Projected Market Cap:\t%s\n", Money(res.ProjectedMarketCap))
	fmt.Fprintf(tw, "  Current Price per Share:\t%s\n", Money(res.CurrentPricePerShare))
	fmt.Fprintf(tw, "  Projected Price per Share:\t%s\n", Money(res.ProjectedPricePerShare))
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(res.Annotations) > 0 {
		b.WriteString("\nNotes\n")
		for _, a := range res.Annotations {
			fmt.Fprintf(&b, "  [%s] %s\n", a.Code, a.Message)
		}
	}

	if len(r.Chart) > 0 {
		b.WriteString("\nRisk-Adjusted Cash Flows\n")
		tw = tabwriter.NewWriter(&b, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(tw, "  Year\tAmount\t")
		for _, pt := range r.Chart {
			fmt.Fprintf(tw, "  %d\t%s\t\n", pt.Year, Money(pt.Amount))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func displayTicker(t string) string {
	if t == "" {
		return "(manual snapshot)"
	}
	return t
}
