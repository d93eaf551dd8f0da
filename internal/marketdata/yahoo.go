package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	"github.com/biovalue-ai/rnpv/pkg/config"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
	"github.com/biovalue-ai/rnpv/pkg/logging"
	"github.com/biovalue-ai/rnpv/pkg/metrics"
	"github.com/biovalue-ai/rnpv/pkg/tracing"
)

// quoteSummaryModules 请求的 quoteSummary 模块
var quoteSummaryModules = []string{
	"price",
	"defaultKeyStatistics",
	"financialData",
	"summaryProfile",
	"balanceSheetHistory",
}

// limiterBurst 限速器的突发容量
const limiterBurst = 5

// rawValue Yahoo 数值字段 ({"raw": 1.0, "fmt": "1.00"})
type rawValue struct {
	Raw *float64 `json:"raw"`
}

// quoteSummaryResponse quoteSummary 接口响应
type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []quoteSummaryResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

type quoteSummaryResult struct {
	Price struct {
		MarketCap rawValue `json:"marketCap"`
	} `json:"price"`
	DefaultKeyStatistics struct {
		SharesOutstanding rawValue `json:"sharesOutstanding"`
	} `json:"defaultKeyStatistics"`
	FinancialData struct {
		TotalCash       rawValue `json:"totalCash"`
		TotalRevenue    rawValue `json:"totalRevenue"`
		TargetMeanPrice rawValue `json:"targetMeanPrice"`
	} `json:"financialData"`
	SummaryProfile struct {
		LongBusinessSummary string `json:"longBusinessSummary"`
	} `json:"summaryProfile"`
	BalanceSheetHistory struct {
		Statements []struct {
			TotalAssets            rawValue `json:"totalAssets"`
			TotalLiab              rawValue `json:"totalLiab"`
			TotalStockholderEquity rawValue `json:"totalStockholderEquity"`
		} `json:"balanceSheetStatements"`
	} `json:"balanceSheetHistory"`
}

// YahooClient Yahoo Finance 市场数据客户端
type YahooClient struct {
	cfg        config.MarketDataConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

var _ Fetcher = (*YahooClient)(nil)

// NewYahooClient 创建 Yahoo Finance 客户端
func NewYahooClient(cfg config.MarketDataConfig, logger *zap.Logger) *YahooClient {
	rpm := cfg.RateLimit.RequestsPerMinute
	if rpm <= 0 {
		rpm = 60
	}
	return &YahooClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), limiterBurst),
		logger:     logger.With(zap.String("component", "yahoo")),
		now:        time.Now,
	}
}

// FetchSnapshot 获取市值, 流通股数, 资产负债表摘要和公司简介
func (c *YahooClient) FetchSnapshot(ctx context.Context, ticker string) (*valuation.MarketSnapshot, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "marketdata.fetch_snapshot")
	defer span.End()
	span.SetAttributes(attribute.String("ticker", t))

	result, err := c.quoteSummary(ctx, t)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	snapshot, err := buildSnapshot(t, result)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	snapshot.FetchedAt = c.now().UTC()

	if snapshot.Summary == "" {
		summary, err := c.profileSummary(ctx, t)
		if err != nil {
			c.logger.Debug("Profile page fallback failed", zap.String("ticker", t), zap.Error(err))
		}
		snapshot.Summary = summary
	}
	if snapshot.Summary == "" {
		snapshot.Summary = DefaultSummary
	}

	if snapshot.SharesOutstanding <= 0 {
		logging.WithTrace(ctx, c.logger).Warn("Shares outstanding unavailable", zap.String("ticker", t))
	}
	return snapshot, nil
}

func (c *YahooClient) quoteSummary(ctx context.Context, ticker string) (*quoteSummaryResult, error) {
	endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?modules=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		url.PathEscape(ticker),
		url.QueryEscape(strings.Join(quoteSummaryModules, ",")),
	)

	body, err := c.get(ctx, "quote_summary", endpoint, "application/json")
	if err != nil {
		return nil, err
	}

	var resp quoteSummaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: failed to parse quote summary for %s: %v", bverrors.ErrDataFetch, ticker, err)
	}
	if resp.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", bverrors.ErrDataFetch, resp.QuoteSummary.Error.Code, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("%w: no data found for ticker %s", bverrors.ErrDataFetch, ticker)
	}
	return &resp.QuoteSummary.Result[0], nil
}

// profileSummary 从公司概况页面抓取简介
func (c *YahooClient) profileSummary(ctx context.Context, ticker string) (string, error) {
	endpoint := fmt.Sprintf("%s/quote/%s/profile", strings.TrimRight(c.cfg.ProfileURL, "/"), url.PathEscape(ticker))

	body, err := c.get(ctx, "profile", endpoint, "text/html")
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	var summary string
	doc.Find(`section[data-testid="description"] p, section.quote-sub-section p`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		summary = strings.TrimSpace(s.Text())
		return summary == ""
	})
	if summary == "" {
		if content, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok {
			summary = strings.TrimSpace(content)
		}
	}
	return summary, nil
}

func (c *YahooClient) get(ctx context.Context, name, endpoint, accept string) ([]byte, error) {
	ctx, span := tracing.StartSpan(ctx, "marketdata."+name)
	defer span.End()

	if err := c.limiter.Wait(ctx); err != nil {
		metrics.MarketDataRequests.WithLabelValues(name, "rate_limited").Inc()
		return nil, fmt.Errorf("%w: %v", bverrors.ErrRateLimited, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// 模拟浏览器请求头
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.MarketDataLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MarketDataRequests.WithLabelValues(name, "error").Inc()
		tracing.RecordError(ctx, err)
		return nil, fmt.Errorf("%w: request failed: %v", bverrors.ErrDataFetch, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	metrics.MarketDataRequests.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		logging.WithTrace(ctx, c.logger).Warn("Market data request failed",
			zap.String("request", name),
			zap.Int("status", resp.StatusCode),
		)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %w: provider returned status %d", bverrors.ErrDataFetch, bverrors.ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: provider returned status %d", bverrors.ErrDataFetch, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", bverrors.ErrDataFetch, err)
	}
	return body, nil
}

// buildSnapshot 缺市值视为数据获取失败, 缺股数记为 0 交给聚合器兜底
func buildSnapshot(ticker string, r *quoteSummaryResult) (*valuation.MarketSnapshot, error) {
	if r.Price.MarketCap.Raw == nil {
		return nil, fmt.Errorf("%w: market cap unavailable for %s", bverrors.ErrDataFetch, ticker)
	}

	snapshot := &valuation.MarketSnapshot{
		Ticker:         ticker,
		MarketCap:      *r.Price.MarketCap.Raw,
		CashOnHand:     r.FinancialData.TotalCash.Raw,
		CurrentRevenue: r.FinancialData.TotalRevenue.Raw,
		AnalystTarget:  r.FinancialData.TargetMeanPrice.Raw,
		Summary:        strings.TrimSpace(r.SummaryProfile.LongBusinessSummary),
	}
	if r.DefaultKeyStatistics.SharesOutstanding.Raw != nil {
		snapshot.SharesOutstanding = *r.DefaultKeyStatistics.SharesOutstanding.Raw
	}

	// 多个报告期取最大值
	for _, s := range r.BalanceSheetHistory.Statements {
		snapshot.TotalAssets = maxOf(snapshot.TotalAssets, s.TotalAssets.Raw)
		snapshot.TotalLiabilities = maxOf(snapshot.TotalLiabilities, s.TotalLiab.Raw)
		snapshot.CommonEquity = maxOf(snapshot.CommonEquity, s.TotalStockholderEquity.Raw)
	}
	return snapshot, nil
}

func maxOf(current, candidate *float64) *float64 {
	if candidate == nil {
		return current
	}
	if current == nil || *candidate > *current {
		v := *candidate
		return &v
	}
	return current
}
