// Activity 类型定义
package activity

import (
	"github.com/biovalue-ai/rnpv/internal/valuation"
)

// Activity 名称, 工作流按名称调度
const (
	FetchMarketSnapshotName = "FetchMarketSnapshotActivity"
	SimulateAssetName       = "SimulateAssetActivity"
	AggregateValuationName  = "AggregateValuationActivity"
	InvalidateSnapshotName  = "InvalidateSnapshotActivity"
	NotifyCompensationName  = "NotifyCompensationFailure"
)

// ============== Market Snapshot ==============

// FetchSnapshotInput 市场数据获取输入
type FetchSnapshotInput struct {
	Ticker string `json:"ticker"`
}

// ============== Asset Simulation (单资产) ==============

// Overrides 单次估值对默认假设的覆盖, 上限为零时使用 Worker 配置
type Overrides struct {
	DiscountRate    *float64 `json:"discount_rate,omitempty"`
	CombinationMode string   `json:"combination_mode,omitempty"`
	MaxAssets       int      `json:"max_assets,omitempty"`
	MaxYears        int      `json:"max_years,omitempty"`
}

// SimulateAssetInput 单资产模拟输入
type SimulateAssetInput struct {
	Ticker    string                  `json:"ticker"`
	Index     int                     `json:"index"`
	Asset     valuation.PipelineAsset `json:"asset"`
	Overrides Overrides               `json:"overrides"`
}

// ============== Aggregation ==============

// AggregateInput 聚合输入, Projections 已按资产顺序排列
type AggregateInput struct {
	Ticker      string                      `json:"ticker"`
	Snapshot    valuation.MarketSnapshot    `json:"snapshot"`
	Projections []valuation.AssetProjection `json:"projections"`
	Overrides   Overrides                   `json:"overrides"`
	WorkflowID  string                      `json:"workflow_id"`
}

// PublishedResult 写入结果 Stream 的字段
type PublishedResult struct {
	Ticker                 string  `json:"ticker"`
	WorkflowID             string  `json:"workflow_id"`
	NPVPipeline            float64 `json:"npv_pipeline"`
	CurrentPricePerShare   float64 `json:"current_price_per_share"`
	ProjectedPricePerShare float64 `json:"projected_price_per_share"`
	CombinationMode        string  `json:"combination_mode"`
	Degraded               bool    `json:"degraded"`
}

// Values 转换为 XADD 字段
func (p PublishedResult) Values(report []byte) map[string]interface{} {
	return map[string]interface{}{
		"ticker":                    p.Ticker,
		"workflow_id":               p.WorkflowID,
		"npv_pipeline":              p.NPVPipeline,
		"current_price_per_share":   p.CurrentPricePerShare,
		"projected_price_per_share": p.ProjectedPricePerShare,
		"combination_mode":          p.CombinationMode,
		"degraded":                  p.Degraded,
		"report":                    string(report),
	}
}
