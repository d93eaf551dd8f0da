// 估值核心类型定义
package valuation

import (
	"fmt"
	"strings"
	"time"

	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// ============== Phase ==============

// Phase 临床阶段 (封闭枚举)
type Phase int

const (
	Phase1 Phase = iota + 1
	Phase2
	Phase3
)

// Phases 所有合法阶段, 按顺序
var Phases = []Phase{Phase1, Phase2, Phase3}

func (p Phase) String() string {
	switch p {
	case Phase1:
		return "Phase 1"
	case Phase2:
		return "Phase 2"
	case Phase3:
		return "Phase 3"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Valid 是否为合法阶段
func (p Phase) Valid() bool {
	return p >= Phase1 && p <= Phase3
}

// ParsePhase 解析阶段文本, 支持 "Phase 1" / "phase1" / "p1" / "1"
func ParsePhase(s string) (Phase, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "")
	norm = strings.ReplaceAll(norm, "_", "")
	norm = strings.TrimPrefix(norm, "phase")
	norm = strings.TrimPrefix(norm, "p")

	switch norm {
	case "1", "i":
		return Phase1, nil
	case "2", "ii":
		return Phase2, nil
	case "3", "iii":
		return Phase3, nil
	}
	return 0, fmt.Errorf("%w: unknown clinical phase %q", bverrors.ErrInvalidInput, s)
}

// MarshalText 实现 encoding.TextMarshaler
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: unknown clinical phase %d", bverrors.ErrInvalidInput, int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ============== Pipeline Asset ==============

// CurveModel 收入曲线模型
type CurveModel string

const (
	// CurveRampPeakDecline 爬坡-峰值-衰退三段曲线 (默认)
	CurveRampPeakDecline CurveModel = "ramp_peak_decline"
	// CurveGrowth 固定增长率曲线 (旧模型)
	CurveGrowth CurveModel = "growth"
)

// PipelineAsset 单条管线资产的输入参数
type PipelineAsset struct {
	Name                  string  `json:"name,omitempty" yaml:"name,omitempty"`
	Phase                 Phase   `json:"phase" yaml:"phase"`
	RareDisease           bool    `json:"rare_disease" yaml:"rare_disease"`
	EligiblePopulation    int64   `json:"eligible_population" yaml:"eligible_population"`
	PricePerPatient       float64 `json:"price_per_patient" yaml:"price_per_patient"`
	MarketPenetrationRate float64 `json:"market_penetration_rate" yaml:"market_penetration_rate"` // 百分比 0-100
	DelayYears            int     `json:"delay_years" yaml:"delay_years"`
	RampYears             int     `json:"ramp_years" yaml:"ramp_years"`
	PeakYears             int     `json:"peak_years" yaml:"peak_years"`
	DeclineYears          int     `json:"decline_years" yaml:"decline_years"`
	DeclineRate           float64 `json:"decline_rate" yaml:"decline_rate"` // 0-1

	// 旧模型 (CurveGrowth) 使用的参数
	CurveModel      CurveModel `json:"curve_model,omitempty" yaml:"curve_model,omitempty"`
	InitialRevenue  float64    `json:"initial_revenue,omitempty" yaml:"initial_revenue,omitempty"`
	GrowthRate      float64    `json:"growth_rate,omitempty" yaml:"growth_rate,omitempty"` // 百分比
	YearsToSimulate int        `json:"years_to_simulate,omitempty" yaml:"years_to_simulate,omitempty"`
}

// Label 用于日志和展示的资产名称
func (a PipelineAsset) Label(index int) string {
	if a.Name != "" {
		return a.Name
	}
	return fmt.Sprintf("Asset %d", index+1)
}

// Model 返回资产实际使用的曲线模型
func (a PipelineAsset) Model() CurveModel {
	if a.CurveModel == "" {
		return CurveRampPeakDecline
	}
	return a.CurveModel
}

// CurveParams 收入曲线参数
func (a PipelineAsset) CurveParams() CurveParams {
	return CurveParams{
		EligiblePopulation:    float64(a.EligiblePopulation),
		PricePerPatient:       a.PricePerPatient,
		MarketPenetrationRate: a.MarketPenetrationRate,
		RampYears:             a.RampYears,
		PeakYears:             a.PeakYears,
		DeclineYears:          a.DeclineYears,
		DeclineRate:           a.DeclineRate,
	}
}

// ============== Cash Flow ==============

// CashFlowSeries 按年排列的现金流, 下标 i 对应折现期 i+1
type CashFlowSeries []float64

// Clone 返回副本
func (s CashFlowSeries) Clone() CashFlowSeries {
	if s == nil {
		return nil
	}
	out := make(CashFlowSeries, len(s))
	copy(out, s)
	return out
}

// ChartPoint 图表数据点 (年份 -> 金额)
type ChartPoint struct {
	Year   int     `json:"year"`
	Amount float64 `json:"amount"`
}

// Chart 把序列转换为从第 1 年开始的图表数据
func (s CashFlowSeries) Chart() []ChartPoint {
	points := make([]ChartPoint, len(s))
	for i, v := range s {
		points[i] = ChartPoint{Year: i + 1, Amount: v}
	}
	return points
}

// ============== Market Snapshot ==============

// MarketSnapshot 外部市场数据快照 (只读输入)
type MarketSnapshot struct {
	Ticker            string    `json:"ticker"`
	MarketCap         float64   `json:"market_cap"`
	SharesOutstanding float64   `json:"shares_outstanding"`
	CashOnHand        *float64  `json:"cash_on_hand,omitempty"`
	CurrentRevenue    *float64  `json:"current_revenue,omitempty"`
	AnalystTarget     *float64  `json:"analyst_target,omitempty"`
	TotalAssets       *float64  `json:"total_assets,omitempty"`
	TotalLiabilities  *float64  `json:"total_liabilities,omitempty"`
	CommonEquity      *float64  `json:"common_equity,omitempty"`
	Summary           string    `json:"summary,omitempty"`
	FetchedAt         time.Time `json:"fetched_at"`
}

// ============== Valuation Result ==============

// CombinationMode 多资产现金流的合并方式
type CombinationMode string

const (
	// CombinePerAsset 各资产保留自身年份, 按年相加 (等价于逐个折现后求和)
	CombinePerAsset CombinationMode = "per_asset"
	// CombineConcatenated 按资产顺序首尾拼接后作为一条时间线折现
	CombineConcatenated CombinationMode = "concatenated"
)

// ParseCombinationMode 解析合并方式, 空串返回默认值
func ParseCombinationMode(s string) (CombinationMode, error) {
	switch CombinationMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CombinePerAsset:
		return CombinePerAsset, nil
	case CombineConcatenated:
		return CombineConcatenated, nil
	}
	return "", fmt.Errorf("%w: unknown combination mode %q", bverrors.ErrInvalidInput, s)
}

// AnnotationSharesFallback 流通股数使用了兜底值
const AnnotationSharesFallback = "SHARES_OUTSTANDING_FALLBACK"

// Annotation 结果注释 (非致命的降级说明)
type Annotation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValuationResult 估值结果
type ValuationResult struct {
	CurrentPricePerShare   float64         `json:"current_price_per_share"`
	ProjectedPricePerShare float64         `json:"projected_price_per_share"`
	NPVPipeline            float64         `json:"npv_pipeline"`
	ProjectedMarketCap     float64         `json:"projected_market_cap"`
	EffectiveShares        float64         `json:"effective_shares_outstanding"`
	DiscountRate           float64         `json:"discount_rate"`
	CombinationMode        CombinationMode `json:"combination_mode"`
	Degraded               bool            `json:"degraded"`
	Annotations            []Annotation    `json:"annotations,omitempty"`
}

// AssetProjection 单资产模拟结果
type AssetProjection struct {
	Index         int            `json:"index"`
	Name          string         `json:"name"`
	Phase         Phase          `json:"phase"`
	RareDisease   bool           `json:"rare_disease"`
	Probability   float64        `json:"probability"`
	PeakRevenue   float64        `json:"peak_revenue"`
	Revenue       CashFlowSeries `json:"revenue"`
	CashFlows     CashFlowSeries `json:"cash_flows"`
	RiskAdjusted  CashFlowSeries `json:"risk_adjusted"`
	StandaloneNPV float64        `json:"standalone_npv"`
}

// Report Engine 的完整输出
type Report struct {
	Ticker      string            `json:"ticker"`
	Snapshot    MarketSnapshot    `json:"snapshot"`
	Result      ValuationResult   `json:"result"`
	Projections []AssetProjection `json:"projections"`
	Chart       []ChartPoint      `json:"chart"`
}
