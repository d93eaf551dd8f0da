// Package scenario 读取估值场景文件 (YAML)
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// Scenario 一次估值的输入
type Scenario struct {
	Ticker          string                    `yaml:"ticker"`
	DiscountRate    *float64                  `yaml:"discount_rate,omitempty"`
	CombinationMode string                    `yaml:"combination_mode,omitempty"`
	Snapshot        *Snapshot                 `yaml:"snapshot,omitempty"`
	Assets          []valuation.PipelineAsset `yaml:"assets"`
}

// Snapshot 手工提供的市场数据, 存在时不再请求数据源
type Snapshot struct {
	MarketCap         float64  `yaml:"market_cap"`
	SharesOutstanding float64  `yaml:"shares_outstanding"`
	CashOnHand        *float64 `yaml:"cash_on_hand,omitempty"`
	CurrentRevenue    *float64 `yaml:"current_revenue,omitempty"`
	AnalystTarget     *float64 `yaml:"analyst_target,omitempty"`
	TotalAssets       *float64 `yaml:"total_assets,omitempty"`
	TotalLiabilities  *float64 `yaml:"total_liabilities,omitempty"`
	CommonEquity      *float64 `yaml:"common_equity,omitempty"`
	Summary           string   `yaml:"summary,omitempty"`
}

// MarketSnapshot 转换为核心使用的快照
func (s Snapshot) MarketSnapshot(ticker string) valuation.MarketSnapshot {
	return valuation.MarketSnapshot{
		Ticker:            ticker,
		MarketCap:         s.MarketCap,
		SharesOutstanding: s.SharesOutstanding,
		CashOnHand:        s.CashOnHand,
		CurrentRevenue:    s.CurrentRevenue,
		AnalystTarget:     s.AnalystTarget,
		TotalAssets:       s.TotalAssets,
		TotalLiabilities:  s.TotalLiabilities,
		CommonEquity:      s.CommonEquity,
		Summary:           s.Summary,
	}
}

// Load 从文件读取场景
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse 解析场景内容, 未知字段视为错误
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: scenario is empty", bverrors.ErrInvalidInput)
		}
		if bverrors.Is(err, bverrors.ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", bverrors.ErrInvalidInput, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate 校验场景层面的字段, 资产本身由估值引擎校验
func (s *Scenario) Validate() error {
	if s.Ticker == "" && s.Snapshot == nil {
		return fmt.Errorf("%w: scenario needs a ticker or a snapshot", bverrors.ErrInvalidInput)
	}
	if len(s.Assets) == 0 {
		return fmt.Errorf("%w: scenario has no pipeline assets", bverrors.ErrInvalidInput)
	}
	if _, err := valuation.ParseCombinationMode(s.CombinationMode); err != nil {
		return err
	}
	return nil
}
