// 临床成功率风险调整
package valuation

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// ProbabilityTable 按临床阶段的成功率表, 分标准与罕见病两套
type ProbabilityTable struct {
	Standard    map[Phase]float64 `json:"standard"`
	RareDisease map[Phase]float64 `json:"rare_disease"`
}

// DefaultProbabilityTable 默认成功率表
func DefaultProbabilityTable() ProbabilityTable {
	return ProbabilityTable{
		Standard: map[Phase]float64{
			Phase1: 0.60,
			Phase2: 0.36,
			Phase3: 0.63,
		},
		RareDisease: map[Phase]float64{
			Phase1: 0.70,
			Phase2: 0.45,
			Phase3: 0.80,
		},
	}
}

// Lookup 查询成功率, 阶段必须是合法枚举值
func (t ProbabilityTable) Lookup(phase Phase, rareDisease bool) (float64, error) {
	if !phase.Valid() {
		return 0, fmt.Errorf("%w: unknown clinical phase %d", bverrors.ErrInvalidInput, int(phase))
	}
	table, kind := t.Standard, "standard"
	if rareDisease {
		table, kind = t.RareDisease, "rare disease"
	}
	p, ok := table[phase]
	if !ok {
		return 0, fmt.Errorf("%w: no %s probability for %s", bverrors.ErrConfigInvalid, kind, phase)
	}
	return p, nil
}

// Validate 每个阶段都必须有 (0,1] 的概率
func (t ProbabilityTable) Validate() error {
	for _, phase := range Phases {
		for _, rare := range []bool{false, true} {
			p, err := t.Lookup(phase, rare)
			if err != nil {
				return err
			}
			if err := checkProbability(p); err != nil {
				return fmt.Errorf("%w: %s (rare=%t): %v", bverrors.ErrConfigInvalid, phase, rare, err)
			}
		}
	}
	return nil
}

// RiskAdjust 返回每个元素乘以成功率后的新序列
func RiskAdjust(series CashFlowSeries, probability float64) (CashFlowSeries, error) {
	if err := checkProbability(probability); err != nil {
		return nil, fmt.Errorf("%w: %v", bverrors.ErrInvalidInput, err)
	}
	out := make(CashFlowSeries, len(series))
	floats.ScaleTo(out, probability, series)
	return out, nil
}

func checkProbability(p float64) error {
	if math.IsNaN(p) || p <= 0 || p > 1 {
		return fmt.Errorf("success probability %v outside (0, 1]", p)
	}
	return nil
}
