// 单资产分析子工作流
// 每条管线资产独立完成收入曲线, 现金流和风险调整
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/biovalue-ai/rnpv/internal/activity"
	"github.com/biovalue-ai/rnpv/internal/valuation"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// PipelineAnalysisInput 单资产分析输入
type PipelineAnalysisInput struct {
	Ticker    string                  `json:"ticker"`
	Index     int                     `json:"index"`
	Asset     valuation.PipelineAsset `json:"asset"`
	Overrides activity.Overrides      `json:"overrides"`
}

// PipelineAnalysisWorkflow 单资产分析子工作流
func PipelineAnalysisWorkflow(ctx workflow.Context, input PipelineAnalysisInput) (*valuation.AssetProjection, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting Pipeline Analysis Workflow",
		"ticker", input.Ticker,
		"asset", input.Asset.Label(input.Index),
		"phase", input.Asset.Phase.String(),
		"rare_disease", input.Asset.RareDisease,
	)

	// 模拟是纯计算, 只有基础设施错误值得重试
	activityOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        10 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{bverrors.TypeFatalError, bverrors.TypeValidationError},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOpts)

	var projection valuation.AssetProjection
	err := workflow.ExecuteActivity(ctx, activity.SimulateAssetName,
		activity.SimulateAssetInput{
			Ticker:    input.Ticker,
			Index:     input.Index,
			Asset:     input.Asset,
			Overrides: input.Overrides,
		}).Get(ctx, &projection)
	if err != nil {
		logger.Error("Asset simulation failed",
			"asset", input.Asset.Label(input.Index),
			"error", err,
		)
		return nil, err
	}

	logger.Info("Pipeline Analysis Workflow completed",
		"ticker", input.Ticker,
		"asset", projection.Name,
		"probability", projection.Probability,
		"standalone_npv", projection.StandaloneNPV,
	)
	return &projection, nil
}
