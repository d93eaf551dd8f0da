// rNPV 估值主工作流
// 获取市场数据, 并行模拟每条管线资产, 聚合为每股价格
package workflow

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/biovalue-ai/rnpv/internal/activity"
	"github.com/biovalue-ai/rnpv/internal/marketdata"
	"github.com/biovalue-ai/rnpv/internal/valuation"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
	"github.com/biovalue-ai/rnpv/pkg/metrics"
)

// ProgressQuery 进度查询名
const ProgressQuery = "progress"

// 步骤名
const (
	StepFetchSnapshot = "FetchMarketSnapshot"
	StepSimulate      = "SimulateAsset"
	StepAggregate     = "AggregateValuation"
)

// 单资产进度
const (
	AssetPending    = "pending"
	AssetInProgress = "in_progress"
	AssetCompleted  = "completed"
	AssetFailed     = "failed"
)

// RetrySettings 市场数据获取的重试策略
type RetrySettings struct {
	InitialInterval    time.Duration `json:"initial_interval"`
	BackoffCoefficient float64       `json:"backoff_coefficient"`
	MaximumInterval    time.Duration `json:"maximum_interval"`
	MaximumAttempts    int32         `json:"maximum_attempts"`
}

// DefaultFetchRetry 默认市场数据重试策略
func DefaultFetchRetry() RetrySettings {
	return RetrySettings{
		InitialInterval:    2 * time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    time.Minute,
		MaximumAttempts:    5,
	}
}

func (r RetrySettings) policy() *temporal.RetryPolicy {
	return &temporal.RetryPolicy{
		InitialInterval:        r.InitialInterval,
		BackoffCoefficient:     r.BackoffCoefficient,
		MaximumInterval:        r.MaximumInterval,
		MaximumAttempts:        r.MaximumAttempts,
		NonRetryableErrorTypes: []string{bverrors.TypeFatalError, bverrors.TypeValidationError},
	}
}

// ValuationRequest 工作流输入
type ValuationRequest struct {
	Ticker          string                    `json:"ticker"`
	Assets          []valuation.PipelineAsset `json:"assets"`
	DiscountRate    *float64                  `json:"discount_rate,omitempty"`
	CombinationMode string                    `json:"combination_mode,omitempty"`
	FetchRetry      *RetrySettings            `json:"fetch_retry,omitempty"`
	MaxAssets       int                       `json:"max_assets,omitempty"` // 为零时使用默认上限
	MaxYears        int                       `json:"max_years,omitempty"`
}

func (r ValuationRequest) overrides() activity.Overrides {
	return activity.Overrides{
		DiscountRate:    r.DiscountRate,
		CombinationMode: r.CombinationMode,
		MaxAssets:       r.MaxAssets,
		MaxYears:        r.MaxYears,
	}
}

// ValuationOutput 工作流输出
type ValuationOutput struct {
	Report      *valuation.Report `json:"report"`
	TraceID     string            `json:"trace_id"`
	CompletedAt time.Time         `json:"completed_at"`
}

// ProgressInfo 进度信息 (用于 Query)
type ProgressInfo struct {
	CurrentStep    string            `json:"current_step"`
	CompletedSteps []string          `json:"completed_steps"`
	TotalSteps     int               `json:"total_steps"`
	Progress       float64           `json:"progress"`
	AssetProgress  map[string]string `json:"asset_progress"`
}

// ValidateRequest 在调度任何 Activity 之前校验请求
func ValidateRequest(req ValuationRequest) (string, error) {
	ticker, err := marketdata.NormalizeTicker(req.Ticker)
	if err != nil {
		return "", err
	}
	// 覆盖项和上限的校验与 Activity 中的引擎一致
	base, err := valuation.NewEngine(valuation.DefaultAssumptions())
	if err != nil {
		return "", err
	}
	engine, err := base.WithOverrides(req.DiscountRate, req.CombinationMode)
	if err != nil {
		return "", err
	}
	if engine, err = engine.WithLimits(req.MaxAssets, req.MaxYears); err != nil {
		return "", err
	}
	limits := engine.Assumptions()
	if err := valuation.ValidateAssets(req.Assets, limits.MaxAssets, limits.MaxYears); err != nil {
		return "", err
	}
	return ticker, nil
}

// ValuationWorkflow rNPV 估值主工作流, 结束后记录一次工作流时长
func ValuationWorkflow(ctx workflow.Context, req ValuationRequest) (*ValuationOutput, error) {
	startedAt := workflow.Now(ctx)
	out, err := runValuation(ctx, req)

	// 重放时不重复记录
	if !workflow.IsReplaying(ctx) {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.WorkflowDuration.WithLabelValues("ValuationWorkflow", status).
			Observe(workflow.Now(ctx).Sub(startedAt).Seconds())
	}
	return out, err
}

func runValuation(ctx workflow.Context, req ValuationRequest) (*ValuationOutput, error) {
	logger := workflow.GetLogger(ctx)
	info := workflow.GetInfo(ctx)
	logger.Info("Starting Valuation Workflow", "ticker", req.Ticker, "assets", len(req.Assets))

	saga := NewSagaCompensation()

	// 进度跟踪
	var currentStep string
	completedSteps := make([]string, 0, len(req.Assets)+2)
	assetProgress := make(map[string]string, len(req.Assets))
	totalSteps := len(req.Assets) + 2

	err := workflow.SetQueryHandler(ctx, ProgressQuery, func() (ProgressInfo, error) {
		return ProgressInfo{
			CurrentStep:    currentStep,
			CompletedSteps: completedSteps,
			TotalSteps:     totalSteps,
			Progress:       float64(len(completedSteps)) / float64(totalSteps) * 100,
			AssetProgress:  assetProgress,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set query handler: %w", err)
	}

	ticker, err := ValidateRequest(req)
	if err != nil {
		logger.Error("Valuation request rejected", "error", err)
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), bverrors.TemporalType(err), err)
	}
	for i, asset := range req.Assets {
		assetProgress[asset.Label(i)] = AssetPending
	}

	// ============== Step 1: 市场数据 ==============
	currentStep = StepFetchSnapshot

	retry := DefaultFetchRetry()
	if req.FetchRetry != nil {
		retry = *req.FetchRetry
	}
	fetchCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         retry.policy(),
	})

	var snapshot valuation.MarketSnapshot
	if err := workflow.ExecuteActivity(fetchCtx, activity.FetchMarketSnapshotName,
		activity.FetchSnapshotInput{Ticker: ticker}).Get(ctx, &snapshot); err != nil {
		logger.Error("Market snapshot unavailable", "ticker", ticker, "error", err)
		return nil, err
	}
	completedSteps = append(completedSteps, StepFetchSnapshot)

	saga.AddCompensation("snapshot", func(ctx workflow.Context) error {
		return workflow.ExecuteActivity(ctx, activity.InvalidateSnapshotName, ticker).Get(ctx, nil)
	})

	// ============== Step 2: 每条管线资产一个子工作流 ==============
	currentStep = StepSimulate
	overrides := req.overrides()

	futures := make([]workflow.ChildWorkflowFuture, len(req.Assets))
	for i, asset := range req.Assets {
		childCtx := workflow.WithChildOptions(ctx, workflow.ChildWorkflowOptions{
			WorkflowID: fmt.Sprintf("asset-simulation-%s-%s-%d", ticker, info.WorkflowExecution.RunID, i),
		})
		futures[i] = workflow.ExecuteChildWorkflow(childCtx, PipelineAnalysisWorkflow, PipelineAnalysisInput{
			Ticker:    ticker,
			Index:     i,
			Asset:     asset,
			Overrides: overrides,
		})
		assetProgress[asset.Label(i)] = AssetInProgress
	}

	// 结果按资产下标归位, 与完成顺序无关
	projections := make([]valuation.AssetProjection, len(req.Assets))
	var simulateErr error
	selector := workflow.NewSelector(ctx)
	for i, future := range futures {
		idx := i
		label := req.Assets[idx].Label(idx)
		selector.AddFuture(future, func(f workflow.Future) {
			var projection valuation.AssetProjection
			if err := f.Get(ctx, &projection); err != nil {
				logger.Error("Asset simulation failed", "asset", label, "error", err)
				assetProgress[label] = AssetFailed
				if simulateErr == nil {
					simulateErr = err
				}
				return
			}
			projections[idx] = projection
			assetProgress[label] = AssetCompleted
			completedSteps = append(completedSteps, StepSimulate+":"+label)
		})
	}
	for range futures {
		selector.Select(ctx)
	}
	if simulateErr != nil {
		return nil, compensate(ctx, saga, "asset simulation", simulateErr)
	}

	// ============== Step 3: 聚合 ==============
	currentStep = StepAggregate
	aggregateCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2.0,
			MaximumInterval:        10 * time.Second,
			MaximumAttempts:        3,
			NonRetryableErrorTypes: []string{bverrors.TypeFatalError, bverrors.TypeValidationError},
		},
	})

	var report valuation.Report
	if err := workflow.ExecuteActivity(aggregateCtx, activity.AggregateValuationName, activity.AggregateInput{
		Ticker:      ticker,
		Snapshot:    snapshot,
		Projections: projections,
		Overrides:   overrides,
		WorkflowID:  info.WorkflowExecution.ID,
	}).Get(ctx, &report); err != nil {
		return nil, compensate(ctx, saga, "aggregation", err)
	}
	completedSteps = append(completedSteps, StepAggregate)
	currentStep = ""

	logger.Info("Valuation Workflow completed",
		"ticker", ticker,
		"npv_pipeline", report.Result.NPVPipeline,
		"projected_price", report.Result.ProjectedPricePerShare,
		"degraded", report.Result.Degraded,
	)

	return &ValuationOutput{
		Report:      &report,
		TraceID:     info.WorkflowExecution.RunID,
		CompletedAt: workflow.Now(ctx),
	}, nil
}

// compensate 需要人工介入或致命的失败会撤销已缓存的快照, 可重试类失败保留缓存
func compensate(ctx workflow.Context, saga *SagaCompensation, stage string, err error) error {
	logger := workflow.GetLogger(ctx)
	if !RequiresIntervention(err) {
		logger.Error("Valuation failed", "stage", stage, "error", err)
		return err
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})
	executed := saga.Execute(ctx)
	logger.Warn("Valuation failed, compensated",
		"stage", stage,
		"compensations", executed,
		"error", err,
	)
	return err
}

// RequiresIntervention 判断跨 Temporal 边界的错误是否为 L2 及以上
func RequiresIntervention(err error) bool {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		switch appErr.Type() {
		case bverrors.TypeValidationError, bverrors.TypeFatalError:
			return true
		}
		return false
	}
	return bverrors.ClassifyError(err).Level >= bverrors.L2Intervention
}
