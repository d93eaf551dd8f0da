// Activity 实现
// 封装市场数据获取, 单资产模拟和估值聚合
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"

	"github.com/biovalue-ai/rnpv/internal/marketdata"
	"github.com/biovalue-ai/rnpv/internal/valuation"
	"github.com/biovalue-ai/rnpv/pkg/cache"
	"github.com/biovalue-ai/rnpv/pkg/config"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
	"github.com/biovalue-ai/rnpv/pkg/metrics"
)

// Dependencies Activity 的外部依赖
type Dependencies struct {
	Fetcher   marketdata.Fetcher
	Store     cache.Store
	Publisher cache.StreamPublisher
}

// Activities 包含所有 Activity 的依赖
type Activities struct {
	config    *config.Config
	logger    *zap.Logger
	engine    *valuation.Engine
	snapshots *marketdata.CachedFetcher
	publisher cache.StreamPublisher
	redis     *cache.RedisCache
}

// NewActivities 按配置创建 Activities: Redis 启用时用于快照缓存和结果 Stream.
// 返回的 Redis 客户端供健康检查使用 (未启用时为 nil), 由 Activities.Close 关闭
func NewActivities(cfg *config.Config, logger *zap.Logger) (*Activities, *cache.RedisCache, error) {
	deps := Dependencies{
		Fetcher: marketdata.NewYahooClient(cfg.MarketData, logger),
	}

	var redisCache *cache.RedisCache
	if cfg.Storage.Redis.Enabled {
		var err error
		redisCache, err = cache.NewRedisCache(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Redis cache: %w", err)
		}
		deps.Store = redisCache
		deps.Publisher = redisCache
	} else {
		memory := cache.NewMemoryStore()
		deps.Store = memory
		deps.Publisher = memory
	}

	a, err := NewActivitiesWithDeps(cfg, logger, deps)
	if err != nil {
		if redisCache != nil {
			_ = redisCache.Close()
		}
		return nil, nil, err
	}
	a.redis = redisCache
	return a, redisCache, nil
}

// NewActivitiesWithDeps 使用给定依赖创建 Activities
func NewActivitiesWithDeps(cfg *config.Config, logger *zap.Logger, deps Dependencies) (*Activities, error) {
	assumptions, err := cfg.Assumptions()
	if err != nil {
		return nil, err
	}
	engine, err := valuation.NewEngine(assumptions)
	if err != nil {
		return nil, err
	}

	store := deps.Store
	if store == nil {
		store = cache.NewMemoryStore()
	}

	return &Activities{
		config:    cfg,
		logger:    logger,
		engine:    engine,
		snapshots: marketdata.NewCachedFetcher(deps.Fetcher, store, cfg.Storage.Redis.SnapshotTTL, logger),
		publisher: deps.Publisher,
	}, nil
}

// engineFor 按单次估值的覆盖项派生引擎
func (a *Activities) engineFor(o Overrides) (*valuation.Engine, error) {
	engine, err := a.engine.WithOverrides(o.DiscountRate, o.CombinationMode)
	if err != nil {
		return nil, err
	}
	return engine.WithLimits(o.MaxAssets, o.MaxYears)
}

// Close 关闭资源
func (a *Activities) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}

// FetchMarketSnapshotActivity 获取市场数据快照 (带缓存)
func (a *Activities) FetchMarketSnapshotActivity(ctx context.Context, input FetchSnapshotInput) (*valuation.MarketSnapshot, error) {
	logger := a.logger.With(zap.String("activity", "FetchMarketSnapshot"), zap.String("ticker", input.Ticker))
	info := activity.GetInfo(ctx)

	startTime := time.Now()
	status := "success"
	defer func() {
		metrics.ActivityDuration.WithLabelValues("FetchMarketSnapshot", status).Observe(time.Since(startTime).Seconds())
	}()

	activity.RecordHeartbeat(ctx, "Fetching market data...")

	snapshot, err := a.snapshots.FetchSnapshot(ctx, input.Ticker)
	if err != nil {
		status = "failure"
		logger.Warn("Market data fetch failed", zap.Int32("attempt", info.Attempt), zap.Error(err))
		if bverrors.RetryBudgetExhausted(err, info.Attempt) {
			logger.Error("Retry budget exhausted for market data", zap.Int32("attempt", info.Attempt))
			metrics.ErrorsTotal.WithLabelValues(bverrors.L1Recoverable.String(), "RETRY_BUDGET_EXHAUSTED").Inc()
			return nil, temporal.NewNonRetryableApplicationError(err.Error(), bverrors.TemporalType(err), err)
		}
		return nil, toApplicationError(err)
	}

	logger.Info("Market snapshot ready",
		zap.Float64("market_cap", snapshot.MarketCap),
		zap.Float64("shares_outstanding", snapshot.SharesOutstanding),
	)
	return snapshot, nil
}

// SimulateAssetActivity 单资产: 收入曲线, 现金流, 风险调整
func (a *Activities) SimulateAssetActivity(ctx context.Context, input SimulateAssetInput) (*valuation.AssetProjection, error) {
	logger := a.logger.With(
		zap.String("activity", "SimulateAsset"),
		zap.String("ticker", input.Ticker),
		zap.String("asset", input.Asset.Label(input.Index)),
	)

	startTime := time.Now()
	status := "success"
	defer func() {
		metrics.ActivityDuration.WithLabelValues("SimulateAsset", status).Observe(time.Since(startTime).Seconds())
	}()

	engine, err := a.engineFor(input.Overrides)
	if err != nil {
		status = "failure"
		return nil, toApplicationError(err)
	}

	projection, err := engine.SimulateAsset(input.Index, input.Asset)
	if err != nil {
		status = "failure"
		logger.Warn("Asset simulation rejected", zap.Error(err))
		return nil, toApplicationError(err)
	}

	metrics.AssetsSimulated.WithLabelValues(projection.Phase.String(), strconv.FormatBool(projection.RareDisease)).Inc()
	logger.Info("Asset simulated",
		zap.Stringer("phase", projection.Phase),
		zap.Float64("probability", projection.Probability),
		zap.Int("years", len(projection.CashFlows)),
		zap.Float64("standalone_npv", projection.StandaloneNPV),
	)
	return projection, nil
}

// AggregateValuationActivity 聚合各资产结果并发布到结果 Stream
func (a *Activities) AggregateValuationActivity(ctx context.Context, input AggregateInput) (*valuation.Report, error) {
	logger := a.logger.With(zap.String("activity", "AggregateValuation"), zap.String("ticker", input.Ticker))

	startTime := time.Now()
	status := "success"
	defer func() {
		metrics.ActivityDuration.WithLabelValues("AggregateValuation", status).Observe(time.Since(startTime).Seconds())
	}()

	engine, err := a.engineFor(input.Overrides)
	if err != nil {
		status = "failure"
		return nil, toApplicationError(err)
	}

	report, err := engine.Aggregate(input.Snapshot, input.Projections)
	if err != nil {
		status = "failure"
		logger.Warn("Aggregation rejected", zap.Error(err))
		return nil, toApplicationError(err)
	}
	if report.Ticker == "" {
		report.Ticker = input.Ticker
	}

	res := report.Result
	metrics.ValuationsTotal.WithLabelValues(string(res.CombinationMode), strconv.FormatBool(res.Degraded)).Inc()
	metrics.PipelineNPV.WithLabelValues(report.Ticker).Set(res.NPVPipeline)

	if res.Degraded {
		logger.Warn("Valuation used degraded defaults", zap.Any("annotations", res.Annotations))
	}

	activity.RecordHeartbeat(ctx, "Publishing valuation result...")
	a.publish(ctx, logger, input.WorkflowID, report)

	logger.Info("Valuation aggregated",
		zap.Float64("npv_pipeline", res.NPVPipeline),
		zap.Float64("current_price", res.CurrentPricePerShare),
		zap.Float64("projected_price", res.ProjectedPricePerShare),
		zap.String("mode", string(res.CombinationMode)),
	)
	return report, nil
}

// publish 结果发布失败不影响估值本身
func (a *Activities) publish(ctx context.Context, logger *zap.Logger, workflowID string, report *valuation.Report) {
	if a.publisher == nil {
		return
	}

	body, err := json.Marshal(report)
	if err != nil {
		logger.Warn("Failed to encode report for stream", zap.Error(err))
		return
	}

	res := report.Result
	values := PublishedResult{
		Ticker:                 report.Ticker,
		WorkflowID:             workflowID,
		NPVPipeline:            res.NPVPipeline,
		CurrentPricePerShare:   res.CurrentPricePerShare,
		ProjectedPricePerShare: res.ProjectedPricePerShare,
		CombinationMode:        string(res.CombinationMode),
		Degraded:               res.Degraded,
	}.Values(body)

	id, err := a.publisher.XAdd(ctx, a.config.Storage.Redis.ResultsStream, values)
	if err != nil {
		logger.Warn("Failed to publish valuation result", zap.Error(err))
		return
	}
	logger.Debug("Valuation result published", zap.String("stream", a.config.Storage.Redis.ResultsStream), zap.String("id", id))
}

// InvalidateSnapshotActivity 补偿: 删除缓存的市场数据快照
func (a *Activities) InvalidateSnapshotActivity(ctx context.Context, ticker string) error {
	logger := a.logger.With(zap.String("activity", "InvalidateSnapshot"), zap.String("ticker", ticker))

	if err := a.snapshots.Invalidate(ctx, ticker); err != nil {
		logger.Error("Failed to invalidate snapshot", zap.Error(err))
		return toApplicationError(err)
	}
	logger.Info("Cached snapshot invalidated")
	return nil
}

// NotifyCompensationFailure 通知补偿失败
func (a *Activities) NotifyCompensationFailure(ctx context.Context, stepName string, errorMsg string) error {
	metrics.ErrorsTotal.WithLabelValues(bverrors.L2Intervention.String(), "COMPENSATION_FAILED").Inc()
	a.logger.Error("Compensation failed, manual intervention required",
		zap.String("step", stepName),
		zap.String("error", errorMsg),
	)
	return nil
}

// toApplicationError 把分类错误转换为 Temporal ApplicationError, 不可重试的错误不再重试
func toApplicationError(err error) error {
	classified := bverrors.ClassifyError(err)
	if classified == nil {
		return nil
	}
	metrics.ErrorsTotal.WithLabelValues(classified.Level.String(), classified.Code).Inc()

	errType := bverrors.TemporalType(err)
	if !classified.Retryable {
		return temporal.NewNonRetryableApplicationError(err.Error(), errType, err)
	}
	return temporal.NewApplicationErrorWithCause(err.Error(), errType, err)
}
