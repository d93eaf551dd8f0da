// rNPV 命令行入口
// 本地运行估值, 或提交到 Temporal 由 Worker 执行
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/biovalue-ai/rnpv/internal/marketdata"
	"github.com/biovalue-ai/rnpv/internal/report"
	"github.com/biovalue-ai/rnpv/internal/scenario"
	"github.com/biovalue-ai/rnpv/internal/valuation"
	"github.com/biovalue-ai/rnpv/internal/workflow"
	"github.com/biovalue-ai/rnpv/pkg/cache"
	"github.com/biovalue-ai/rnpv/pkg/config"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
	"github.com/biovalue-ai/rnpv/pkg/logging"
	"github.com/biovalue-ai/rnpv/pkg/tracing"
)

// 退出码
const (
	exitOK      = 0
	exitFailure = 1
	exitInvalid = 2
)

type options struct {
	configPath   string
	scenarioPath string
	ticker       string
	format       string
	submit       bool
	logLevel     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("rnpv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file (default $CONFIG_PATH or "+config.DefaultConfigPath+")")
	fs.StringVar(&opts.scenarioPath, "scenario", "", "Path to scenario YAML file")
	fs.StringVar(&opts.ticker, "ticker", "", "Ticker symbol, overrides the scenario ticker")
	fs.StringVar(&opts.format, "format", string(report.FormatText), "Output format: text or json")
	fs.BoolVar(&opts.submit, "submit", false, "Submit the valuation to the Temporal worker instead of running it locally")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, err
		}
		return opts, fmt.Errorf("%w: %v", bverrors.ErrInvalidInput, err)
	}
	if opts.scenarioPath == "" {
		return opts, fmt.Errorf("%w: -scenario is required", bverrors.ErrInvalidInput)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return fail(stderr, err)
	}

	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return fail(stderr, err)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return fail(stderr, err)
	}

	// 日志写 stderr, stdout 只输出报告
	cfg.Observability.Logging.Output = "stderr"
	cfg.Observability.Logging.Level = opts.logLevel
	logger, err := logging.NewLogger(cfg.Observability.Logging)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = logger.Sync() }()

	tp, err := tracing.InitTracer(cfg.Observability.Tracing, cfg.System)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	s, err := scenario.Load(opts.scenarioPath)
	if err != nil {
		return fail(stderr, err)
	}
	if opts.ticker != "" {
		s.Ticker = opts.ticker
	}

	var result *valuation.Report
	if opts.submit {
		result, err = submit(ctx, cfg, logger, s)
	} else {
		result, err = valueLocally(ctx, cfg, logger, s)
	}
	if err != nil {
		return fail(stderr, err)
	}

	if err := report.Render(stdout, result, format); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

// loadConfig 显式指定的配置文件必须可读; 未指定时找不到默认文件则使用内置默认值
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load()
	if err == nil {
		return cfg, nil
	}
	if bverrors.Is(err, bverrors.ErrConfigInvalid) {
		return nil, err
	}
	return config.Default(), nil
}

// valueLocally 在进程内完成估值, 场景自带快照时不请求数据源
func valueLocally(ctx context.Context, cfg *config.Config, logger *zap.Logger, s *scenario.Scenario) (*valuation.Report, error) {
	ctx, span := tracing.StartSpan(ctx, "rnpv.LocalValuation")
	defer span.End()

	assumptions, err := cfg.Assumptions()
	if err != nil {
		return nil, err
	}
	base, err := valuation.NewEngine(assumptions)
	if err != nil {
		return nil, err
	}
	engine, err := base.WithOverrides(s.DiscountRate, s.CombinationMode)
	if err != nil {
		return nil, err
	}

	snapshot, err := resolveSnapshot(ctx, cfg, logger, s)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}

	logger.Info("Running local valuation",
		zap.String("ticker", snapshot.Ticker),
		zap.Int("assets", len(s.Assets)),
		zap.String("mode", string(engine.Assumptions().CombinationMode)),
	)
	result, err := engine.Value(*snapshot, s.Assets)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	return result, nil
}

func resolveSnapshot(ctx context.Context, cfg *config.Config, logger *zap.Logger, s *scenario.Scenario) (*valuation.MarketSnapshot, error) {
	if s.Snapshot != nil {
		ticker := s.Ticker
		if ticker != "" {
			t, err := marketdata.NormalizeTicker(ticker)
			if err != nil {
				return nil, err
			}
			ticker = t
		}
		snapshot := s.Snapshot.MarketSnapshot(ticker)
		if snapshot.Summary == "" {
			snapshot.Summary = marketdata.DefaultSummary
		}
		return &snapshot, nil
	}

	var store cache.Store = cache.NewMemoryStore()
	if cfg.Storage.Redis.Enabled {
		rc, err := cache.NewRedisCache(cfg.Storage.Redis)
		if err != nil {
			logger.Warn("Redis unavailable, using in-process snapshot cache", zap.Error(err))
		} else {
			defer func() { _ = rc.Close() }()
			store = rc
		}
	}

	fetcher := marketdata.NewCachedFetcher(
		marketdata.NewYahooClient(cfg.MarketData, logger),
		store,
		cfg.Storage.Redis.SnapshotTTL,
		logger,
	)
	return fetcher.FetchSnapshot(ctx, s.Ticker)
}

// submit 通过 Temporal 执行估值并等待结果
func submit(ctx context.Context, cfg *config.Config, logger *zap.Logger, s *scenario.Scenario) (*valuation.Report, error) {
	if s.Snapshot != nil {
		logger.Warn("Scenario snapshot is ignored when submitting, the worker fetches market data")
	}

	req := buildRequest(cfg, s)
	ticker, err := workflow.ValidateRequest(req)
	if err != nil {
		return nil, err
	}

	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        fmt.Sprintf("valuation-%s-%d", ticker, time.Now().UnixNano()),
		TaskQueue: cfg.Temporal.TaskQueue,
	}, workflow.ValuationWorkflow, req)
	if err != nil {
		return nil, fmt.Errorf("failed to start valuation workflow: %w", err)
	}
	logger.Info("Valuation workflow started",
		zap.String("workflow_id", run.GetID()),
		zap.String("run_id", run.GetRunID()),
	)

	var out workflow.ValuationOutput
	if err := run.Get(ctx, &out); err != nil {
		return nil, err
	}
	if out.Report == nil {
		return nil, errors.New("valuation workflow returned no report")
	}
	return out.Report, nil
}

// buildRequest 组装工作流请求, 资产数/年数上限沿用本地配置, 与本地估值一致
func buildRequest(cfg *config.Config, s *scenario.Scenario) workflow.ValuationRequest {
	retry := cfg.Temporal.Retry
	return workflow.ValuationRequest{
		Ticker:          s.Ticker,
		Assets:          s.Assets,
		DiscountRate:    s.DiscountRate,
		CombinationMode: s.CombinationMode,
		FetchRetry: &workflow.RetrySettings{
			InitialInterval:    retry.InitialInterval,
			BackoffCoefficient: retry.BackoffCoefficient,
			MaximumInterval:    retry.MaximumInterval,
			MaximumAttempts:    int32(retry.MaximumAttempts),
		},
		MaxAssets: cfg.Valuation.MaxAssets,
		MaxYears:  cfg.Valuation.MaxYears,
	}
}

// fail 输出错误信息并返回退出码: 输入类错误为 2, 其余为 1
func fail(stderr io.Writer, err error) int {
	code := exitFailure
	switch {
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case bverrors.Is(err, bverrors.ErrDataFetch):
		fmt.Fprintf(stderr, "error: market data unavailable: %v\n", err)
		return exitFailure
	case workflow.RequiresIntervention(err):
		code = exitInvalid
	}
	fmt.Fprintf(stderr, "error: %v\n", err)
	return code
}
