// rNPV Valuation Worker 入口
// 启动 Temporal Worker 处理估值工作流和活动
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/biovalue-ai/rnpv/internal/activity"
	"github.com/biovalue-ai/rnpv/internal/workflow"
	"github.com/biovalue-ai/rnpv/pkg/config"
	"github.com/biovalue-ai/rnpv/pkg/health"
	"github.com/biovalue-ai/rnpv/pkg/logging"
	"github.com/biovalue-ai/rnpv/pkg/tracing"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	logger, err := logging.NewLogger(cfg.Observability.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded", zap.Any("redis", logging.SanitizeForLog(map[string]interface{}{
		"enabled":  cfg.Storage.Redis.Enabled,
		"address":  cfg.Storage.Redis.Address,
		"password": cfg.Storage.Redis.Password,
		"stream":   cfg.Storage.Redis.ResultsStream,
	})), zap.String("market_data", cfg.MarketData.BaseURL))

	// 初始化 Tracing
	tp, err := tracing.InitTracer(cfg.Observability.Tracing, cfg.System)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	if tp != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	// 创建 Activity 依赖
	activities, redisCache, err := activity.NewActivities(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create activities", zap.Error(err))
	}
	defer func() { _ = activities.Close() }()

	// 健康检查
	healthServer := health.NewServer(logger)
	if redisCache != nil {
		healthServer.AddCheck("redis", redisCache.Ping)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go healthServer.Watch(ctx, 15*time.Second)
	go func() {
		if err := healthServer.Serve(cfg.Observability.Health.GRPCPort); err != nil {
			logger.Error("Health server failed", zap.Error(err))
		}
	}()
	defer healthServer.Stop()

	// 启动 Metrics 服务器
	if cfg.Observability.Metrics.Enabled {
		go startMetricsServer(cfg.Observability.Metrics, healthServer, logger)
	}

	// 创建 Temporal 客户端
	c, err := client.Dial(client.Options{
		HostPort:  cfg.Temporal.Address,
		Namespace: cfg.Temporal.Namespace,
		Logger:    logging.NewTemporalLogger(logger),
	})
	if err != nil {
		logger.Fatal("Failed to create Temporal client", zap.Error(err))
	}
	defer c.Close()

	// 创建 Worker
	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.Temporal.Worker.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.Temporal.Worker.MaxConcurrentWorkflows,
		WorkerStopTimeout:                      cfg.System.ShutdownTimeout,
	})

	// 注册工作流
	w.RegisterWorkflow(workflow.ValuationWorkflow)
	w.RegisterWorkflow(workflow.PipelineAnalysisWorkflow) // 单资产模拟子工作流

	// 注册活动
	w.RegisterActivity(activities.FetchMarketSnapshotActivity)
	w.RegisterActivity(activities.SimulateAssetActivity)
	w.RegisterActivity(activities.AggregateValuationActivity)
	w.RegisterActivity(activities.InvalidateSnapshotActivity)
	w.RegisterActivity(activities.NotifyCompensationFailure)

	logger.Info("Starting rNPV Valuation Worker",
		zap.String("task_queue", cfg.Temporal.TaskQueue),
		zap.String("namespace", cfg.Temporal.Namespace),
		zap.String("version", cfg.System.Version),
	)

	// 优雅关闭
	stopCh := make(chan interface{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Received shutdown signal, gracefully stopping...",
			zap.Duration("timeout", cfg.System.ShutdownTimeout))
		cancel()
		close(stopCh)
	}()

	if err := w.Run(stopCh); err != nil {
		logger.Fatal("Worker failed", zap.Error(err))
	}

	logger.Info("Worker stopped")
}

func startMetricsServer(cfg config.MetricsConfig, hs *health.Server, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !hs.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logger.Info("Starting metrics server", zap.String("addr", addr))

	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", zap.Error(err))
	}
}
