// Prometheus 指标定义
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WorkflowDuration 工作流执行时长
	WorkflowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rnpv_workflow_duration_seconds",
			Help:    "Workflow execution duration",
			Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"workflow_type", "status"},
	)

	// ActivityDuration 活动执行时长
	ActivityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rnpv_activity_duration_seconds",
			Help:    "Activity execution duration",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"activity_name", "status"},
	)

	// CacheOperations 缓存命中情况
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rnpv_cache_operations_total",
			Help: "Cache operations count",
		},
		[]string{"operation", "result"}, // result: hit/miss/error
	)

	// MarketDataRequests 市场数据请求数
	MarketDataRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rnpv_market_data_requests_total",
			Help: "Market data provider requests",
		},
		[]string{"endpoint", "status"},
	)

	// MarketDataLatency 市场数据请求延迟
	MarketDataLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rnpv_market_data_latency_seconds",
			Help:    "Market data provider latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	// ValuationsTotal 完成的估值次数
	ValuationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rnpv_valuations_total",
			Help: "Completed valuations by combination mode",
		},
		[]string{"mode", "degraded"},
	)

	// PipelineNPV 最近一次估值的管线 NPV
	PipelineNPV = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rnpv_pipeline_npv",
			Help: "Risk-adjusted pipeline NPV of the latest valuation per ticker",
		},
		[]string{"ticker"},
	)

	// AssetsSimulated 已模拟的资产数
	AssetsSimulated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rnpv_assets_simulated_total",
			Help: "Pipeline assets simulated by phase",
		},
		[]string{"phase", "rare_disease"},
	)

	// ErrorsTotal 错误计数
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rnpv_errors_total",
			Help: "Total errors by level and code",
		},
		[]string{"level", "code"},
	)
)
