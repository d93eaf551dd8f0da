// 配置管理
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// DefaultConfigPath 默认配置文件路径
const DefaultConfigPath = "config/config.yaml"

// Config 主配置结构
type Config struct {
	System        SystemConfig        `mapstructure:"system"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Storage       StorageConfig       `mapstructure:"storage"`
	MarketData    MarketDataConfig    `mapstructure:"market_data"`
	Valuation     ValuationConfig     `mapstructure:"valuation"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Env             string        `mapstructure:"env"`
	ServiceName     string        `mapstructure:"service_name"`
	Version         string        `mapstructure:"version"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TemporalConfig Temporal 配置
type TemporalConfig struct {
	Address   string       `mapstructure:"address"`
	Namespace string       `mapstructure:"namespace"`
	TaskQueue string       `mapstructure:"task_queue"`
	Worker    WorkerConfig `mapstructure:"worker"`
	Retry     RetryConfig  `mapstructure:"retry"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	MaxConcurrentActivities int `mapstructure:"max_concurrent_activities"`
	MaxConcurrentWorkflows  int `mapstructure:"max_concurrent_workflows"`
}

// RetryConfig 市场数据拉取的重试配置
type RetryConfig struct {
	InitialInterval    time.Duration `mapstructure:"initial_interval"`
	BackoffCoefficient float64       `mapstructure:"backoff_coefficient"`
	MaximumInterval    time.Duration `mapstructure:"maximum_interval"`
	MaximumAttempts    int           `mapstructure:"maximum_attempts"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Address       string        `mapstructure:"address"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"`
	PoolSize      int           `mapstructure:"pool_size"`
	MinIdleConns  int           `mapstructure:"min_idle_conns"`
	DialTimeout   time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	SnapshotTTL   time.Duration `mapstructure:"snapshot_ttl"`
	ResultsStream string        `mapstructure:"results_stream"`
}

// MarketDataConfig 市场数据源配置
type MarketDataConfig struct {
	BaseURL    string          `mapstructure:"base_url"`
	ProfileURL string          `mapstructure:"profile_url"`
	UserAgent  string          `mapstructure:"user_agent"`
	Timeout    time.Duration   `mapstructure:"timeout"`
	RateLimit  RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig 限速配置
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// ValuationConfig 估值假设
type ValuationConfig struct {
	DiscountRate              float64             `mapstructure:"discount_rate"`
	DelayCost                 float64             `mapstructure:"delay_cost"`
	FallbackSharesOutstanding float64             `mapstructure:"fallback_shares_outstanding"`
	CombinationMode           string              `mapstructure:"combination_mode"`
	MaxAssets                 int                 `mapstructure:"max_assets"`
	MaxYears                  int                 `mapstructure:"max_years"`
	Probabilities             ProbabilitiesConfig `mapstructure:"probabilities"`
}

// ProbabilitiesConfig 成功率表, 键为阶段文本 ("Phase 1" 等)
type ProbabilitiesConfig struct {
	Standard    map[string]float64 `mapstructure:"standard"`
	RareDisease map[string]float64 `mapstructure:"rare_disease"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
	Health  HealthConfig  `mapstructure:"health"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// HealthConfig gRPC 健康检查配置
type HealthConfig struct {
	GRPCPort int `mapstructure:"grpc_port"`
}

// Load 加载配置, 路径取 CONFIG_PATH, 默认 config/config.yaml
func Load() (*Config, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	return LoadFile(configPath)
}

// LoadFile 从指定文件加载配置
func LoadFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量替换
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	registerDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return decode(v)
}

// Default 不读文件, 只使用默认值 (本地 CLI 与测试使用)
func Default() *Config {
	v := viper.New()
	registerDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		// 默认值本身不合法属于编程错误
		panic(err)
	}
	return cfg
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Storage.Redis.Password = os.ExpandEnv(config.Storage.Redis.Password)

	setDefaults(&config)

	if _, err := config.Assumptions(); err != nil {
		return nil, err
	}
	return &config, nil
}

// registerDefaults 估值相关默认值, 零值也是合法配置所以走 viper 默认值
func registerDefaults(v *viper.Viper) {
	v.SetDefault("valuation.discount_rate", valuation.DefaultDiscountRate)
	v.SetDefault("valuation.delay_cost", valuation.DefaultDelayCost)
	v.SetDefault("valuation.fallback_shares_outstanding", valuation.DefaultFallbackShares)
	v.SetDefault("valuation.combination_mode", string(valuation.CombinePerAsset))
	v.SetDefault("valuation.max_assets", valuation.DefaultMaxAssets)
	v.SetDefault("valuation.max_years", valuation.DefaultMaxYears)

	table := valuation.DefaultProbabilityTable()
	v.SetDefault("valuation.probabilities.standard", phaseKeyed(table.Standard))
	v.SetDefault("valuation.probabilities.rare_disease", phaseKeyed(table.RareDisease))
}

func setDefaults(cfg *Config) {
	if cfg.System.ServiceName == "" {
		cfg.System.ServiceName = "biovalue-rnpv"
	}
	if cfg.System.ShutdownTimeout == 0 {
		cfg.System.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Temporal.Address == "" {
		cfg.Temporal.Address = "localhost:7233"
	}
	if cfg.Temporal.Namespace == "" {
		cfg.Temporal.Namespace = "default"
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "rnpv-valuation"
	}
	if cfg.Temporal.Worker.MaxConcurrentActivities == 0 {
		cfg.Temporal.Worker.MaxConcurrentActivities = 20
	}
	if cfg.Temporal.Worker.MaxConcurrentWorkflows == 0 {
		cfg.Temporal.Worker.MaxConcurrentWorkflows = 10
	}
	if cfg.Temporal.Retry.InitialInterval == 0 {
		cfg.Temporal.Retry.InitialInterval = 2 * time.Second
	}
	if cfg.Temporal.Retry.BackoffCoefficient == 0 {
		cfg.Temporal.Retry.BackoffCoefficient = 2.0
	}
	if cfg.Temporal.Retry.MaximumInterval == 0 {
		cfg.Temporal.Retry.MaximumInterval = time.Minute
	}
	if cfg.Temporal.Retry.MaximumAttempts == 0 {
		cfg.Temporal.Retry.MaximumAttempts = 5
	}
	if cfg.Storage.Redis.Address == "" {
		cfg.Storage.Redis.Address = "localhost:6379"
	}
	if cfg.Storage.Redis.PoolSize == 0 {
		cfg.Storage.Redis.PoolSize = 20
	}
	if cfg.Storage.Redis.SnapshotTTL == 0 {
		cfg.Storage.Redis.SnapshotTTL = 6 * time.Hour
	}
	if cfg.Storage.Redis.ResultsStream == "" {
		cfg.Storage.Redis.ResultsStream = "valuation:results"
	}
	if cfg.MarketData.BaseURL == "" {
		cfg.MarketData.BaseURL = "https://query2.finance.yahoo.com"
	}
	if cfg.MarketData.ProfileURL == "" {
		cfg.MarketData.ProfileURL = "https://finance.yahoo.com"
	}
	if cfg.MarketData.UserAgent == "" {
		cfg.MarketData.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	}
	if cfg.MarketData.Timeout == 0 {
		cfg.MarketData.Timeout = 10 * time.Second
	}
	if cfg.MarketData.RateLimit.RequestsPerMinute == 0 {
		cfg.MarketData.RateLimit.RequestsPerMinute = 60
	}
	if cfg.Observability.Metrics.Port == 0 {
		cfg.Observability.Metrics.Port = 9090
	}
	if cfg.Observability.Metrics.Path == "" {
		cfg.Observability.Metrics.Path = "/metrics"
	}
	if cfg.Observability.Health.GRPCPort == 0 {
		cfg.Observability.Health.GRPCPort = 9091
	}
	if cfg.Observability.Tracing.Endpoint == "" {
		cfg.Observability.Tracing.Endpoint = "localhost:4318"
	}
	if cfg.Observability.Tracing.SampleRate == 0 {
		cfg.Observability.Tracing.SampleRate = 0.1
	}
}

// Assumptions 把估值配置转换为核心使用的枚举键假设, 并校验
func (c *Config) Assumptions() (valuation.Assumptions, error) {
	vc := c.Valuation

	mode, err := valuation.ParseCombinationMode(vc.CombinationMode)
	if err != nil {
		return valuation.Assumptions{}, fmt.Errorf("%w: %v", bverrors.ErrConfigInvalid, err)
	}
	standard, err := parsePhaseTable(vc.Probabilities.Standard)
	if err != nil {
		return valuation.Assumptions{}, fmt.Errorf("valuation.probabilities.standard: %w", err)
	}
	rare, err := parsePhaseTable(vc.Probabilities.RareDisease)
	if err != nil {
		return valuation.Assumptions{}, fmt.Errorf("valuation.probabilities.rare_disease: %w", err)
	}

	a := valuation.Assumptions{
		DiscountRate:    vc.DiscountRate,
		DelayCost:       vc.DelayCost,
		FallbackShares:  vc.FallbackSharesOutstanding,
		CombinationMode: mode,
		Probabilities:   valuation.ProbabilityTable{Standard: standard, RareDisease: rare},
		MaxYears:        vc.MaxYears,
		MaxAssets:       vc.MaxAssets,
	}
	if err := a.Validate(); err != nil {
		if bverrors.Is(err, bverrors.ErrConfigInvalid) {
			return valuation.Assumptions{}, err
		}
		return valuation.Assumptions{}, fmt.Errorf("%w: %v", bverrors.ErrConfigInvalid, err)
	}
	return a, nil
}

func parsePhaseTable(raw map[string]float64) (map[valuation.Phase]float64, error) {
	table := make(map[valuation.Phase]float64, len(raw))
	for key, p := range raw {
		phase, err := valuation.ParsePhase(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", bverrors.ErrConfigInvalid, err)
		}
		if _, dup := table[phase]; dup {
			return nil, fmt.Errorf("%w: duplicate entry for %s", bverrors.ErrConfigInvalid, phase)
		}
		table[phase] = p
	}
	return table, nil
}

func phaseKeyed(table map[valuation.Phase]float64) map[string]interface{} {
	out := make(map[string]interface{}, len(table))
	for phase, p := range table {
		out[phase.String()] = p
	}
	return out
}
