// 结构化日志
package logging

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/biovalue-ai/rnpv/pkg/config"
)

// NewLogger 创建日志记录器; Output 为 stdout, stderr 或文件路径
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if cfg.Format == "json" {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	encoder := zapcore.NewConsoleEncoder(encoderConfig)
	if cfg.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(encoder, output, ParseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func openOutput(output string) (zapcore.WriteSyncer, error) {
	switch output {
	case "", "stdout":
		return zapcore.Lock(os.Stdout), nil
	case "stderr":
		return zapcore.Lock(os.Stderr), nil
	}
	ws, _, err := zap.Open(output)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %s: %w", output, err)
	}
	return ws, nil
}

// ParseLevel 解析日志级别, 未知值按 info 处理
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// WithTrace 附加当前 span 的 trace_id/span_id, 无有效 span 时原样返回
func WithTrace(ctx context.Context, logger *zap.Logger) *zap.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	)
}

// TemporalLogger 适配 Temporal SDK 的日志接口
type TemporalLogger struct {
	logger *zap.Logger
}

var _ log.Logger = (*TemporalLogger)(nil)

// NewTemporalLogger 创建 Temporal 日志适配器
func NewTemporalLogger(logger *zap.Logger) log.Logger {
	return &TemporalLogger{logger: logger.With(zap.String("component", "temporal")).WithOptions(zap.AddCallerSkip(1))}
}

func (l *TemporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, toZapFields(keyvals)...)
}

func (l *TemporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, toZapFields(keyvals)...)
}

func (l *TemporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, toZapFields(keyvals)...)
}

func (l *TemporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, toZapFields(keyvals)...)
}

// toZapFields 键值对个数为奇数时整体丢弃
func toZapFields(keyvals []interface{}) []zap.Field {
	if len(keyvals)%2 != 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keyvals[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}
	return fields
}

var sensitiveKeys = []string{"api_key", "password", "token", "secret"}

// SanitizeForLog 敏感字段脱敏, 键名包含敏感词即视为敏感 (如 redis_password)
func SanitizeForLog(data map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(data))
	for k, v := range data {
		result[k] = v
		lower := strings.ToLower(k)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				result[k] = "***REDACTED***"
				break
			}
		}
	}
	return result
}
