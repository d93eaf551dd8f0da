// 错误分类与处理
package errors

import (
	"context"
	"errors"
)

// ErrorLevel 错误级别
type ErrorLevel int

const (
	// L1Recoverable 可恢复错误 - 自动重试
	L1Recoverable ErrorLevel = iota + 1
	// L2Intervention 需要人工干预 (输入错误等)
	L2Intervention
	// L3Fatal 致命错误
	L3Fatal
)

func (l ErrorLevel) String() string {
	switch l {
	case L1Recoverable:
		return "L1_RECOVERABLE"
	case L2Intervention:
		return "L2_INTERVENTION"
	case L3Fatal:
		return "L3_FATAL"
	default:
		return "UNKNOWN"
	}
}

// 预定义错误类型
var (
	ErrDataFetch        = errors.New("market data fetch failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrRateLimited      = errors.New("rate limited")
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// Temporal ApplicationError 类型名, 与 RetryPolicy.NonRetryableErrorTypes 对应
const (
	TypeValidationError = "ValidationError"
	TypeFatalError      = "FatalError"
)

// ClassifiedError 分类后的错误
type ClassifiedError struct {
	Level      ErrorLevel
	Code       string
	Message    string
	Cause      error
	Retryable  bool
	MaxRetries int
}

func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ClassifyError 对错误进行分类
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classifiedErr *ClassifiedError
	if errors.As(err, &classifiedErr) {
		return classifiedErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "TIMEOUT",
			Message:    "Operation timed out",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
		}

	case errors.Is(err, ErrRateLimited):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "RATE_LIMITED",
			Message:    "Rate limit exceeded",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 5,
		}

	case errors.Is(err, ErrDataFetch):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "DATA_FETCH_FAILED",
			Message:    "Market data unavailable",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 5,
		}

	case errors.Is(err, ErrCacheUnavailable):
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "CACHE_UNAVAILABLE",
			Message:    "Cache service unavailable",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 3,
		}

	case errors.Is(err, ErrInvalidInput):
		return &ClassifiedError{
			Level:     L2Intervention,
			Code:      "INVALID_INPUT",
			Message:   "Input outside of its documented domain",
			Cause:     err,
			Retryable: false,
		}

	case errors.Is(err, ErrConfigInvalid):
		return &ClassifiedError{
			Level:     L3Fatal,
			Code:      "FATAL_CONFIG",
			Message:   "Fatal configuration error",
			Cause:     err,
			Retryable: false,
		}

	default:
		return &ClassifiedError{
			Level:      L1Recoverable,
			Code:       "UNKNOWN",
			Message:    "Unknown error",
			Cause:      err,
			Retryable:  true,
			MaxRetries: 1,
		}
	}
}

// RetryBudgetExhausted 可重试错误的尝试次数 (从 1 开始) 是否已超过该类错误的上限
func RetryBudgetExhausted(err error, attempt int32) bool {
	classified := ClassifyError(err)
	if classified == nil || !classified.Retryable || classified.MaxRetries <= 0 {
		return false
	}
	return int(attempt) > classified.MaxRetries
}

// Is 同标准库 errors.Is, 便于调用方不必再引入标准库包
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// TemporalType 返回错误对应的 Temporal ApplicationError 类型名
func TemporalType(err error) string {
	classified := ClassifyError(err)
	if classified == nil {
		return ""
	}
	switch classified.Level {
	case L2Intervention:
		return TypeValidationError
	case L3Fatal:
		return TypeFatalError
	default:
		return classified.Code
	}
}
