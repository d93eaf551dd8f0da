// 市场数据获取
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	"github.com/biovalue-ai/rnpv/pkg/cache"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

// DefaultSummary 无公司简介时的占位文本
const DefaultSummary = "No summary available."

// Fetcher 市场数据源
type Fetcher interface {
	FetchSnapshot(ctx context.Context, ticker string) (*valuation.MarketSnapshot, error)
}

// NormalizeTicker 统一代码格式 (去空白, 大写)
func NormalizeTicker(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return "", fmt.Errorf("%w: ticker is empty", bverrors.ErrInvalidInput)
	}
	if strings.ContainsAny(t, " /?#&") {
		return "", fmt.Errorf("%w: malformed ticker %q", bverrors.ErrInvalidInput, ticker)
	}
	return t, nil
}

// SnapshotKey 快照缓存键
func SnapshotKey(ticker string) string {
	return "rnpv:snapshot:" + strings.ToUpper(ticker)
}

// CachedFetcher 在 Fetcher 前加一层快照缓存
type CachedFetcher struct {
	next   Fetcher
	store  cache.Store
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedFetcher 创建带缓存的 Fetcher
func NewCachedFetcher(next Fetcher, store cache.Store, ttl time.Duration, logger *zap.Logger) *CachedFetcher {
	return &CachedFetcher{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "snapshot_cache")),
	}
}

// FetchSnapshot 命中缓存直接返回, 否则回源并写入缓存
func (c *CachedFetcher) FetchSnapshot(ctx context.Context, ticker string) (*valuation.MarketSnapshot, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	key := SnapshotKey(t)

	// 缓存不可用时降级为直接回源
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Snapshot cache read failed", zap.String("ticker", t), zap.Error(err))
	} else if raw != "" {
		var snapshot valuation.MarketSnapshot
		if err := json.Unmarshal([]byte(raw), &snapshot); err == nil {
			c.logger.Debug("Snapshot cache hit", zap.String("ticker", t))
			return &snapshot, nil
		}
		c.logger.Warn("Discarding corrupt cached snapshot", zap.String("ticker", t))
	}

	snapshot, err := c.next.FetchSnapshot(ctx, t)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Warn("Snapshot cache write failed", zap.String("ticker", t), zap.Error(err))
	}
	return snapshot, nil
}

// Invalidate 删除缓存的快照
func (c *CachedFetcher) Invalidate(ctx context.Context, ticker string) error {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, SnapshotKey(t))
}
