package marketdata

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/biovalue-ai/rnpv/internal/valuation"
	"github.com/biovalue-ai/rnpv/pkg/cache"
	bverrors "github.com/biovalue-ai/rnpv/pkg/errors"
)

type countingFetcher struct {
	calls int
	err   error
}

func (f *countingFetcher) FetchSnapshot(_ context.Context, ticker string) (*valuation.MarketSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &valuation.MarketSnapshot{Ticker: ticker, MarketCap: 5e9, SharesOutstanding: 1e8, Summary: "cached"}, nil
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, error) {
	return "", fmt.Errorf("%w: connection refused", bverrors.ErrCacheUnavailable)
}

func (brokenStore) Set(context.Context, string, string, time.Duration) error {
	return fmt.Errorf("%w: connection refused", bverrors.ErrCacheUnavailable)
}

func (brokenStore) Delete(context.Context, string) error { return nil }

func TestCachedFetcherHitAndInvalidate(t *testing.T) {
	ctx := context.Background()
	upstream := &countingFetcher{}
	store := cache.NewMemoryStore()
	fetcher := NewCachedFetcher(upstream, store, time.Hour, zap.NewNop())

	first, err := fetcher.FetchSnapshot(ctx, "exmp")
	require.NoError(t, err)
	second, err := fetcher.FetchSnapshot(ctx, "EXMP")
	require.NoError(t, err)

	assert.Equal(t, 1, upstream.calls)
	assert.Equal(t, first.MarketCap, second.MarketCap)
	assert.Equal(t, "EXMP", second.Ticker)

	raw, err := store.Get(ctx, SnapshotKey("EXMP"))
	require.NoError(t, err)
	assert.Contains(t, raw, `"market_cap":5000000000`)

	require.NoError(t, fetcher.Invalidate(ctx, "exmp"))
	_, err = fetcher.FetchSnapshot(ctx, "EXMP")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedFetcherIgnoresCorruptEntries(t *testing.T) {
	ctx := context.Background()
	upstream := &countingFetcher{}
	store := cache.NewMemoryStore()
	require.NoError(t, store.Set(ctx, SnapshotKey("EXMP"), "{not json", 0))

	snapshot, err := NewCachedFetcher(upstream, store, time.Hour, zap.NewNop()).FetchSnapshot(ctx, "EXMP")
	require.NoError(t, err)
	assert.Equal(t, "cached", snapshot.Summary)
	assert.Equal(t, 1, upstream.calls)
}

func TestCachedFetcherDegradesWithoutCache(t *testing.T) {
	upstream := &countingFetcher{}
	fetcher := NewCachedFetcher(upstream, brokenStore{}, time.Hour, zap.NewNop())

	_, err := fetcher.FetchSnapshot(context.Background(), "EXMP")
	require.NoError(t, err)
	_, err = fetcher.FetchSnapshot(context.Background(), "EXMP")
	require.NoError(t, err)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedFetcherPropagatesFetchErrors(t *testing.T) {
	upstream := &countingFetcher{err: fmt.Errorf("%w: status 503", bverrors.ErrDataFetch)}
	store := cache.NewMemoryStore()
	fetcher := NewCachedFetcher(upstream, store, time.Hour, zap.NewNop())

	_, err := fetcher.FetchSnapshot(context.Background(), "EXMP")
	assert.True(t, errors.Is(err, bverrors.ErrDataFetch))

	raw, _ := store.Get(context.Background(), SnapshotKey("EXMP"))
	assert.Empty(t, raw, "failures are never cached")
}
