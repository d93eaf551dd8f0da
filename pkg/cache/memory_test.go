package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	value, err := store.Get(ctx, "snapshot:EXMP")
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, store.Set(ctx, "snapshot:EXMP", `{"ticker":"EXMP"}`, 0))
	value, err = store.Get(ctx, "snapshot:EXMP")
	require.NoError(t, err)
	assert.Equal(t, `{"ticker":"EXMP"}`, value)

	require.NoError(t, store.Delete(ctx, "snapshot:EXMP"))
	value, err = store.Get(ctx, "snapshot:EXMP")
	require.NoError(t, err)
	assert.Empty(t, value)
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Set(ctx, "k", "v", time.Minute))

	now = now.Add(59 * time.Second)
	value, _ := store.Get(ctx, "k")
	assert.Equal(t, "v", value)

	now = now.Add(time.Second)
	value, _ = store.Get(ctx, "k")
	assert.Empty(t, value)
}

func TestMemoryStoreStream(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	values := map[string]interface{}{"ticker": "EXMP"}
	id, err := store.XAdd(ctx, "valuation:results", values)
	require.NoError(t, err)
	assert.Equal(t, "1-0", id)

	values["ticker"] = "mutated"
	messages := store.Stream("valuation:results")
	require.Len(t, messages, 1)
	assert.Equal(t, "EXMP", messages[0]["ticker"])
	assert.Empty(t, store.Stream("other"))
}
