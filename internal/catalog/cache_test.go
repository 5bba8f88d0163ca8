package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestFetchProductPopulatesAndHits(t *testing.T) {
	cache := newTestCache(t)
	id := uuid.New()
	want := Product{ID: id, Name: "Ração Premium", Price: decimal.RequireFromString("120.00")}

	calls := 0
	loader := func(context.Context) (Product, error) {
		calls++
		return want, nil
	}

	got, err := cache.FetchProduct(context.Background(), id, loader)
	require.NoError(t, err)
	require.Equal(t, want.Name, got.Name)
	require.Equal(t, 1, calls)

	// Second read is served from the cache.
	got, err = cache.FetchProduct(context.Background(), id, loader)
	require.NoError(t, err)
	require.Equal(t, want.Name, got.Name)
	require.True(t, got.Price.Equal(want.Price))
	require.Equal(t, 1, calls)
}

func TestInvalidateForcesReload(t *testing.T) {
	cache := newTestCache(t)
	id := uuid.New()

	calls := 0
	loader := func(context.Context) (Product, error) {
		calls++
		return Product{ID: id, Name: "Coleira"}, nil
	}

	_, err := cache.FetchProduct(context.Background(), id, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Invalidate(context.Background(), id))

	_, err = cache.FetchProduct(context.Background(), id, loader)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestNilCacheDelegatesToLoader(t *testing.T) {
	var cache *Cache
	id := uuid.New()

	got, err := cache.FetchProduct(context.Background(), id, func(context.Context) (Product, error) {
		return Product{ID: id}, nil
	})
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.NoError(t, cache.Invalidate(context.Background(), id))
}
