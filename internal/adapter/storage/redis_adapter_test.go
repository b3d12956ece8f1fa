package storage

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyshop/backoffice/internal/core/domain"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSetIdempotency_Success(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, time.Minute)

	client.Del(ctx, idempotencyKeyPrefix+"test-idem-key")

	ok, err := adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.True(t, ok, "first call should succeed")

	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.False(t, ok, "second call should fail")

	require.NoError(t, adapter.ReleaseIdempotency(ctx, "test-idem-key"))
	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.True(t, ok, "released key can be claimed again")
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, time.Minute)

	client.Del(ctx, idempotencyKeyPrefix+"concurrent-idem-key")

	var successCount atomic.Int32
	var wg sync.WaitGroup
	concurrency := 100

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}

	wg.Wait()

	assert.EqualValues(t, 1, successCount.Load(), "only one claim may succeed")
}

func TestReportCache_RoundTripAndInvalidate(t *testing.T) {
	client := getRedisClient(t)
	ctx := context.Background()
	adapter := NewRedisAdapter(client, time.Minute, time.Minute)

	want := []domain.TopProduct{{ProductID: 7, ProductName: "Tea", Quantity: 3, Revenue: decimal.RequireFromString("4.50")}}
	require.NoError(t, adapter.SetReport(ctx, "dashboard:test:top", want))

	var got []domain.TopProduct
	hit, err := adapter.GetReport(ctx, "dashboard:test:top", &got)
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 1)
	assert.Equal(t, "Tea", got[0].ProductName)
	assert.True(t, got[0].Revenue.Equal(want[0].Revenue))

	require.NoError(t, adapter.SetReport(ctx, "dashboard:test:stats", want))
	require.NoError(t, adapter.DeleteReport(ctx, "dashboard:test:stats"))
	hit, err = adapter.GetReport(ctx, "dashboard:test:stats", &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, adapter.InvalidateReports(ctx))

	hit, err = adapter.GetReport(ctx, "dashboard:test:top", &got)
	require.NoError(t, err)
	assert.False(t, hit)
}
