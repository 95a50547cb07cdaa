package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"match-lobby-system/models"
	"match-lobby-system/services"
	"match-lobby-system/storage"
)

type payload struct {
	Value string `json:"value"`
	N     int    `json:"n"`
}

func newCacheForTest(t *testing.T) (*services.IdempotencyCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return services.NewIdempotencyCache(storage.NewStore(client)), mr
}

func TestReplayExecutesOnce(t *testing.T) {
	cache, _ := newCacheForTest(t)
	ctx := context.Background()

	calls := 0
	fn := func() (payload, error) {
		calls++
		return payload{Value: "hello", N: calls}, nil
	}

	first, err := services.Replay(ctx, cache, "key-1", services.MutationCacheTTL, fn)
	require.NoError(t, err)
	second, err := services.Replay(ctx, cache, "key-1", services.MutationCacheTTL, fn)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, second.N)
}

func TestReplayEmptyKeyDisablesCaching(t *testing.T) {
	cache, _ := newCacheForTest(t)
	ctx := context.Background()

	calls := 0
	fn := func() (payload, error) {
		calls++
		return payload{N: calls}, nil
	}

	_, err := services.Replay(ctx, cache, "", services.MutationCacheTTL, fn)
	require.NoError(t, err)
	_, err = services.Replay(ctx, cache, "", services.MutationCacheTTL, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestReplayDistinctKeysDistinctResults(t *testing.T) {
	cache, _ := newCacheForTest(t)
	ctx := context.Background()

	calls := 0
	fn := func() (payload, error) {
		calls++
		return payload{N: calls}, nil
	}

	a, err := services.Replay(ctx, cache, "key-a", services.MutationCacheTTL, fn)
	require.NoError(t, err)
	b, err := services.Replay(ctx, cache, "key-b", services.MutationCacheTTL, fn)
	require.NoError(t, err)
	assert.NotEqual(t, a.N, b.N)
}

func TestReplayPreservesErrorCategory(t *testing.T) {
	cache, _ := newCacheForTest(t)
	ctx := context.Background()

	calls := 0
	fn := func() (payload, error) {
		calls++
		return payload{}, models.ErrAlreadyFull
	}

	_, err := services.Replay(ctx, cache, "err-key", services.MutationCacheTTL, fn)
	require.ErrorIs(t, err, models.ErrAlreadyFull)

	// the error replays without re-executing
	_, err = services.Replay(ctx, cache, "err-key", services.MutationCacheTTL, fn)
	require.ErrorIs(t, err, models.ErrAlreadyFull)
	assert.Equal(t, 1, calls)
}

func TestReplayDoesNotPinUnknownErrors(t *testing.T) {
	cache, _ := newCacheForTest(t)
	ctx := context.Background()

	calls := 0
	fn := func() (payload, error) {
		calls++
		if calls == 1 {
			return payload{}, assert.AnError
		}
		return payload{Value: "recovered"}, nil
	}

	_, err := services.Replay(ctx, cache, "flaky-key", services.MutationCacheTTL, fn)
	require.Error(t, err)

	// an infrastructure failure is not an outcome; the retry really executes
	result, err := services.Replay(ctx, cache, "flaky-key", services.MutationCacheTTL, fn)
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Value)
	assert.Equal(t, 2, calls)
}

func TestReplayExpiresAfterTTL(t *testing.T) {
	cache, mr := newCacheForTest(t)
	ctx := context.Background()

	calls := 0
	fn := func() (payload, error) {
		calls++
		return payload{N: calls}, nil
	}

	_, err := services.Replay(ctx, cache, "ttl-key", time.Minute, fn)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	// after expiry the repeated call is treated as new
	result, err := services.Replay(ctx, cache, "ttl-key", time.Minute, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, result.N)
}
