package cachetoken

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisState(t *testing.T) *RedisState {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return &RedisState{client: client, now: time.Now}
}

func TestNewRedisStateRejectsBadURL(t *testing.T) {
	_, err := NewRedisState("not-a-redis-url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis url")
}

func TestRedisStateLazyEpoch(t *testing.T) {
	s := newTestRedisState(t)

	tok, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EpochToken, tok)
}

func TestRedisStateInvalidateChangesToken(t *testing.T) {
	s := newTestRedisState(t)

	tok1, err := s.Invalidate(context.Background())
	require.NoError(t, err)
	tok2, err := s.Invalidate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, tok1, tok2)

	cur, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok2, cur)
}

// TestRedisStateContractParity runs the same observable sequence against both
// implementations and expects identical shapes.
func TestRedisStateContractParity(t *testing.T) {
	states := map[string]State{
		"process": NewProcessState(),
		"redis":   newTestRedisState(t),
	}
	for name, s := range states {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			cur, err := s.Current(ctx)
			require.NoError(t, err)
			assert.Equal(t, EpochToken, cur)

			tok, err := s.Invalidate(ctx)
			require.NoError(t, err)
			assert.NotEqual(t, EpochToken, tok)

			cur, err = s.Current(ctx)
			require.NoError(t, err)
			assert.Equal(t, tok, cur)
		})
	}
}
