package cachetoken

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const tokenKey = "bazar:cache_token"

// RedisState keeps the coherence token in Redis so several registry
// processes observe one token. Same contract as ProcessState; the
// last-write-wins trade-off is unchanged, Redis just widens its scope.
type RedisState struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisState connects to the given redis:// URL and verifies the
// connection before returning.
func NewRedisState(redisURL string) (*RedisState, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cachetoken: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cachetoken: connect redis: %w", err)
	}
	return &RedisState{client: client, now: time.Now}, nil
}

func (s *RedisState) Current(ctx context.Context) (string, error) {
	tok, err := s.client.Get(ctx, tokenKey).Result()
	if err == redis.Nil {
		return EpochToken, nil
	}
	if err != nil {
		return "", fmt.Errorf("cachetoken: read token: %w", err)
	}
	return tok, nil
}

func (s *RedisState) Invalidate(ctx context.Context) (string, error) {
	prev, err := s.Current(ctx)
	if err != nil {
		return "", err
	}
	tok := nextToken(s.now(), prev)
	if err := s.client.Set(ctx, tokenKey, tok, 0).Err(); err != nil {
		return "", fmt.Errorf("cachetoken: write token: %w", err)
	}
	return tok, nil
}

// Close releases the underlying connection pool.
func (s *RedisState) Close() error { return s.client.Close() }
