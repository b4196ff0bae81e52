package cachetoken

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// EpochToken is the value a token state holds before the first
// invalidation. Readers holding it are stale relative to any invalidation
// that has ever happened.
const EpochToken = "0"

// State is the injectable accessor for the process-wide cache coherence
// token. The token is an opaque, monotonically increasing string derived
// from wall-clock time; readers compare a stored token against the
// current one to decide whether cached aggregate data may be stale.
//
// Invalidation is a liveness signal, not an ordering primitive:
// concurrent invalidations are last-write-wins on wall-clock value, and
// readers learn about invalidations only on their next natural refresh.
type State interface {
	// Current returns the token as of now, initializing lazily to
	// EpochToken when no invalidation has happened yet.
	Current(ctx context.Context) (string, error)

	// Invalidate advances the token and returns the new value.
	// Two successive invalidations always yield distinct tokens.
	Invalidate(ctx context.Context) (string, error)
}

// nextToken derives a token from wall-clock time, bumping past prev when
// the clock is too coarse to have moved.
func nextToken(now time.Time, prev string) string {
	tok := now.UnixNano()
	if p, err := strconv.ParseInt(prev, 10, 64); err == nil && tok <= p {
		tok = p + 1
	}
	return strconv.FormatInt(tok, 10)
}

// ProcessState holds the token in process memory. This is the single
// service deployment shape; RedisState covers multi-process deployments.
type ProcessState struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewProcessState() *ProcessState {
	return &ProcessState{now: time.Now}
}

func (s *ProcessState) Current(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return EpochToken, nil
	}
	return s.token, nil
}

func (s *ProcessState) Invalidate(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.token
	if prev == "" {
		prev = EpochToken
	}
	s.token = nextToken(s.now(), prev)
	return s.token, nil
}
