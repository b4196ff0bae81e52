package cachetoken

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessStateLazyEpoch(t *testing.T) {
	s := NewProcessState()

	tok, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EpochToken, tok, "untouched state should report the epoch token")
}

func TestProcessStateInvalidateChangesToken(t *testing.T) {
	s := NewProcessState()

	tok1, err := s.Invalidate(context.Background())
	require.NoError(t, err)
	tok2, err := s.Invalidate(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, tok1, tok2, "successive invalidations must yield distinct tokens")

	cur, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, tok2, cur)
}

func TestProcessStateMonotonicUnderFrozenClock(t *testing.T) {
	// A clock that never advances forces the bump-past-previous path.
	frozen := time.Unix(1700000000, 0)
	s := NewProcessState()
	s.now = func() time.Time { return frozen }

	prev := int64(-1)
	for i := 0; i < 5; i++ {
		tok, err := s.Invalidate(context.Background())
		require.NoError(t, err)
		n, err := strconv.ParseInt(tok, 10, 64)
		require.NoError(t, err)
		assert.Greater(t, n, prev, "token must strictly increase")
		prev = n
	}
}

func TestProcessStateConcurrentInvalidations(t *testing.T) {
	s := NewProcessState()

	var wg sync.WaitGroup
	tokens := make(chan string, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := s.Invalidate(context.Background())
			assert.NoError(t, err)
			tokens <- tok
		}()
	}
	wg.Wait()
	close(tokens)

	// Last write wins: the current token must be one of the issued ones,
	// and every issued token must be distinct.
	seen := make(map[string]bool)
	for tok := range tokens {
		assert.False(t, seen[tok], "duplicate token %s", tok)
		seen[tok] = true
	}
	cur, err := s.Current(context.Background())
	require.NoError(t, err)
	assert.True(t, seen[cur], "current token %s was never issued", cur)
}
