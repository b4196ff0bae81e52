package cachetoken

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/federation"
)

func TestInvalidatorNotifiesInBackground(t *testing.T) {
	calls := make(chan federation.Request, 1)
	inv := NewInvalidator("http://registry", zap.NewNop())
	inv.post = func(_ context.Context, url string, body, _ any) error {
		assert.Equal(t, "http://registry/api", url)
		calls <- body.(federation.Request)
		return nil
	}

	inv.Notify()

	select {
	case req := <-calls:
		assert.Equal(t, "invalidateCache", req.Action)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation call never happened")
	}
}

func TestInvalidatorSwallowsFailures(t *testing.T) {
	done := make(chan struct{})
	inv := NewInvalidator("http://registry", zap.NewNop())
	inv.post = func(context.Context, string, any, any) error {
		close(done)
		return errors.New("registry unreachable")
	}

	// Notify must return immediately and never surface the error.
	start := time.Now()
	inv.Notify()
	require.Less(t, time.Since(start), 100*time.Millisecond)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation call never attempted")
	}
}

func TestInvalidatorCarriesTimeout(t *testing.T) {
	deadlines := make(chan bool, 1)
	inv := NewInvalidator("http://registry", zap.NewNop())
	inv.post = func(ctx context.Context, _ string, _, _ any) error {
		_, ok := ctx.Deadline()
		deadlines <- ok
		return nil
	}

	inv.Notify()

	select {
	case ok := <-deadlines:
		assert.True(t, ok, "outbound invalidation must carry a timeout")
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation call never happened")
	}
}
