package cachetoken

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/bazar/internal/federation"
)

// Invalidator notifies the registry that cached aggregate data is stale.
// Store services call Notify after every successful mutation.
//
// The call is fire-and-forget by contract: it runs on a background
// goroutine with its own timeout, its outcome is logged, and it is never
// retried and never propagated to the caller of the original mutation.
type Invalidator struct {
	registryURL string
	timeout     time.Duration
	log         *zap.Logger
	post        func(ctx context.Context, url string, body, out any) error
}

func NewInvalidator(registryURL string, log *zap.Logger) *Invalidator {
	return &Invalidator{
		registryURL: registryURL,
		timeout:     3 * time.Second,
		log:         log,
		post:        federation.PostJSON,
	}
}

// Notify kicks off the invalidation call and returns immediately.
func (i *Invalidator) Notify() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), i.timeout)
		defer cancel()

		err := i.post(ctx, i.registryURL+"/api", federation.Request{Action: "invalidateCache"}, nil)
		if err != nil {
			i.log.Warn("cache invalidation call failed",
				zap.String("registry", i.registryURL),
				zap.Error(err))
			return
		}
		i.log.Debug("cache invalidated", zap.String("registry", i.registryURL))
	}()
}
