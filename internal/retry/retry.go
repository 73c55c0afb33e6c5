// Package retry provides best-effort background reattempts for
// persistence writes.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tekkistudio/sales-orchestrator/pkg/logger"
	"github.com/tekkistudio/sales-orchestrator/pkg/metrics"
)

// InBackground runs op with exponential backoff on a fresh goroutine.
// The caller's reply is never blocked; persistent failure is logged
// and abandoned after maxElapsed.
func InBackground(log *logger.Logger, name string, maxElapsed time.Duration, op func(ctx context.Context) error) {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), maxElapsed)
		defer cancel()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 250 * time.Millisecond
		policy.MaxElapsedTime = maxElapsed

		err := backoff.Retry(func() error {
			metrics.PersistenceRetries.Inc()
			return op(ctx)
		}, backoff.WithContext(policy, ctx))

		if err != nil {
			log.Error("background write abandoned",
				zap.String("op", name), zap.Error(err))
		}
	}()
}
