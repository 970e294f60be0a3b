package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/BaoNguyen09/repo-explainer/internal/domain"
)

// retryTransient runs op and, if it fails with a transient upstream error,
// runs it exactly once more after delay. Any other error is returned at once.
func retryTransient[T any](ctx context.Context, delay time.Duration, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !domain.Transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(delay)),
		backoff.WithMaxTries(2),
	)
}
