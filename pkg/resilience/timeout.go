package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Rifat977/search-bench/pkg/errors"
)

// WithTimeout runs fn under a deadline. If fn has not returned when the
// deadline passes, WithTimeout returns an error matching
// apperrors.ErrTimeout and fn is left to observe its cancelled context.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- fn(timeoutCtx)
	}()
	select {
	case err := <-done:
		return err
	case <-timeoutCtx.Done():
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return fmt.Errorf("%s exceeded %v: %w", name, timeout, apperrors.ErrTimeout)
	}
}
