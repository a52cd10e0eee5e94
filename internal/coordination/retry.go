package coordination

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// defaultRetries matches the source's retries=4 default: five total
	// attempts (the initial try plus four retries).
	defaultRetries = 4
	// defaultTimeout matches the source's timeout=10s default.
	defaultTimeout = 10 * time.Second
	// progressLogEvery bounds how often a single Retry call logs while
	// waiting on the connection, regardless of how many times the inner
	// wait loop polls.
	progressLogEvery = 10 * time.Second
)

// RetryOptions configures Retry. The zero value selects the source's
// defaults (retries=4, timeout=10s). Retries < 0 means unlimited attempts,
// matching the source's retries=None.
type RetryOptions struct {
	Retries int
	Timeout time.Duration
}

func (o RetryOptions) retries() int {
	if o.Retries == 0 {
		return defaultRetries
	}
	return o.Retries
}

func (o RetryOptions) timeout() time.Duration {
	if o.Timeout <= 0 {
		return defaultTimeout
	}
	return o.Timeout
}

// Retry executes fn, waiting up to opts.Timeout for the client to be
// connected before each attempt. A connection-wait timeout or an
// ErrNoConnection returned by fn both count as one consumed attempt; any
// other error from fn is returned immediately without consuming the retry
// budget description describes. After opts.Retries+1 total attempts
// without success, Retry returns ErrRetryLimit.
func Retry(ctx context.Context, c *Client, description string, opts RetryOptions, fn func(ctx context.Context) error) error {
	logger := c.logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	limiter := rate.NewLimiter(rate.Every(progressLogEvery), 1)

	maxAttempts := opts.retries() + 1
	unlimited := opts.Retries < 0

	for attempt := 0; unlimited || attempt < maxAttempts; attempt++ {
		waitCtx, cancel := context.WithTimeout(ctx, opts.timeout())
		err := c.WaitConnected(waitCtx)
		cancel()
		if err != nil {
			if limiter.Allow() {
				logger.Infow("retry: still waiting for connection", "operation", description, "attempt", attempt+1)
			}
			continue
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNoConnection) {
			return err
		}
		logger.Debugw("retry: operation failed with no connection", "operation", description, "attempt", attempt+1)
	}

	return ErrRetryLimit
}
