package marketdata

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/argo-guard/internal/logger"
	"github.com/rxtech-lab/argo-guard/internal/types"
	"github.com/rxtech-lab/argo-guard/pkg/errors"
	"go.uber.org/zap"
)

// RetryConfig bounds the exponential backoff used for every backend call.
type RetryConfig struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// RetryBackend decorates a Backend with exponential backoff and jitter. Only
// transient errors are retried. After MaxAttempts the last error is returned
// wrapped with ErrCodeRetryExhausted.
type RetryBackend struct {
	inner  Backend
	config RetryConfig
	logger *logger.Logger
}

// NewRetryBackend wraps inner.
func NewRetryBackend(inner Backend, config RetryConfig, log *logger.Logger) *RetryBackend {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	return &RetryBackend{
		inner:  inner,
		config: config,
		logger: log,
	}
}

func (r *RetryBackend) FetchRange(ctx context.Context, symbol string, tf Timeframe, sinceMs int64, limit int) ([]types.MarketData, error) {
	return r.do(ctx, "fetchRange", symbol, func() ([]types.MarketData, error) {
		return r.inner.FetchRange(ctx, symbol, tf, sinceMs, limit)
	})
}

func (r *RetryBackend) FetchRecent(ctx context.Context, symbol string, tf Timeframe, limit int) ([]types.MarketData, error) {
	return r.do(ctx, "fetchRecent", symbol, func() ([]types.MarketData, error) {
		return r.inner.FetchRecent(ctx, symbol, tf, limit)
	})
}

func (r *RetryBackend) Venue() Venue {
	return r.inner.Venue()
}

func (r *RetryBackend) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = r.config.InitialInterval
	exp.MaxInterval = r.config.MaxInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0.5
	exp.MaxElapsedTime = 0

	//nolint:gosec // MaxAttempts is validated to be >= 1
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(r.config.MaxAttempts-1)), ctx)
}

func (r *RetryBackend) do(ctx context.Context, op string, symbol string, fn func() ([]types.MarketData, error)) ([]types.MarketData, error) {
	var rows []types.MarketData

	attempts := 0

	operation := func() error {
		attempts++

		out, err := fn()
		if err != nil {
			if !errors.IsTransient(err) {
				return backoff.Permanent(err)
			}

			return err
		}

		rows = out

		return nil
	}

	notify := func(err error, wait time.Duration) {
		if r.logger == nil {
			return
		}

		r.logger.Warn("Market data call failed, retrying",
			zap.String("op", op),
			zap.String("symbol", symbol),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(operation, r.newBackOff(ctx), notify)
	if err != nil {
		if errors.IsTransient(err) {
			return nil, errors.Wrapf(errors.ErrCodeRetryExhausted, err, "%s %s failed after %d attempts", op, symbol, attempts)
		}

		return nil, err
	}

	return rows, nil
}
