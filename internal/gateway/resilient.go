package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/gommon/log"
	"github.com/sony/gobreaker"
)

// Resilient wraps a Gateway with a circuit breaker and a bounded
// exponential retry of transient failures.  Rejections are returned at once
// and never count against the breaker.
type Resilient struct {
	next     Gateway
	breaker  *gobreaker.CircuitBreaker
	attempts int
	backoff  time.Duration
	logger   *log.Logger
}

// BreakerSettings trips after three requests with at least 60% transient
// failures and lets traffic through again after timeout.
func BreakerSettings(name string, timeout time.Duration, logger *log.Logger) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("circuit breaker %q: %s -> %s", name, from, to)
		},
	}
}

// NewResilient wraps next.  attempts counts the first call.
func NewResilient(next Gateway, attempts int, backoff time.Duration, logger *log.Logger) *Resilient {
	if attempts < 1 {
		attempts = 1
	}
	return &Resilient{
		next:     next,
		breaker:  gobreaker.NewCircuitBreaker(BreakerSettings("payment-gateway", 30*time.Second, logger)),
		attempts: attempts,
		backoff:  backoff,
		logger:   logger,
	}
}

// Breaker exposes the circuit breaker, mostly for health reporting.
func (r *Resilient) Breaker() *gobreaker.CircuitBreaker { return r.breaker }

// IsCircuitBreakerError reports whether err came from the breaker refusing
// the call rather than from the gateway.
func IsCircuitBreakerError(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func (r *Resilient) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.backoff
	b.MaxInterval = 30 * r.backoff
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.attempts-1)), ctx)
}

func (r *Resilient) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		_, err := r.breaker.Execute(func() (interface{}, error) { return nil, fn(ctx) })
		switch {
		case err == nil:
			return nil
		case IsCircuitBreakerError(err):
			return backoff.Permanent(fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err))
		case !errors.Is(err, ErrUnavailable):
			return backoff.Permanent(err)
		}
		if attempt < r.attempts {
			r.logger.Warnf("gateway %s attempt %d/%d failed: %v", op, attempt, r.attempts, err)
		}
		return err
	}, r.policy(ctx))
	if err != nil && !errors.Is(err, ErrUnavailable) &&
		(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, ctx.Err())
	}
	return err
}

func (r *Resilient) Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error) {
	var out Authorization
	err := r.do(ctx, "authorize", func(ctx context.Context) error {
		var err error
		out, err = r.next.Authorize(ctx, req)
		return err
	})
	return out, err
}

// Confirm is safe to retry: the gateway answers a repeated verify of the
// same authority with "already verified".
func (r *Resilient) Confirm(ctx context.Context, authority string, amount int64) (Confirmation, error) {
	var out Confirmation
	err := r.do(ctx, "confirm", func(ctx context.Context) error {
		var err error
		out, err = r.next.Confirm(ctx, authority, amount)
		return err
	})
	return out, err
}

func (r *Resilient) Inquire(ctx context.Context, authority string) (Inquiry, error) {
	var out Inquiry
	err := r.do(ctx, "inquire", func(ctx context.Context) error {
		var err error
		out, err = r.next.Inquire(ctx, authority)
		return err
	})
	return out, err
}

func (r *Resilient) Reverse(ctx context.Context, authority string) error {
	return r.do(ctx, "reverse", func(ctx context.Context) error {
		return r.next.Reverse(ctx, authority)
	})
}
