package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sony/gobreaker"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

// Resilience wraps every external call with a per-call timeout, a circuit
// breaker per provider and exponential-backoff retries.
type Resilience struct {
	cfg         config.ResilienceConfig
	callTimeout time.Duration
	logger      *logger.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewResilience(cfg config.ResilienceConfig, callTimeout time.Duration, log *logger.Logger) *Resilience {
	return &Resilience{
		cfg:         cfg,
		callTimeout: callTimeout,
		logger:      log,
		breakers:    make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (r *Resilience) breaker(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	failures := uint32(max(r.cfg.BreakerFailures, 1))
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     r.cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("Circuit breaker state changed", "service", name, "from", from.String(), "to", to.String())
		},
	})
	r.breakers[name] = cb
	return cb
}

// States reports the breaker state per provider.
func (r *Resilience) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	states := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State().String()
	}
	return states
}

// Call runs fn through r. A nil r runs fn directly. Timeouts come back as
// timeout errors, everything else as upstream errors; an open breaker or a
// cancelled parent context stops the retries.
func Call[T any](ctx context.Context, r *Resilience, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if r == nil {
		return fn(ctx)
	}

	cb := r.breaker(name)
	attempt := 0

	operation := func() (T, error) {
		attempt++
		var zero T

		result, err := cb.Execute(func() (interface{}, error) {
			callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
			defer cancel()
			return fn(callCtx)
		})

		if err == nil {
			value, _ := result.(T)
			return value, nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, backoff.Permanent(models.NewExternalError("CIRCUIT_OPEN", fmt.Sprintf("%s circuit open", name)).WithCause(err))
		}
		if ctx.Err() != nil {
			return zero, backoff.Permanent(ctx.Err())
		}

		r.logger.WithFields(logger.Fields{
			"service": name,
			"attempt": attempt,
		}).WithError(err).Warn("External call failed")

		return zero, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.cfg.InitialBackoff
	policy.MaxInterval = r.cfg.MaxBackoff

	result, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(max(r.cfg.MaxRetries, 0)+1)),
	)
	if err != nil {
		var zero T
		return zero, classifyCallError(name, err)
	}
	return result, nil
}

func classifyCallError(name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewTimeoutError("CALL_TIMEOUT", fmt.Sprintf("%s call timed out", name)).WithCause(err)
	}
	return models.WrapExternalError(name, err)
}
