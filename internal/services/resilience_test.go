package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

func testResilience(retries, breakerFailures int, callTimeout time.Duration) *Resilience {
	return NewResilience(config.ResilienceConfig{
		MaxRetries:      retries,
		InitialBackoff:  time.Millisecond,
		MaxBackoff:      2 * time.Millisecond,
		BreakerFailures: breakerFailures,
		BreakerTimeout:  time.Minute,
	}, callTimeout, logger.NewNop())
}

func TestCall_RetriesUntilSuccess(t *testing.T) {
	r := testResilience(2, 10, time.Second)
	attempts := 0

	value, err := Call(context.Background(), r, "flaky", func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("temporary")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", value)
	assert.Equal(t, 3, attempts)
}

func TestCall_GivesUpAfterMaxRetries(t *testing.T) {
	r := testResilience(1, 10, time.Second)
	attempts := 0

	_, err := Call(context.Background(), r, "down", func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("still down")
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	var appErr *models.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, models.ErrorTypeUpstream, appErr.Type)
}

func TestCall_TimeoutIsClassified(t *testing.T) {
	r := testResilience(0, 10, 10*time.Millisecond)

	_, err := Call(context.Background(), r, "slow", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	assert.True(t, models.IsTimeout(err))
}

func TestCall_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	r := testResilience(0, 2, time.Second)
	failing := func(context.Context) (string, error) { return "", errors.New("boom") }

	for range 2 {
		_, err := Call(context.Background(), r, "breaker", failing)
		require.Error(t, err)
	}

	called := false
	_, err := Call(context.Background(), r, "breaker", func(context.Context) (string, error) {
		called = true
		return "ok", nil
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, "open", r.States()["breaker"])
}

func TestCall_NilResilienceRunsDirectly(t *testing.T) {
	value, err := Call(context.Background(), nil, "direct", func(context.Context) (int, error) { return 7, nil })

	require.NoError(t, err)
	assert.Equal(t, 7, value)
}
