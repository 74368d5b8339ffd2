// Package retry runs calls to external services with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/agentic-search-mcp/internal/logger"
)

// Defaults shared by the AI service clients
const (
	MaxRetries        = 3
	InitialBackoffMs  = 100
	MaxBackoffMs      = 5000
	BackoffMultiplier = 2.0
)

// Config configures exponential backoff retry behavior
type Config struct {
	MaxRetries int           // Maximum number of attempts
	BaseDelay  time.Duration // Initial delay between retries
	MaxDelay   time.Duration // Maximum delay between retries
	Multiplier float64       // Exponential backoff multiplier

	// Retryable decides whether an error is worth another attempt.
	// nil retries every error.
	Retryable func(error) bool
}

// DefaultConfig returns sensible defaults for API retry
func DefaultConfig() Config {
	return Config{
		MaxRetries: MaxRetries,
		BaseDelay:  time.Duration(InitialBackoffMs) * time.Millisecond,
		MaxDelay:   time.Duration(MaxBackoffMs) * time.Millisecond,
		Multiplier: BackoffMultiplier,
	}
}

// Do executes fn with exponential backoff retry logic.
// Retry is skipped on context cancellation and on errors Retryable rejects.
// A cancelled call returns an error matching both the context error and the
// last attempt's error. Retries are logged at debug level through the
// context logger.
func Do[T any](ctx context.Context, config Config, fn func() (T, error)) (T, error) {
	var lastErr error
	log := logger.FromContext(ctx)
	var zero T
	backoff := config.BaseDelay

	attempts := config.MaxRetries
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Don't retry on context cancellation
		if ctx.Err() != nil {
			return zero, cancelled(ctx, lastErr)
		}
		if config.Retryable != nil && !config.Retryable(err) {
			return zero, err
		}

		if attempt < attempts-1 {
			log.Debug("retrying after error",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return zero, cancelled(ctx, lastErr)
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}

// cancelled keeps the last attempt's error, which names the failing
// backend, reachable next to the context error
func cancelled(ctx context.Context, lastErr error) error {
	if errors.Is(lastErr, ctx.Err()) {
		return lastErr
	}
	return fmt.Errorf("%w: %w", ctx.Err(), lastErr)
}
