package retry

import (
	"context"
	"fmt"
	"time"
)

// Config holds exponential backoff configuration
type Config struct {
	MaxRetries     int           // Maximum number of retry attempts
	InitialBackoff time.Duration // First backoff duration
	MaxBackoff     time.Duration // Backoff ceiling
	Multiplier     float64       // Exponential multiplier
}

// DefaultConfig returns sensible defaults for retries
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
	}
}

// BackoffFor returns the backoff duration for a zero-based attempt
// number, capped at MaxBackoff.
func (c Config) BackoffFor(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= c.Multiplier
	}
	d := time.Duration(backoff)
	if d > c.MaxBackoff {
		return c.MaxBackoff
	}
	return d
}

// Do executes fn with exponential backoff retries until it succeeds,
// the retry budget is exhausted, or the context is canceled.
func Do(ctx context.Context, config Config, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == config.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry canceled: %w", ctx.Err())
		case <-time.After(config.BackoffFor(attempt)):
		}
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", config.MaxRetries, lastErr)
}
