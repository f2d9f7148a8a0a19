// Package retry provides bounded retry loops for calls to external
// services.
package retry

import (
	"context"
	"time"
)

// Config defines retry behavior. A zero InitialDelay retries immediately.
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// ImmediateConfig returns the fixed-attempt, no-delay policy used for
// Notion database discovery: the call either succeeds within attempts
// or the last error is returned as-is.
func ImmediateConfig(attempts int) *Config {
	return &Config{
		MaxRetries:   attempts - 1,
		InitialDelay: 0,
		MaxDelay:     0,
		Multiplier:   1.0,
	}
}

// Do executes fn until it succeeds or retries are exhausted.
// Context cancellation is respected during wait periods.
// A nil config runs fn exactly once.
func Do(ctx context.Context, cfg *Config, fn func() error) error {
	if cfg == nil {
		cfg = &Config{}
	}

	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxRetries {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
				delay = time.Duration(float64(delay) * cfg.Multiplier)
				if delay > cfg.MaxDelay {
					delay = cfg.MaxDelay
				}
			} else if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}

	return lastErr
}

// DoWithResult is Do for functions that return a value.
func DoWithResult[T any](ctx context.Context, cfg *Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		r, err := fn()
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	return result, err
}
