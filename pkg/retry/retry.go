// Package retry implements bounded exponential backoff with jitter, used for
// flaky startup dependencies such as the NATS connection.
package retry

import (
	"math"
	"math/rand"
	"time"
)

type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Do runs fn until it succeeds or attempts are exhausted, sleeping an
// exponentially growing delay (plus up to 10% jitter) between attempts.
// Returns the last error on exhaustion. MaxAttempts below 1 is treated as 1:
// fn is always called at least once, never silently skipped.
func Do(cfg Config, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := time.Duration(float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt)))
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
		time.Sleep(delay + jitter)
	}

	return lastErr
}
