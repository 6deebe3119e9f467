package worker

import (
	"math"
	"time"

	"funnel/internal/config"
)

// backoffDelay computes the wait before the given attempt (1-based):
// base * multiplier^(attempt-1), capped.
func backoffDelay(cfg config.Backoff, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(cfg.BaseSeconds) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if ceiling := float64(cfg.CapSeconds); delay > ceiling {
		delay = ceiling
	}
	return time.Duration(delay * float64(time.Second))
}
