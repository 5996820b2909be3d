package infra

import (
	"math"
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns the reconnect delay for the given attempt:
// 1s doubling per attempt, capped at 60s.
func CalculateBackoff(retryCount int) time.Duration {
	// 2^6 s already exceeds the cap
	if retryCount > 6 {
		return backoffMax
	}
	delay := backoffBase * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > backoffMax {
		delay = backoffMax
	}
	return delay
}
