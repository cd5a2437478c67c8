package classifier

import (
	"math/rand"
	"time"
)

// Retry delays for exponential backoff between attempts on one provider.
var retryDelays = []time.Duration{
	250 * time.Millisecond,
	750 * time.Millisecond,
	2 * time.Second,
}

// JitterFactor is the ±percentage of jitter applied to delays.
const JitterFactor = 0.2

// NextRetryDelay calculates next retry delay with exponential backoff + jitter.
// attempt is 0-indexed (after the first failed attempt, attempt = 0).
func NextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= len(retryDelays) {
		attempt = len(retryDelays) - 1
	}

	base := retryDelays[attempt]
	jitterRange := float64(base) * JitterFactor
	jitter := (rand.Float64()*2 - 1) * jitterRange

	return time.Duration(float64(base) + jitter)
}
