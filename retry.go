package pgjob

import (
	"math"
	"math/rand"
	"time"
)

// BackoffFunc returns the delay before the next run after the given number
// of failures, errorCount is at least 1.
type BackoffFunc func(errorCount int32) time.Duration

// RetryPolicy drives what happens to a failed job. A job failing with
// error_count already at MaxErrorCount expires instead of rescheduling, so
// a always-failing job executes MaxErrorCount+1 times in total.
type RetryPolicy struct {
	MaxErrorCount int32
	Backoff       BackoffFunc
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxErrorCount: 20,
		Backoff:       ExponentialBackoff(1*time.Second, 10*time.Minute),
	}
}

func (p RetryPolicy) backoff(errorCount int32) time.Duration {
	if p.Backoff == nil {
		return ExponentialBackoff(1*time.Second, 10*time.Minute)(errorCount)
	}
	return p.Backoff(errorCount)
}

// ExponentialBackoff doubles the base delay on every failure up to max and
// jitters the result within [base/2, base). The jitter spreads out retries
// of jobs that failed together, the base/2 floor keeps the delay growing
// with the failure count.
func ExponentialBackoff(initial, maxDelay time.Duration) BackoffFunc {
	return func(errorCount int32) time.Duration {
		base := float64(initial) * math.Pow(2, float64(errorCount-1))
		if maxDelay > 0 && base > float64(maxDelay) {
			base = float64(maxDelay)
		}
		half := base / 2
		return time.Duration(half + rand.Float64()*half)
	}
}

// ConstantBackoff always waits the same delay.
func ConstantBackoff(delay time.Duration) BackoffFunc {
	return func(errorCount int32) time.Duration {
		return delay
	}
}
