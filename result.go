package pgjob

import (
	"time"
)

type Result struct {
	complete bool
	destroy  bool
	finish   bool

	fail   bool
	expire bool
	err    error

	reschedule      bool
	rescheduleDelay time.Duration
}

func (r Result) errorText() string {
	if r.err == nil {
		return "unknown error"
	}
	return r.err.Error()
}

// Complete marks the job done, the client's retention policy decides
// whether the row is deleted or kept with finished_at set.
func Complete() Result {
	return Result{complete: true}
}

// Destroy marks the job done and removes the row regardless of retention.
func Destroy() Result {
	return Result{destroy: true}
}

// Finish marks the job done and keeps the row regardless of retention.
func Finish() Result {
	return Result{finish: true}
}

// Fail records the error and hands the job to the retry policy: rescheduled
// with backoff below the ceiling, expired at it.
func Fail(err error) Result {
	return Result{fail: true, err: err}
}

// Expire permanently fails the job, bypassing remaining retries.
func Expire(err error) Result {
	return Result{expire: true, err: err}
}

// Reschedule pushes run_at forward without touching the error counters.
func Reschedule(after time.Duration) Result {
	return Result{reschedule: true, rescheduleDelay: after}
}
