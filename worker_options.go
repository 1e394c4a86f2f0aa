package pgjob

import (
	"time"
)

type WorkerOption func(w *Worker)

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		w.pollInterval = interval
	}
}

func WithConcurrency(value int) WorkerOption {
	return func(w *Worker) {
		w.concurrency = value
	}
}

// WithFetchLimit sets the candidate batch size K, see DefaultFetchLimit.
func WithFetchLimit(value int) WorkerOption {
	return func(w *Worker) {
		w.fetchLimit = value
	}
}

// WithListener wakes idle units on enqueue instead of waiting out the poll
// interval. Without it the worker relies on polling alone.
func WithListener(listener *Listener) WorkerOption {
	return func(w *Worker) {
		w.listener = listener
	}
}

// WithShutdownTimeout bounds how long Shutdown waits for in-flight jobs
// before killing the remaining sessions. Zero waits indefinitely.
func WithShutdownTimeout(timeout time.Duration) WorkerOption {
	return func(w *Worker) {
		w.shutdownTimeout = timeout
	}
}

func WithObserver(observer Observer) WorkerOption {
	return func(w *Worker) {
		w.observer = observer
	}
}
