package pgjob

import (
	"context"
	"sync"
	"time"
)

type Handler interface {
	Handle(ctx context.Context, job Job) Result
}

type HandlerFunc func(ctx context.Context, job Job) Result

func (h HandlerFunc) Handle(ctx context.Context, job Job) Result {
	return h(ctx, job)
}

// Worker runs a fixed set of concurrent execution units on a single queue.
// Every unit owns a dedicated store session because claims are
// connection-scoped, sharing one connection would merge the units' locks.
type Worker struct {
	cli             *Client
	queue           string
	handler         Handler
	pollInterval    time.Duration
	concurrency     int
	fetchLimit      int
	shutdownTimeout time.Duration
	listener        *Listener
	observer        Observer
	wg              *sync.WaitGroup
	close           chan struct{}
	lock            *sync.Mutex
	sessions        []Session
}

func NewWorker(cli *Client, queue string, handler Handler, opts ...WorkerOption) *Worker {
	w := &Worker{
		cli:          cli,
		queue:        queue,
		handler:      handler,
		pollInterval: 1 * time.Second,
		concurrency:  1,
		fetchLimit:   DefaultFetchLimit,
		wg:           &sync.WaitGroup{},
		close:        make(chan struct{}),
		lock:         &sync.Mutex{},
		observer:     NewNoopObserver(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w.listener != nil {
		w.listener.Run(ctx)
	}
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	var wake <-chan struct{}
	if w.listener != nil {
		wake = w.listener.subscribe()
	}

	var sess Session
	defer func() {
		if sess != nil {
			w.forgetSession(sess)
			_ = sess.Close(context.Background())
		}
	}()

	for {
		select {
		case <-w.close:
			return
		default:
		}

		if sess == nil {
			opened, err := w.cli.store.Session(ctx)
			if err != nil {
				w.observer.WorkerError(ctx, err)
				if !w.wait(ctx, wake) {
					return
				}
				continue
			}
			sess = opened
			w.trackSession(sess)
		}

		t, err := w.cli.do(ctx, sess, w.queue, w.fetchLimit, func(ctx context.Context, job Job) Result {
			w.observer.JobStarted(ctx, job)
			return w.handler.Handle(ctx, job)
		})
		if err != nil {
			if err == ErrEmptyQueue {
				w.observer.QueueIsEmpty(ctx)
			} else {
				w.observer.WorkerError(ctx, err)
				// the session's connection may be gone, reopen on the
				// next pass instead of spinning on a dead one
				w.forgetSession(sess)
				_ = sess.Close(context.Background())
				sess = nil
			}

			if !w.wait(ctx, wake) {
				return
			}
			continue
		}

		w.observe(ctx, t)
	}
}

// wait blocks until new work may be available, false means stop.
func (w *Worker) wait(ctx context.Context, wake <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.close:
		return false
	case <-wake: //nil without a listener, never fires then
		return true
	case <-time.After(w.pollInterval):
		return true
	}
}

func (w *Worker) observe(ctx context.Context, t *transition) {
	switch {
	case t.expired:
		w.observer.JobExpired(ctx, t.job, t.result.err)
	case t.result.fail:
		w.observer.JobWillBeRetried(ctx, t.job, time.Until(t.retryAt), t.result.err)
	case t.result.reschedule:
		w.observer.JobRescheduled(ctx, t.job, t.result.rescheduleDelay)
	default:
		w.observer.JobCompleted(ctx, t.job)
	}
}

// Shutdown stops fetching and waits for in-flight jobs. With a shutdown
// timeout configured, sessions still alive past the deadline are killed:
// their connections drop, their locks release and the interrupted jobs
// become claimable by other workers.
func (w *Worker) Shutdown() {
	close(w.close)
	if w.listener != nil {
		w.listener.Shutdown()
	}

	if w.shutdownTimeout <= 0 {
		w.wg.Wait()
		return
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.shutdownTimeout):
		w.lock.Lock()
		for _, sess := range w.sessions {
			sess.Kill()
		}
		w.lock.Unlock()
	}
}

func (w *Worker) trackSession(sess Session) {
	w.lock.Lock()
	w.sessions = append(w.sessions, sess)
	w.lock.Unlock()
}

func (w *Worker) forgetSession(sess Session) {
	w.lock.Lock()
	for i, s := range w.sessions {
		if s == sess {
			w.sessions = append(w.sessions[:i], w.sessions[i+1:]...)
			break
		}
	}
	w.lock.Unlock()
}
