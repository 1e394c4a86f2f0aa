package pgjob

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reconnectDelay = 1 * time.Second

func notifyChannel(queue string) string {
	return "pgjob." + queue
}

// Listener wakes idle workers as soon as a job lands in the queue instead of
// waiting out the poll interval. It is best effort: notifications carry no
// payload, give no delivery guarantee and may be dropped, the periodic poll
// remains the source of truth.
type Listener struct {
	pool   *pgxpool.Pool
	queue  string
	cancel context.CancelFunc
	wg     *sync.WaitGroup
	lock   *sync.Mutex
	subs   []chan struct{}
}

func newListener(pool *pgxpool.Pool, queue string) *Listener {
	return &Listener{
		pool:  pool,
		queue: queue,
		wg:    &sync.WaitGroup{},
		lock:  &sync.Mutex{},
	}
}

func (l *Listener) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go l.run(ctx)
}

func (l *Listener) Shutdown() {
	if l.cancel != nil {
		l.cancel()
	}
	l.wg.Wait()
}

func (l *Listener) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		_ = l.listen(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	hijacked := conn.Hijack()
	defer func() {
		_ = hijacked.Close(context.Background())
	}()

	_, err = hijacked.Exec(ctx, "LISTEN "+pgx.Identifier{notifyChannel(l.queue)}.Sanitize())
	if err != nil {
		return err
	}

	for {
		_, err := hijacked.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.broadcast()
	}
}

func (l *Listener) broadcast() {
	l.lock.Lock()
	defer l.lock.Unlock()
	for _, sub := range l.subs {
		select {
		case sub <- struct{}{}:
		default: //subscriber already has a pending wakeup
		}
	}
}

func (l *Listener) subscribe() <-chan struct{} {
	c := make(chan struct{}, 1)
	l.lock.Lock()
	l.subs = append(l.subs, c)
	l.lock.Unlock()
	return c
}
