package pgjob

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// DefaultFetchLimit is the candidate batch size K. Each fetch scans up to K
// due jobs and try-locks them in order, larger values help saturated queues,
// smaller values waste less work on candidates other workers already hold.
const DefaultFetchLimit = 5

// Session is a claim scope bound to one store connection. Fetch returns a
// job locked for this session only, the mutation methods finalize it and
// Unlock releases the claim. Kill drops the connection, which releases every
// lock the session holds.
type Session interface {
	Fetch(ctx context.Context, queue string, limit int) (*Job, error)
	Retry(ctx context.Context, id int64, errorCount int32, lastError string, runAt time.Time) error
	Reschedule(ctx context.Context, id int64, runAt time.Time) error
	Finish(ctx context.Context, id int64) error
	Expire(ctx context.Context, id int64, lastError string) error
	Delete(ctx context.Context, id int64) error
	Unlock(ctx context.Context, id int64) error
	Close(ctx context.Context) error
	Kill()
}

type Store interface {
	BulkInsert(ctx context.Context, jobs []Job) ([]int64, error)
	BulkDelete(ctx context.Context, ids []int64) error
	Session(ctx context.Context) (Session, error)
}

type Retention int

const (
	// RetentionDelete removes the row when a job completes.
	RetentionDelete Retention = iota
	// RetentionKeep retains the row with finished_at set.
	RetentionKeep
)

type ClientOption func(c *Client)

func WithRetention(retention Retention) ClientOption {
	return func(c *Client) {
		c.retention = retention
	}
}

func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithTypeRetryPolicy overrides the retry policy for a single job type.
func WithTypeRetryPolicy(jobType string, policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.typePolicies[jobType] = policy
	}
}

type Client struct {
	store        Store
	retention    Retention
	policy       RetryPolicy
	typePolicies map[string]RetryPolicy
}

func NewClient(store Store, opts ...ClientOption) *Client {
	c := &Client{
		store:        store,
		retention:    RetentionDelete,
		policy:       DefaultRetryPolicy(),
		typePolicies: make(map[string]RetryPolicy),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (int64, error) {
	ids, err := c.BulkEnqueue(ctx, []EnqueueRequest{req})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func (c *Client) BulkEnqueue(ctx context.Context, list []EnqueueRequest) ([]int64, error) {
	jobs, err := requestsToJobs(list)
	if err != nil {
		return nil, err
	}

	ids, err := c.store.BulkInsert(ctx, jobs)
	if err != nil {
		return nil, fmt.Errorf("bulk insert: %w", err)
	}

	return ids, nil
}

func (c *Client) Dequeue(ctx context.Context, id int64) error {
	return c.BulkDequeue(ctx, []int64{id})
}

func (c *Client) BulkDequeue(ctx context.Context, ids []int64) error {
	err := c.store.BulkDelete(ctx, ids)
	if err != nil {
		return errors.WithMessage(err, "bulk delete")
	}
	return nil
}

// Do claims the next runnable job on queue, runs f and applies its Result.
// Returns ErrEmptyQueue when nothing is claimable. Opens a session per call,
// workers hold a persistent one instead.
func (c *Client) Do(ctx context.Context, queue string, f func(ctx context.Context, job Job) Result) error {
	sess, err := c.store.Session(ctx)
	if err != nil {
		return errors.WithMessage(err, "open session")
	}
	defer func() {
		_ = sess.Close(context.Background())
	}()

	_, err = c.do(ctx, sess, queue, DefaultFetchLimit, f)
	return err
}

// transition reports how a claimed job left the Claimed state, workers feed
// it to the observer.
type transition struct {
	job     Job
	result  Result
	expired bool      //a Fail escalated by the retry ceiling
	retryAt time.Time //next run when retried
}

func (c *Client) do(ctx context.Context, sess Session, queue string, limit int, f func(ctx context.Context, job Job) Result) (*transition, error) {
	job, err := sess.Fetch(ctx, queue, limit)
	if err != nil {
		if err == ErrEmptyQueue {
			return nil, err
		}
		return nil, fmt.Errorf("fetch job: %w", err)
	}
	// the claim must be released on every path out of Claimed; a dead
	// connection releases it server-side anyway
	defer func() {
		_ = sess.Unlock(context.Background(), job.Id)
	}()

	result := runJob(ctx, *job, f)

	return c.finalize(ctx, sess, *job, result)
}

// runJob converts a panic in job logic into an ordinary failure, the retry
// policy handles it and the worker pool stays alive.
func runJob(ctx context.Context, job Job, f func(ctx context.Context, job Job) Result) (result Result) {
	defer func() {
		r := recover()
		if r != nil {
			result = Fail(fmt.Errorf("job panicked: %v", r))
		}
	}()
	return f(ctx, job)
}

func (c *Client) finalize(ctx context.Context, sess Session, job Job, result Result) (*transition, error) {
	t := &transition{job: job, result: result}

	switch {
	case result.complete:
		if c.retention == RetentionKeep {
			err := sess.Finish(ctx, job.Id)
			if err != nil {
				return nil, fmt.Errorf("finish job: %w", err)
			}
			break
		}
		err := sess.Delete(ctx, job.Id)
		if err != nil {
			return nil, fmt.Errorf("delete job: %w", err)
		}

	case result.destroy:
		err := sess.Delete(ctx, job.Id)
		if err != nil {
			return nil, fmt.Errorf("delete job: %w", err)
		}

	case result.finish:
		err := sess.Finish(ctx, job.Id)
		if err != nil {
			return nil, fmt.Errorf("finish job: %w", err)
		}

	case result.expire:
		err := sess.Expire(ctx, job.Id, result.errorText())
		if err != nil {
			return nil, fmt.Errorf("expire job: %w", err)
		}
		t.expired = true

	case result.fail:
		policy := c.policyFor(job.Type)
		if job.ErrorCount >= policy.MaxErrorCount {
			err := sess.Expire(ctx, job.Id, result.errorText())
			if err != nil {
				return nil, fmt.Errorf("expire job: %w", err)
			}
			t.expired = true
			break
		}
		errorCount := job.ErrorCount + 1
		runAt := timeNow().Add(policy.backoff(errorCount))
		err := sess.Retry(ctx, job.Id, errorCount, result.errorText(), runAt)
		if err != nil {
			return nil, fmt.Errorf("update job: %w", err)
		}
		t.retryAt = runAt

	case result.reschedule:
		runAt := timeNow().Add(result.rescheduleDelay)
		err := sess.Reschedule(ctx, job.Id, runAt)
		if err != nil {
			return nil, fmt.Errorf("update job: %w", err)
		}
	}

	return t, nil
}

func (c *Client) policyFor(jobType string) RetryPolicy {
	policy, ok := c.typePolicies[jobType]
	if ok {
		return policy
	}
	return c.policy
}
