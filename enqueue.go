package pgjob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is satisfied by pgx.Tx, *pgx.Conn and *pgxpool.Pool.
// Pass a caller transaction to make enqueue atomic with unrelated writes,
// the job row appears only if that transaction commits.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func Enqueue(ctx context.Context, e Execer, req EnqueueRequest) (int64, error) {
	ids, err := BulkEnqueue(ctx, e, []EnqueueRequest{req})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

func BulkEnqueue(ctx context.Context, e Execer, list []EnqueueRequest) ([]int64, error) {
	jobs, err := requestsToJobs(list)
	if err != nil {
		return nil, err
	}

	ids, err := bulkInsert(ctx, e, jobs)
	if err != nil {
		return nil, fmt.Errorf("bulk insert: %w", err)
	}

	// the wake ping is a latency optimization, polling covers a lost one
	_ = wakeQueues(ctx, e, jobs)

	return ids, nil
}

func requestsToJobs(list []EnqueueRequest) ([]Job, error) {
	if len(list) == 0 {
		return nil, errors.New("list is empty. at least one job is expected")
	}

	jobs := make([]Job, 0, len(list))
	now := timeNow()
	for _, req := range list {
		if req.Queue == "" {
			return nil, ErrQueueIsRequired
		}
		if req.Type == "" {
			return nil, ErrTypeIsRequired
		}

		priority := DefaultPriority
		if req.Priority != nil {
			priority = *req.Priority
		}
		runAt := req.RunAt
		if runAt.IsZero() {
			runAt = now
		}
		runAt = runAt.Add(req.Delay).UTC()

		job := Job{
			Queue:      req.Queue,
			Type:       req.Type,
			Arg:        req.Arg,
			Priority:   priority,
			RunAt:      runAt,
			ErrorCount: 0,
			LastError:  nil,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}

func bulkInsert(ctx context.Context, e Execer, jobs []Job) ([]int64, error) {
	valueStrings := make([]string, 0, len(jobs))
	valueArgs := make([]any, 0, len(jobs)*7)
	placeholderNum := 0
	for _, job := range jobs {
		placeholders := make([]string, 0)
		for i := 0; i < 7; i++ {
			placeholderNum++
			placeholders = append(placeholders, fmt.Sprintf("$%d", placeholderNum))
		}
		valueStrings = append(valueStrings, fmt.Sprintf("(%s)", strings.Join(placeholders, ",")))
		valueArgs = append(
			valueArgs,
			job.Queue,
			job.Type,
			job.Arg,
			job.Priority,
			job.RunAt,
			job.CreatedAt,
			job.UpdatedAt,
		)
	}
	query := fmt.Sprintf("INSERT INTO pgjob_job (queue, type, arg, priority, run_at, created_at, updated_at) VALUES %s RETURNING id",
		strings.Join(valueStrings, ","))
	rows, err := e.Query(ctx, query, valueArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]int64, 0, len(jobs))
	for rows.Next() {
		var id int64
		err := rows.Scan(&id)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// wakeQueues pings each distinct queue that received an immediately runnable
// job. Inside a caller transaction the NOTIFY is delivered on commit, so
// workers never wake before the row is visible.
func wakeQueues(ctx context.Context, e Execer, jobs []Job) error {
	now := timeNow()
	notified := make(map[string]bool, 1)
	for _, job := range jobs {
		if job.RunAt.After(now) || notified[job.Queue] {
			continue
		}
		notified[job.Queue] = true
		_, err := e.Exec(ctx, "SELECT pg_notify($1, '')", notifyChannel(job.Queue))
		if err != nil {
			return err
		}
	}
	return nil
}

func timeNow() time.Time {
	return time.Now().UTC()
}
