package pgjob

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *pgStore {
	return &pgStore{
		pool: pool,
	}
}

func (p *pgStore) BulkInsert(ctx context.Context, jobs []Job) ([]int64, error) {
	ids, err := bulkInsert(ctx, p.pool, jobs)
	if err != nil {
		return nil, err
	}
	// the wake ping is a latency optimization, polling covers a lost one
	_ = wakeQueues(ctx, p.pool, jobs)
	return ids, nil
}

func (p *pgStore) BulkDelete(ctx context.Context, ids []int64) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM pgjob_job WHERE id=ANY($1);", ids)
	return err
}

// Session binds a dedicated connection for the caller's lifetime. Advisory
// locks are scoped to that connection, so sessions must never be shared
// between workers.
func (p *pgStore) Session(ctx context.Context) (Session, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	hijacked := conn.Hijack()
	return &pgSession{
		conn:  hijacked,
		locks: newLockManager(hijacked),
	}, nil
}

func (p *pgStore) Listener(queue string) *Listener {
	return newListener(p.pool, queue)
}

type pgSession struct {
	conn  *pgx.Conn
	locks *lockManager
}

const candidatesQuery = `
SELECT id
FROM pgjob_job
WHERE queue = $1 AND run_at <= now() AND finished_at IS NULL AND expired_at IS NULL
ORDER BY priority, run_at, id
LIMIT $2
`

const claimedQuery = `
SELECT id, queue, type, arg, priority, run_at, error_count, last_error, finished_at, expired_at, created_at, updated_at
FROM pgjob_job
WHERE id = $1 AND run_at <= now() AND finished_at IS NULL AND expired_at IS NULL
`

// Fetch scans up to limit due candidates in (priority, run_at, id) order and
// claims the first one whose advisory lock it wins. The row is re-read under
// the lock: between the scan and the lock another worker may have finalized
// it. Priority is therefore soft, a locked-out higher priority job does not
// block a lower priority one.
func (s *pgSession) Fetch(ctx context.Context, queue string, limit int) (*Job, error) {
	rows, err := s.conn.Query(ctx, candidatesQuery, queue, limit)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		err := rows.Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	rows.Close()

	for _, id := range ids {
		locked, err := s.locks.tryLock(ctx, id)
		if err != nil {
			return nil, err
		}
		if !locked {
			continue
		}

		job, err := s.readClaimed(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			// finalized by the previous holder after our scan
			err = s.locks.unlock(ctx, id)
			if err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			_ = s.locks.unlock(ctx, id)
			return nil, fmt.Errorf("reread claimed job: %w", err)
		}
		return job, nil
	}

	return nil, ErrEmptyQueue
}

func (s *pgSession) readClaimed(ctx context.Context, id int64) (*Job, error) {
	job := Job{}
	err := s.conn.QueryRow(ctx, claimedQuery, id).Scan(
		&job.Id,
		&job.Queue,
		&job.Type,
		&job.Arg,
		&job.Priority,
		&job.RunAt,
		&job.ErrorCount,
		&job.LastError,
		&job.FinishedAt,
		&job.ExpiredAt,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *pgSession) Retry(ctx context.Context, id int64, errorCount int32, lastError string, runAt time.Time) error {
	query := "UPDATE pgjob_job SET error_count = $1, last_error = $2, run_at = $3, updated_at = $4 WHERE id = $5"
	_, err := s.conn.Exec(ctx, query, errorCount, lastError, runAt, timeNow(), id)
	return err
}

func (s *pgSession) Reschedule(ctx context.Context, id int64, runAt time.Time) error {
	query := "UPDATE pgjob_job SET run_at = $1, updated_at = $2 WHERE id = $3"
	_, err := s.conn.Exec(ctx, query, runAt, timeNow(), id)
	return err
}

func (s *pgSession) Finish(ctx context.Context, id int64) error {
	query := "UPDATE pgjob_job SET finished_at = $1, updated_at = $1 WHERE id = $2"
	_, err := s.conn.Exec(ctx, query, timeNow(), id)
	return err
}

func (s *pgSession) Expire(ctx context.Context, id int64, lastError string) error {
	query := "UPDATE pgjob_job SET expired_at = $1, last_error = $2, updated_at = $1 WHERE id = $3"
	_, err := s.conn.Exec(ctx, query, timeNow(), lastError, id)
	return err
}

func (s *pgSession) Delete(ctx context.Context, id int64) error {
	query := "DELETE FROM pgjob_job WHERE id = $1"
	_, err := s.conn.Exec(ctx, query, id)
	return err
}

func (s *pgSession) Unlock(ctx context.Context, id int64) error {
	return s.locks.unlock(ctx, id)
}

func (s *pgSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

// Kill severs the underlying connection without a close handshake. The
// server drops the session and releases its advisory locks, returning any
// claimed job to the queue.
func (s *pgSession) Kill() {
	_ = s.conn.PgConn().Conn().Close()
}
