package pgjob

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// lockManager claims jobs through session-level advisory locks keyed by job
// id. A lock is held by the connection, not by any row state: the server
// releases everything the moment the connection dies, which is what makes a
// crashed worker's job immediately claimable again.
type lockManager struct {
	conn *pgx.Conn
}

func newLockManager(conn *pgx.Conn) *lockManager {
	return &lockManager{
		conn: conn,
	}
}

// tryLock never blocks. false means another connection holds the lock and
// the caller should move on to the next candidate.
func (l *lockManager) tryLock(ctx context.Context, id int64) (bool, error) {
	locked := false
	err := l.conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", id).Scan(&locked)
	if err != nil {
		return false, fmt.Errorf("try advisory lock: %w", err)
	}
	return locked, nil
}

func (l *lockManager) unlock(ctx context.Context, id int64) error {
	released := false
	err := l.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", id).Scan(&released)
	if err != nil {
		return fmt.Errorf("advisory unlock: %w", err)
	}
	if !released {
		return fmt.Errorf("advisory lock %d was not held by this session", id)
	}
	return nil
}
