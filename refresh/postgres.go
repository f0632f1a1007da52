package refresh

import (
	"context"
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// PGLocker implements Locker with a Postgres session level advisory lock.
// Each lease pins its own connection because advisory locks belong to the session
// that took them.
type PGLocker struct {
	db  *bun.DB
	key int64
}

// NewPGLocker creates a locker for the advisory lock identified by key.
func NewPGLocker(db *bun.DB, key int64) *PGLocker {
	return &PGLocker{db: db, key: key}
}

// Key returns the advisory lock key.
func (l *PGLocker) Key() int64 {
	return l.key
}

// TryLock attempts pg_try_advisory_lock without waiting.
func (l *PGLocker) TryLock(ctx context.Context) (Lease, bool, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, false, goerrors.Wrap(err, goerrors.CategoryExternal, "open lock connection")
	}

	var acquired bool
	if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(?)", l.key).Scan(&acquired); err != nil {
		conn.Close()
		return nil, false, goerrors.Wrap(err, goerrors.CategoryExternal, "try advisory lock")
	}

	if !acquired {
		conn.Close()
		return nil, false, nil
	}

	return &pgLease{conn: conn, key: l.key}, true, nil
}

type pgLease struct {
	conn bun.Conn
	key  int64
}

// Release unlocks and returns the pinned connection to the pool. The connection is
// closed even when unlocking fails; the session ending drops the lock either way.
func (l *pgLease) Release(ctx context.Context) error {
	var released bool
	unlockErr := l.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock(?)", l.key).Scan(&released)
	closeErr := l.conn.Close()

	if unlockErr != nil {
		return goerrors.Wrap(unlockErr, goerrors.CategoryExternal, "advisory unlock")
	}
	if closeErr != nil && !errors.Is(closeErr, sql.ErrConnDone) {
		return goerrors.Wrap(closeErr, goerrors.CategoryExternal, "close lock connection")
	}
	if !released {
		return goerrors.New("advisory lock was not held by this session", goerrors.CategoryConflict)
	}
	return nil
}

// PGRefresher refreshes Postgres materialized views.
type PGRefresher struct {
	db bun.IDB
}

// NewPGRefresher creates a refresher running on db.
func NewPGRefresher(db bun.IDB) *PGRefresher {
	return &PGRefresher{db: db}
}

// Refresh runs REFRESH MATERIALIZED VIEW, with CONCURRENTLY when concurrent is set.
// Concurrent refresh needs a unique index on the view and a populated view.
func (r *PGRefresher) Refresh(ctx context.Context, view string, concurrent bool) error {
	query := "REFRESH MATERIALIZED VIEW ?"
	if concurrent {
		query = "REFRESH MATERIALIZED VIEW CONCURRENTLY ?"
	}
	_, err := r.db.ExecContext(ctx, query, bun.Ident(view))
	return err
}
