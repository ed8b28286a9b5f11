package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gbus-app/gbus-server/internal/lock"
	"github.com/gbus-app/gbus-server/internal/repository"
)

// withTx runs fn inside a transaction and commits when fn returns nil.
// Store-level race failures are translated to ErrTransactionConflict.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return repository.TranslateTxError(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return repository.TranslateTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return repository.TranslateTxError(err)
	}
	committed = true
	return nil
}

// sessionGuard serializes every queue and bid mutation of one session:
// the per-session lock is taken first, then the transaction begins.  The
// lock is always acquired before a connection is checked out so that a
// single-connection pool cannot deadlock.
type sessionGuard struct {
	db       *sql.DB
	locker   lock.Locker
	lockWait time.Duration
}

func (g sessionGuard) run(ctx context.Context, sessionID uint64, fn func(tx *sql.Tx) error) error {
	wait := g.lockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	lctx, cancel := context.WithTimeout(ctx, wait)
	release, err := g.locker.Acquire(lctx, lock.SessionKey(sessionID))
	cancel()
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return fmt.Errorf("%w: %v", repository.ErrTransactionConflict, err)
		}
		return err
	}
	defer release()
	return withTx(ctx, g.db, fn)
}
