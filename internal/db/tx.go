package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATEs that mean "run the transaction again".
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// maxSerializableTries bounds retries of one serializable unit.
const maxSerializableTries = 8

// IsRetryable reports whether err is a serialization failure or deadlock raised by Postgres.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// RunSerializable runs fn inside a SERIALIZABLE transaction. When lockKey is non-zero the
// transaction first takes pg_advisory_xact_lock(lockKey), so units sharing a key never interleave
// even across processes. Serialization failures are retried with exponential backoff; any other
// error from fn rolls back and is returned as is.
func RunSerializable(ctx context.Context, db *sql.DB, lockKey int64, fn func(ctx context.Context, tx *sql.Tx) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	op := func() (struct{}, error) {
		err := runOnce(ctx, db, lockKey, fn)
		if err == nil {
			return struct{}{}, nil
		}
		if IsRetryable(err) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(maxSerializableTries))
	return err
}

func runOnce(ctx context.Context, db *sql.DB, lockKey int64, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if lockKey != 0 {
		if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}
	}
	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
