package dbopen

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Backoff is the pause before each retry of a statement or transaction that
// hit SQLITE_BUSY. Its length is the number of retries. Run log updates and
// staging inserts from concurrent runs share one file, so short waits are
// normal.
var Backoff = []time.Duration{50 * time.Millisecond, 150 * time.Millisecond, 400 * time.Millisecond}

// IsBusy reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// extended codes. Errors that lost their type are matched on the message.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return true
		}
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "is locked")
}

// RunTx runs fn in a transaction and commits it. fn's error rolls the
// transaction back and is returned as is. The whole transaction is retried
// when SQLite reports BUSY, so fn must not have side effects outside tx.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	_, err := withRetry(ctx, "tx", func() (struct{}, error) {
		return struct{}{}, runTx(ctx, db, fn)
	})
	return err
}

// Exec runs one statement under the RunTx retry policy.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	return withRetry(ctx, "exec", func() (sql.Result, error) {
		return db.ExecContext(ctx, query, args...)
	})
}

func runTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbopen: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbopen: commit: %w", err)
	}
	return nil
}

func withRetry[T any](ctx context.Context, op string, fn func() (T, error)) (T, error) {
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil || !IsBusy(err) || attempt == len(Backoff) {
			return v, err
		}
		t := time.NewTimer(Backoff[attempt])
		select {
		case <-ctx.Done():
			t.Stop()
			var zero T
			return zero, fmt.Errorf("dbopen: %s: gave up after %d busy attempts: %w", op, attempt+1, ctx.Err())
		case <-t.C:
		}
	}
}
