// Package store is the repository layer over Postgres backing the
// control-plane's relational data model (§3). It replaces a
// code-generated ORM with a hand-written layer over database/sql +
// lib/pq — see DESIGN.md for why ent's generator could not be used
// here — but keeps the teacher's transaction-wrapper and soft-delete
// discipline (internal/db/tx.go, internal/db/softdelete.go) in spirit:
// WithTx handles commit/rollback/panic-recovery, and deletions are
// modeled as a deleted_at column, never a DELETE statement.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

// Queryer is satisfied by both *sql.DB and *sql.Tx. Repository methods
// accept a Queryer so the same code runs standalone or inside a caller's
// transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a *sql.DB connection pool.
type DB struct {
	*sql.DB
}

// Open opens a Postgres connection pool at dsn.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &DB{DB: conn}, nil
}

// WithTx runs fn inside a database transaction, following the teacher's
// internal/db.WithTx shape: commit on success, rollback (and re-panic) on
// panic, rollback and return fn's error otherwise.
func WithTx(ctx context.Context, db *DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rerr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// LockCustomer takes a Postgres transaction-level advisory lock scoped to the
// enclosing transaction (pg_advisory_xact_lock), keyed by the customer's
// id. Postgres releases the lock automatically on commit or rollback —
// this is the §4.5.1/§5 per-customer serialization primitive, chosen over
// an application-level mutex so it works across API processes.
func LockCustomer(ctx context.Context, tx *sql.Tx, customerID string) error {
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, customerID)
	if err != nil {
		return fmt.Errorf("store: advisory lock for customer %s: %w", customerID, err)
	}
	return nil
}

// ErrNotFound is returned by single-row lookups that match no rows.
var ErrNotFound = sql.ErrNoRows

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
