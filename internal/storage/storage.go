// Package storage persists users, categories, activities and settings in
// PostgreSQL through sqlx.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row does not exist or is not owned by
	// the requesting user.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned on unique-constraint violations.
	ErrConflict = errors.New("storage: conflict")
	// ErrReference is returned when a foreign key points nowhere.
	ErrReference = errors.New("storage: missing reference")
	// ErrConstraint is returned when a CHECK constraint rejects a row.
	ErrConstraint = errors.New("storage: constraint violated")
	// ErrLastCategory guards against deleting a user's only category.
	ErrLastCategory = errors.New("storage: cannot delete the last category")
)

// PostgreSQL error codes mapped by classify.
const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqCheckViolation      = "23514"
)

// Store groups the repositories over one connection pool.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// classify maps driver errors onto the package sentinels, keeping the
// original error in the chain.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch string(pqErr.Code) {
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w: %s: %w", op, ErrConflict, pqErr.Constraint, err)
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s: %w", op, ErrReference, pqErr.Constraint, err)
		case pqCheckViolation:
			return fmt.Errorf("%s: %w: %s: %w", op, ErrConstraint, pqErr.Constraint, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
