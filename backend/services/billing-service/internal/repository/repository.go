package repository

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrStudentNotFound represents missing student rows.
	ErrStudentNotFound = errors.New("student not found")
	// ErrPackageNotFound represents a missing or inactive credit package.
	ErrPackageNotFound = errors.New("credit package not found")
	// ErrCheckoutSessionNotFound represents an unknown Stripe checkout session.
	ErrCheckoutSessionNotFound = errors.New("checkout session not found")
	// ErrEventNotFound represents an unknown Stripe event id.
	ErrEventNotFound = errors.New("webhook event not found")
	// ErrAttemptNotFound represents an unknown simulation attempt or conversation.
	ErrAttemptNotFound = errors.New("simulation attempt not found")
	// ErrBalanceConflict is returned when a conditional balance update matched no row.
	ErrBalanceConflict = errors.New("student balance changed concurrently")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func notFound(err, target error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return target
	}
	return err
}
