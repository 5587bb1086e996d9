package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// AssignmentLockName is the resource every assignment decision serializes on.
const AssignmentLockName = "ticket-assignment"

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = pgx.ErrNoRows
	// ErrDuplicateExternalID is returned when a ticket with the same external id exists.
	ErrDuplicateExternalID = errors.New("ticket external id already exists")
	// ErrDuplicateEmail is returned when a staff member with the same email exists.
	ErrDuplicateEmail = errors.New("staff email already exists")
)

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Tickets TicketRepository
	Staff   StaffRepository
	History TicketHistoryRepository
}

// Store is the single source of truth for staff and tickets.
type Store interface {
	// Repos returns repositories that run each call on its own.
	Repos() Repositories
	Analytics() AnalyticsRepository
	// WithinTx runs fn atomically. fn's error rolls everything back.
	WithinTx(ctx context.Context, fn func(Repositories) error) error
	// WithinAssignment is WithinTx plus an exclusive lock on AssignmentLockName
	// held until commit or rollback.
	WithinAssignment(ctx context.Context, fn func(Repositories) error) error
	Ping(ctx context.Context) error
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
