package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore builds a Store over a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) bind(q querier) Repositories {
	return Repositories{
		Tickets: &ticketRepository{db: q},
		Staff:   &staffRepository{db: q},
		History: &ticketHistoryRepository{db: q},
	}
}

func (s *postgresStore) Repos() Repositories {
	return s.bind(s.pool)
}

func (s *postgresStore) Analytics() AnalyticsRepository {
	return &analyticsRepository{db: s.pool}
}

func (s *postgresStore) WithinTx(ctx context.Context, fn func(Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(s.bind(tx))
	})
}

func (s *postgresStore) WithinAssignment(ctx context.Context, fn func(Repositories) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, AssignmentLockName); err != nil {
			return fmt.Errorf("acquire assignment lock: %w", err)
		}
		return fn(s.bind(tx))
	})
}

func (s *postgresStore) Ping(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres pool not configured")
	}
	return s.pool.Ping(ctx)
}
