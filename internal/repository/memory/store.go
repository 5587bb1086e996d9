// Package memory is an in-process repository.Store used for local development
// and tests. Transactions run against a private copy of the data that replaces
// the shared copy on commit, so a failed transaction leaves nothing behind.
package memory

import (
	"context"
	"sync"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type state struct {
	staff      map[string]domain.StaffMember
	tickets    map[string]domain.Ticket
	byExternal map[string]string
	history    []domain.TicketHistory
}

func newState() *state {
	return &state{
		staff:      map[string]domain.StaffMember{},
		tickets:    map[string]domain.Ticket{},
		byExternal: map[string]string{},
	}
}

func (s *state) clone() *state {
	out := &state{
		staff:      make(map[string]domain.StaffMember, len(s.staff)),
		tickets:    make(map[string]domain.Ticket, len(s.tickets)),
		byExternal: make(map[string]string, len(s.byExternal)),
		history:    make([]domain.TicketHistory, len(s.history)),
	}
	for id, member := range s.staff {
		out.staff[id] = copyStaff(member)
	}
	for id, ticket := range s.tickets {
		out.tickets[id] = copyTicket(ticket)
	}
	for ext, id := range s.byExternal {
		out.byExternal[ext] = id
	}
	copy(out.history, s.history)
	return out
}

// Store implements repository.Store in memory.
type Store struct {
	mu    sync.RWMutex
	data  *state
	txSem chan struct{}
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: newState(), txSem: make(chan struct{}, 1)}
}

// access decides how a repository reaches the data it operates on.
type access interface {
	read(fn func(*state) error) error
	write(ctx context.Context, fn func(*state) error) error
}

// txAccess works on a transaction's private copy.
type txAccess struct {
	st *state
}

func (a txAccess) read(fn func(*state) error) error { return fn(a.st) }

func (a txAccess) write(_ context.Context, fn func(*state) error) error { return fn(a.st) }

// autoAccess gives each call its own transaction.
type autoAccess struct {
	store *Store
}

func (a autoAccess) read(fn func(*state) error) error {
	a.store.mu.RLock()
	defer a.store.mu.RUnlock()
	return fn(a.store.data)
}

func (a autoAccess) write(ctx context.Context, fn func(*state) error) error {
	return a.store.run(ctx, fn)
}

func bind(a access) repository.Repositories {
	return repository.Repositories{
		Tickets: &ticketRepo{a: a},
		Staff:   &staffRepo{a: a},
		History: &historyRepo{a: a},
	}
}

func (s *Store) Repos() repository.Repositories {
	return bind(autoAccess{store: s})
}

func (s *Store) Analytics() repository.AnalyticsRepository {
	return &analyticsRepo{store: s}
}

func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return s.run(ctx, func(st *state) error {
		return fn(bind(txAccess{st: st}))
	})
}

// WithinAssignment shares the transaction semaphore with WithinTx, so every
// transaction already holds the assignment lock.
func (s *Store) WithinAssignment(ctx context.Context, fn func(repository.Repositories) error) error {
	return s.WithinTx(ctx, fn)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) run(ctx context.Context, fn func(*state) error) error {
	select {
	case s.txSem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.txSem }()

	s.mu.RLock()
	working := s.data.clone()
	s.mu.RUnlock()

	if err := fn(working); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = working
	s.mu.Unlock()
	return nil
}

func copyStaff(m domain.StaffMember) domain.StaffMember {
	if m.LastLoginAt != nil {
		at := *m.LastLoginAt
		m.LastLoginAt = &at
	}
	return m
}

func copyTicket(t domain.Ticket) domain.Ticket {
	t.AssignedTo = copyString(t.AssignedTo)
	t.ResolvedBy = copyString(t.ResolvedBy)
	t.AssignedAt = copyTime(t.AssignedAt)
	t.ResolvedAt = copyTime(t.ResolvedAt)
	t.Annotations = append([]string{}, t.Annotations...)
	t.Insights = append([]string{}, t.Insights...)
	return t
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
