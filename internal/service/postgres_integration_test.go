package service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// newPostgresEnv runs against POSTGRES_TEST_DSN, a disposable database.
func newPostgresEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = persistence.RunMigrations(ctx, pool, "../../migrations", zap.NewNop())
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "TRUNCATE ticket_history, tickets, staff_members")
	require.NoError(t, err)

	return newTestEnvWithStore(t, repository.NewPostgresStore(pool))
}

func TestPostgresRoundRobinAndDedup(t *testing.T) {
	env := newPostgresEnv(t)
	env.addAgents(t, "Bob", "Alice")

	first := env.assign(t, "<pg-1@mail>")
	require.Equal(t, domain.AssignmentAssigned, first.Status)
	assert.Equal(t, "alice@helpdesk.local", first.Assignee)

	dup := env.assign(t, "<pg-1@mail>")
	assert.Equal(t, domain.AssignmentAlreadyExists, dup.Status)
	assert.Equal(t, first.Ticket.ID, dup.Ticket.ID)

	second := env.assign(t, "<pg-2@mail>")
	assert.Equal(t, "bob@helpdesk.local", second.Assignee)
	third := env.assign(t, "<pg-3@mail>")
	assert.Equal(t, domain.AssignmentNoStaffAvailable, third.Status)

	detail, err := env.tickets.Get(context.Background(), first.Ticket.ID)
	require.NoError(t, err)
	require.Len(t, detail.History, 1)
	assert.Equal(t, domain.ActorTypeSystem, detail.History[0].ChangedByType)
}

func TestPostgresConcurrentAssignmentsSerialize(t *testing.T) {
	env := newPostgresEnv(t)
	env.addAgents(t, "Alice", "Bob", "Carol", "Dave", "Eve", "Frank")

	const n = 4
	var wg sync.WaitGroup
	var mu sync.Mutex
	var assigned []string
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := env.assignment.Assign(context.Background(), domain.Candidate{
				ExternalID: fmt.Sprintf("<pg-concurrent-%d@mail>", i),
				Subject:    "help",
				Body:       "please help",
			})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			assigned = append(assigned, outcome.Assignee)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	sort.Strings(assigned)
	assert.Equal(t, []string{
		"alice@helpdesk.local",
		"bob@helpdesk.local",
		"carol@helpdesk.local",
		"dave@helpdesk.local",
	}, assigned)
}

func TestPostgresDeactivationReleasesTickets(t *testing.T) {
	env := newPostgresEnv(t)
	env.addAgents(t, "Alice")
	outcome := env.assign(t, "<pg-deact@mail>")
	require.Equal(t, domain.AssignmentAssigned, outcome.Status)

	require.NoError(t, env.staff.Deactivate(context.Background(), env.admin, "alice@helpdesk.local"))

	detail, err := env.tickets.Get(context.Background(), outcome.Ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Ticket.AssignedTo)
	assert.Contains(t, detail.Ticket.Annotations, domain.ReassignmentAnnotation)
}

func TestPostgresAssignableOrderMatchesMemoryStore(t *testing.T) {
	env := newPostgresEnv(t)
	env.addStaff(t, "alice", "alice@helpdesk.local", domain.StaffRoleStaff)
	env.addStaff(t, "Bob", "bob@helpdesk.local", domain.StaffRoleStaff)

	emails, err := env.store.Repos().Staff.ListAssignable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@helpdesk.local", "alice@helpdesk.local"}, emails)
}

func TestPostgresCloseRacingManualAssignStaysClosed(t *testing.T) {
	env := newPostgresEnv(t)
	env.addAgents(t, "Alice", "Bob")
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		outcome := env.assign(t, fmt.Sprintf("<pg-race-assign-%d@mail>", i))
		require.Equal(t, domain.AssignmentAssigned, outcome.Status)
		id := outcome.Ticket.ID

		var wg sync.WaitGroup
		var closeErr, assignErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, closeErr = env.tickets.Close(ctx, id, "alice@helpdesk.local", "fixed")
		}()
		go func() {
			defer wg.Done()
			_, assignErr = env.tickets.ManualAssign(ctx, env.admin, id, "bob@helpdesk.local")
		}()
		wg.Wait()

		require.NoError(t, closeErr)
		if assignErr != nil {
			require.True(t, apperrors.HasCode(assignErr, apperrors.CodeConflict), "unexpected error: %v", assignErr)
		}
		detail, err := env.tickets.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TicketStatusClosed, detail.Ticket.Status)
		assert.NotNil(t, detail.Ticket.ResolvedAt)
		require.NotNil(t, detail.Ticket.ResolvedBy)
		assert.Equal(t, "alice@helpdesk.local", *detail.Ticket.ResolvedBy)
	}
}

func TestPostgresConcurrentCloseSucceedsOnce(t *testing.T) {
	env := newPostgresEnv(t)
	env.addAgents(t, "Alice")
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		outcome := env.assign(t, fmt.Sprintf("<pg-race-close-%d@mail>", i))
		id := outcome.Ticket.ID

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for j := range errs {
			wg.Add(1)
			go func(j int) {
				defer wg.Done()
				_, errs[j] = env.tickets.Close(ctx, id, "alice@helpdesk.local", fmt.Sprintf("closer %d", j))
			}(j)
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.True(t, apperrors.IsNotFound(err), "unexpected error: %v", err)
		}
		assert.Equal(t, 1, succeeded)

		detail, err := env.tickets.Get(ctx, id)
		require.NoError(t, err)
		closes := 0
		for _, h := range detail.History {
			if h.ChangeType == domain.ChangeTypeStatus {
				closes++
			}
		}
		assert.Equal(t, 1, closes)
	}
}
