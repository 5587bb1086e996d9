package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handler(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordedEvents) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	store      repository.Store
	clock      *fakeClock
	recorded   *recordedEvents
	outbox     events.Outbox
	assignment *AssignmentService
	tickets    *TicketService
	staff      *StaffService
	auth       *AuthService
	analytics  *AnalyticsService
	admin      *domain.StaffMember
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.NewStore())
}

func newTestEnvWithStore(t *testing.T, store repository.Store) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	clock := &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
	dispatcher := events.NewInMemoryDispatcher()
	recorded := &recordedEvents{}
	for _, et := range []events.EventType{events.EventTicketAssigned, events.EventTicketClosed, events.EventTicketUnassigned} {
		dispatcher.Subscribe(et, recorded.handler)
	}
	outbox := events.NewChannelOutbox(64)
	NewNotificationService(dispatcher, outbox, nil, logger).RegisterHandlers()

	tickets := NewTicketService(TicketDependencies{Store: store, Dispatcher: dispatcher, Logger: logger, Clock: clock.Now})
	env := &testEnv{
		store:    store,
		clock:    clock,
		recorded: recorded,
		outbox:   outbox,
		assignment: NewAssignmentService(AssignmentDependencies{
			Store: store, Dispatcher: dispatcher, Logger: logger, Clock: clock.Now,
		}),
		tickets: tickets,
		staff: NewStaffService(StaffDependencies{
			Store: store, Tickets: tickets, Dispatcher: dispatcher, Logger: logger,
			ProtectedAccounts: []string{"root@helpdesk.local"}, BcryptCost: 4,
		}),
		auth: NewAuthService(AuthDependencies{
			Store: store, TokenManager: auth.NewTokenManager("test-secret", time.Hour), Logger: logger,
		}),
		analytics: NewAnalyticsService(store, nil, 0),
	}
	env.admin = env.addStaff(t, "Admin", "root@helpdesk.local", domain.StaffRoleAdmin)
	return env
}

func (e *testEnv) addStaff(t *testing.T, name, email string, role domain.StaffRole) *domain.StaffMember {
	t.Helper()
	member, err := e.staff.CreateStaff(context.Background(), nil, StaffCreateInput{
		Email: email, Name: name, Password: "password123", Role: role,
	})
	require.NoError(t, err)
	return member
}

func (e *testEnv) addAgents(t *testing.T, names ...string) []string {
	t.Helper()
	emails := make([]string, 0, len(names))
	for _, name := range names {
		email := fmt.Sprintf("%s@helpdesk.local", lower(name))
		e.addStaff(t, name, email, domain.StaffRoleStaff)
		emails = append(emails, email)
	}
	return emails
}

func (e *testEnv) assign(t *testing.T, externalID string) *domain.AssignmentOutcome {
	t.Helper()
	e.clock.Advance(time.Second)
	outcome, err := e.assignment.Assign(context.Background(), domain.Candidate{
		ExternalID:  externalID,
		Subject:     "Printer jammed " + externalID,
		SenderEmail: "user@example.com",
		Body:        "The printer on floor 2 keeps jamming.",
		Urgency:     domain.UrgencyNormal,
	})
	require.NoError(t, err)
	return outcome
}

func lower(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r >= 'A' && r <= 'Z' {
			out[i] = r + ('a' - 'A')
		}
	}
	return string(out)
}
