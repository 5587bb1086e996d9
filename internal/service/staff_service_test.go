package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

func TestDeactivateUnassignsOpenTickets(t *testing.T) {
	env := newTestEnv(t)
	env.addAgents(t, "Alice", "Bob")
	ctx := context.Background()

	first := env.assign(t, "m1").Ticket
	second := env.assign(t, "m2").Ticket
	require.Equal(t, "bob@helpdesk.local", second.Assignee())
	_, err := env.tickets.ManualAssign(ctx, env.admin, second.ID, "alice@helpdesk.local")
	require.NoError(t, err)

	require.NoError(t, env.staff.Deactivate(ctx, env.admin, "Alice@Helpdesk.local"))

	for _, id := range []string{first.ID, second.ID} {
		detail, err := env.tickets.Get(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, detail.Ticket.AssignedTo)
		assert.Equal(t, domain.TicketStatusOpen, detail.Ticket.Status)
		assert.Contains(t, detail.Ticket.Annotations, domain.ReassignmentAnnotation)
	}
	assert.Len(t, env.recorded.ofType(events.EventTicketUnassigned), 2)

	assignable, err := env.staff.ListAssignable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob@helpdesk.local"}, assignable)

	active, err := env.staff.ListActiveForManualPick(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "bob@helpdesk.local", active[0].Email)

	// no-op the second time
	require.NoError(t, env.staff.Deactivate(ctx, env.admin, "alice@helpdesk.local"))
	assert.Len(t, env.recorded.ofType(events.EventTicketUnassigned), 2)
}

func TestDeactivateGuards(t *testing.T) {
	env := newTestEnv(t)
	agent := env.addStaff(t, "Alice", "alice@helpdesk.local", domain.StaffRoleStaff)
	second := env.addStaff(t, "Other Admin", "ops@helpdesk.local", domain.StaffRoleAdmin)
	ctx := context.Background()

	err := env.staff.Deactivate(ctx, second, "root@helpdesk.local")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	err = env.staff.Deactivate(ctx, second, "ops@helpdesk.local")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	err = env.staff.Deactivate(ctx, agent, "ops@helpdesk.local")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	err = env.staff.Deactivate(ctx, env.admin, "ghost@helpdesk.local")
	assert.True(t, apperrors.IsNotFound(err))

	err = env.staff.Deactivate(ctx, env.admin, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	// the operator CLI can still deactivate other admins
	require.NoError(t, env.staff.Deactivate(ctx, nil, "ops@helpdesk.local"))
}

func TestCreateStaff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	member, err := env.staff.CreateStaff(ctx, env.admin, StaffCreateInput{
		Email: " New.Agent@Helpdesk.local ", Name: "New Agent", Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, "new.agent@helpdesk.local", member.Email)
	assert.Equal(t, domain.StaffRoleStaff, member.Role)
	assert.True(t, member.Active)
	assert.NotEqual(t, "password123", member.PasswordHash)

	_, err = env.staff.CreateStaff(ctx, env.admin, StaffCreateInput{Email: "NEW.AGENT@helpdesk.local", Name: "Dup", Password: "password123"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = env.staff.CreateStaff(ctx, env.admin, StaffCreateInput{Email: "not-an-email", Name: "X", Password: "password123"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.staff.CreateStaff(ctx, env.admin, StaffCreateInput{Email: "short@helpdesk.local", Name: "X", Password: "short"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.staff.CreateStaff(ctx, env.admin, StaffCreateInput{Email: "r@helpdesk.local", Name: "X", Password: "password123", Role: "owner"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.staff.CreateStaff(ctx, member, StaffCreateInput{Email: "x@helpdesk.local", Name: "X", Password: "password123"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	all, err := env.staff.ListStaff(ctx, env.admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestLoginStaff(t *testing.T) {
	env := newTestEnv(t)
	env.addStaff(t, "Alice", "alice@helpdesk.local", domain.StaffRoleStaff)
	ctx := context.Background()

	member, token, exp, err := env.auth.LoginStaff(ctx, "ALICE@helpdesk.local", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.False(t, exp.IsZero())
	require.NotNil(t, member.LastLoginAt)

	_, _, _, err = env.auth.LoginStaff(ctx, "alice@helpdesk.local", "wrong-password")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	_, _, _, err = env.auth.LoginStaff(ctx, "ghost@helpdesk.local", "password123")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	require.NoError(t, env.staff.Deactivate(ctx, env.admin, "alice@helpdesk.local"))
	_, _, _, err = env.auth.LoginStaff(ctx, "alice@helpdesk.local", "password123")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestAnalyticsSummary(t *testing.T) {
	env := newTestEnv(t)
	env.addAgents(t, "Alice", "Bob", "Carol")
	ctx := context.Background()

	env.assign(t, "m1")
	second := env.assign(t, "m2").Ticket
	_, err := env.tickets.Close(ctx, second.ID, "bob@helpdesk.local", "done")
	require.NoError(t, err)

	overview, err := env.analytics.Summary(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, overview.TotalTickets)
	assert.EqualValues(t, 1, overview.OpenTickets)
	assert.EqualValues(t, 1, overview.ClosedTickets)
	assert.EqualValues(t, 2, overview.UrgencyCounts[domain.UrgencyNormal])
	assert.Len(t, overview.Workload, 3)

	// nil metrics are tolerated
	require.NoError(t, env.analytics.RefreshGauges(ctx))
}

func TestUpdateStaffEditsAndReactivates(t *testing.T) {
	env := newTestEnv(t)
	env.addAgents(t, "Alice", "Bob")
	ctx := context.Background()

	ticket := env.assign(t, "m1").Ticket
	require.Equal(t, "alice@helpdesk.local", ticket.Assignee())

	inactive := false
	member, err := env.staff.UpdateStaff(ctx, env.admin, "alice@helpdesk.local", StaffUpdateInput{Active: &inactive})
	require.NoError(t, err)
	assert.False(t, member.Active)
	detail, err := env.tickets.Get(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Nil(t, detail.Ticket.AssignedTo)
	assert.Len(t, env.recorded.ofType(events.EventTicketUnassigned), 1)

	member, err = env.staff.Reactivate(ctx, env.admin, "alice@helpdesk.local")
	require.NoError(t, err)
	assert.True(t, member.Active)
	assignable, err := env.staff.ListAssignable(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@helpdesk.local", "bob@helpdesk.local"}, assignable)

	name := "Alice Smith"
	role := domain.StaffRoleAdmin
	member, err = env.staff.UpdateStaff(ctx, env.admin, "alice@helpdesk.local", StaffUpdateInput{
		Name: &name, Role: &role, Password: "new-password-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", member.Name)
	assert.Equal(t, domain.StaffRoleAdmin, member.Role)

	_, _, _, err = env.auth.LoginStaff(ctx, "alice@helpdesk.local", "new-password-1")
	require.NoError(t, err)
	_, _, _, err = env.auth.LoginStaff(ctx, "alice@helpdesk.local", "password123")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}

func TestUpdateStaffGuards(t *testing.T) {
	env := newTestEnv(t)
	agent := env.addStaff(t, "Alice", "alice@helpdesk.local", domain.StaffRoleStaff)
	ctx := context.Background()
	staffRole := domain.StaffRoleStaff
	blank := "  "
	bogus := domain.StaffRole("owner")

	_, err := env.staff.UpdateStaff(ctx, env.admin, "root@helpdesk.local", StaffUpdateInput{Role: &staffRole})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = env.staff.UpdateStaff(ctx, agent, "alice@helpdesk.local", StaffUpdateInput{Name: &blank})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = env.staff.UpdateStaff(ctx, env.admin, "alice@helpdesk.local", StaffUpdateInput{Name: &blank})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.staff.UpdateStaff(ctx, env.admin, "alice@helpdesk.local", StaffUpdateInput{Role: &bogus})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.staff.UpdateStaff(ctx, env.admin, "alice@helpdesk.local", StaffUpdateInput{Password: "short"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = env.staff.UpdateStaff(ctx, env.admin, "ghost@helpdesk.local", StaffUpdateInput{Name: &blank})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	name := "Root"
	_, err = env.staff.UpdateStaff(ctx, env.admin, "ghost@helpdesk.local", StaffUpdateInput{Name: &name})
	assert.True(t, apperrors.IsNotFound(err))

	// protected accounts may still be renamed
	member, err := env.staff.UpdateStaff(ctx, env.admin, "root@helpdesk.local", StaffUpdateInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Root", member.Name)
	assert.Equal(t, domain.StaffRoleAdmin, member.Role)
}

func TestAnalyticsPersonal(t *testing.T) {
	env := newTestEnv(t)
	alice := env.addStaff(t, "Alice", "alice@helpdesk.local", domain.StaffRoleStaff)
	bob := env.addStaff(t, "Bob", "bob@helpdesk.local", domain.StaffRoleStaff)
	ctx := context.Background()

	first := env.assign(t, "m1").Ticket
	require.Equal(t, "alice@helpdesk.local", first.Assignee())
	env.assign(t, "m2")
	env.clock.Advance(3 * time.Hour)
	_, err := env.tickets.Close(ctx, first.ID, "alice@helpdesk.local", "done")
	require.NoError(t, err)
	env.assign(t, "m3")

	stats, err := env.analytics.Personal(ctx, alice)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.Open)
	assert.EqualValues(t, 1, stats.Closed)
	require.NotNil(t, stats.AvgResolutionHours)
	assert.InDelta(t, 3.0, *stats.AvgResolutionHours, 0.01)
	assert.InDelta(t, 50.0, stats.CompletionRate(), 0.001)
	require.Len(t, stats.Recent, 2)
	assert.Equal(t, "m3", stats.Recent[0].ExternalID)

	stats, err = env.analytics.Personal(ctx, bob)
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats.Total)
	assert.Nil(t, stats.AvgResolutionHours)

	_, err = env.analytics.Personal(ctx, nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))
}
