package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

type ticketRepo struct {
	a access
}

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	return r.a.write(ctx, func(st *state) error {
		if _, exists := st.byExternal[ticket.ExternalID]; exists {
			return repository.ErrDuplicateExternalID
		}
		ticket.ID = uuid.NewString()
		if ticket.CreatedAt.IsZero() {
			ticket.CreatedAt = time.Now().UTC()
		}
		if ticket.Annotations == nil {
			ticket.Annotations = []string{}
		}
		if ticket.Insights == nil {
			ticket.Insights = []string{}
		}
		st.tickets[ticket.ID] = copyTicket(*ticket)
		st.byExternal[ticket.ExternalID] = ticket.ID
		return nil
	})
}

func (r *ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	return r.a.write(ctx, func(st *state) error {
		current, ok := st.tickets[ticket.ID]
		if !ok {
			return repository.ErrNotFound
		}
		updated := copyTicket(*ticket)
		// identity and intake fields are immutable
		updated.ExternalID = current.ExternalID
		updated.CreatedAt = current.CreatedAt
		st.tickets[ticket.ID] = updated
		return nil
	})
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.a.read(func(st *state) error {
		ticket, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := copyTicket(ticket)
		out = &cp
		return nil
	})
	return out, err
}

// GetByIDForUpdate is a plain read: transactions already hold the store
// semaphore for their whole duration.
func (r *ticketRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error) {
	var id string
	err := r.a.read(func(st *state) error {
		var ok bool
		if id, ok = st.byExternal[externalID]; !ok {
			return repository.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *ticketRepo) LastAssigned(_ context.Context) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.a.read(func(st *state) error {
		var best *domain.Ticket
		for _, ticket := range st.tickets {
			if ticket.AssignedAt == nil {
				continue
			}
			if best == nil || ticket.AssignedAt.After(*best.AssignedAt) ||
				(ticket.AssignedAt.Equal(*best.AssignedAt) && ticket.ID > best.ID) {
				cp := copyTicket(ticket)
				best = &cp
			}
		}
		if best == nil {
			return repository.ErrNotFound
		}
		out = best
		return nil
	})
	return out, err
}

func (r *ticketRepo) ListOpenByAssignee(_ context.Context, email string) ([]domain.Ticket, error) {
	var out []domain.Ticket
	err := r.a.read(func(st *state) error {
		for _, ticket := range st.tickets {
			if ticket.IsOpen() && ticket.Assignee() == email {
				out = append(out, copyTicket(ticket))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

func (r *ticketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	var matched []domain.Ticket
	err := r.a.read(func(st *state) error {
		for _, ticket := range st.tickets {
			if matchTicket(ticket, filter) {
				matched = append(matched, copyTicket(ticket))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(matched) {
		return nil, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func matchTicket(ticket domain.Ticket, filter repository.TicketFilter) bool {
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if ticket.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.AssignedTo != nil && ticket.Assignee() != *filter.AssignedTo {
		return false
	}
	if filter.Unassigned && ticket.AssignedTo != nil {
		return false
	}
	if filter.Urgency != nil && ticket.Urgency != *filter.Urgency {
		return false
	}
	if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	if filter.SearchTerm != nil {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if term != "" &&
			!strings.Contains(strings.ToLower(ticket.Subject), term) &&
			!strings.Contains(strings.ToLower(ticket.Body), term) &&
			!strings.Contains(strings.ToLower(ticket.SenderEmail), term) {
			return false
		}
	}
	return true
}

type staffRepo struct {
	a access
}

func (r *staffRepo) Create(ctx context.Context, staff *domain.StaffMember) error {
	return r.a.write(ctx, func(st *state) error {
		for _, existing := range st.staff {
			if strings.EqualFold(existing.Email, staff.Email) {
				return repository.ErrDuplicateEmail
			}
		}
		now := time.Now().UTC()
		staff.ID = uuid.NewString()
		staff.CreatedAt = now
		staff.UpdatedAt = now
		st.staff[staff.ID] = copyStaff(*staff)
		return nil
	})
}

func (r *staffRepo) Update(ctx context.Context, staff *domain.StaffMember) error {
	return r.a.write(ctx, func(st *state) error {
		current, ok := st.staff[staff.ID]
		if !ok {
			return repository.ErrNotFound
		}
		staff.Email = current.Email
		staff.CreatedAt = current.CreatedAt
		staff.UpdatedAt = time.Now().UTC()
		st.staff[staff.ID] = copyStaff(*staff)
		return nil
	})
}

func (r *staffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	var out *domain.StaffMember
	err := r.a.read(func(st *state) error {
		member, ok := st.staff[id]
		if !ok {
			return repository.ErrNotFound
		}
		cp := copyStaff(member)
		out = &cp
		return nil
	})
	return out, err
}

func (r *staffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	var out *domain.StaffMember
	err := r.a.read(func(st *state) error {
		for _, member := range st.staff {
			if strings.EqualFold(member.Email, email) {
				cp := copyStaff(member)
				out = &cp
				return nil
			}
		}
		return repository.ErrNotFound
	})
	return out, err
}

func (r *staffRepo) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	var out []domain.StaffMember
	err := r.a.read(func(st *state) error {
		for _, member := range st.staff {
			if filter.Role != nil && member.Role != *filter.Role {
				continue
			}
			if filter.Active != nil && member.Active != *filter.Active {
				continue
			}
			out = append(out, copyStaff(member))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortStaff(out)
	if filter.Limit > 0 {
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		if offset >= len(out) {
			return nil, nil
		}
		end := offset + filter.Limit
		if end > len(out) {
			end = len(out)
		}
		out = out[offset:end]
	}
	return out, nil
}

func (r *staffRepo) ListAssignable(_ context.Context) ([]string, error) {
	emails := []string{}
	err := r.a.read(func(st *state) error {
		busy := map[string]bool{}
		for _, ticket := range st.tickets {
			if ticket.IsOpen() && ticket.AssignedTo != nil {
				busy[*ticket.AssignedTo] = true
			}
		}
		var members []domain.StaffMember
		for _, member := range st.staff {
			if member.Assignable() && !busy[member.Email] {
				members = append(members, member)
			}
		}
		sortStaff(members)
		for _, member := range members {
			emails = append(emails, member.Email)
		}
		return nil
	})
	return emails, err
}

func (r *staffRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.a.write(ctx, func(st *state) error {
		member, ok := st.staff[id]
		if !ok {
			return repository.ErrNotFound
		}
		member.LastLoginAt = &at
		st.staff[id] = member
		return nil
	})
}

func sortStaff(members []domain.StaffMember) {
	sort.Slice(members, func(i, j int) bool {
		if members[i].Name == members[j].Name {
			return members[i].Email < members[j].Email
		}
		return members[i].Name < members[j].Name
	})
}

type historyRepo struct {
	a access
}

func (r *historyRepo) Create(ctx context.Context, history *domain.TicketHistory) error {
	return r.a.write(ctx, func(st *state) error {
		if _, ok := st.tickets[history.TicketID]; !ok {
			return repository.ErrNotFound
		}
		history.ID = uuid.NewString()
		history.CreatedAt = time.Now().UTC()
		st.history = append(st.history, *history)
		return nil
	})
}

func (r *historyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketHistory, error) {
	var out []domain.TicketHistory
	err := r.a.read(func(st *state) error {
		for _, entry := range st.history {
			if entry.TicketID == ticketID {
				out = append(out, entry)
			}
		}
		return nil
	})
	return out, err
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
