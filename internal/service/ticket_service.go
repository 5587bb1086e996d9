package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/analysis"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketService coordinates ticket lifecycle workflows.
type TicketService struct {
	store        repository.Store
	analyzer     analysis.Analyzer
	events       publisher
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Store        repository.Store
	Analyzer     analysis.Analyzer
	Dispatcher   events.Dispatcher
	Logger       *zap.Logger
	StoreTimeout time.Duration
	Clock        func() time.Time
}

// TicketListFilter describes staff listing filters.
type TicketListFilter struct {
	Statuses   []domain.TicketStatus
	AssignedTo *string
	Unassigned bool
	Urgency    *domain.Urgency
	SearchTerm *string
	CreatedTo  *time.Time
	Limit      int
	Offset     int
}

// TicketDetail is a ticket with its audit trail.
type TicketDetail struct {
	Ticket  *domain.Ticket
	History []domain.TicketHistory
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = analysis.NewKeywordAnalyzer()
	}
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		store:        deps.Store,
		analyzer:     analyzer,
		events:       publisher{dispatcher: deps.Dispatcher, logger: logger},
		logger:       logger,
		storeTimeout: timeout,
		now:          clock,
	}
}

// Get returns a ticket with its history.
func (s *TicketService) Get(ctx context.Context, ticketID string) (*TicketDetail, error) {
	if !validTicketID(ticketID) {
		return nil, ticketNotFound(ticketID)
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	repos := s.store.Repos()
	ticket, err := repos.Tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ticketNotFound(ticketID)
		}
		return nil, storeError(err)
	}
	history, err := repos.History.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, storeError(err)
	}
	return &TicketDetail{Ticket: ticket, History: history}, nil
}

// List returns tickets newest first.
func (s *TicketService) List(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, error) {
	if filter.Limit > 100 {
		filter.Limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	tickets, err := s.store.Repos().Tickets.ListWithFilter(ctx, repository.TicketFilter{
		Statuses:   filter.Statuses,
		AssignedTo: filter.AssignedTo,
		Unassigned: filter.Unassigned,
		Urgency:    filter.Urgency,
		SearchTerm: filter.SearchTerm,
		CreatedTo:  filter.CreatedTo,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	})
	if err != nil {
		return nil, storeError(err)
	}
	return tickets, nil
}

// ManualAssign hands a ticket to a staff member chosen by an administrator,
// ignoring current load. It moves the round-robin cursor, so it runs under
// the assignment lock.
func (s *TicketService) ManualAssign(ctx context.Context, actor *domain.StaffMember, ticketID, staffEmail string) (*domain.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	staffEmail = normalizeEmail(staffEmail)
	if staffEmail == "" {
		return nil, apperrors.NewValidationError("staff email required", nil)
	}
	if !validTicketID(ticketID) {
		return nil, ticketNotFound(ticketID)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var ticket *domain.Ticket
	var previous *string
	err := s.store.WithinAssignment(storeCtx, func(repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(storeCtx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ticketNotFound(ticketID)
			}
			return err
		}
		member, err := repos.Staff.GetByEmail(storeCtx, staffEmail)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("staff", map[string]any{"email": staffEmail})
			}
			return err
		}
		if !member.Assignable() {
			return apperrors.NewConflict("staff member is not active support staff", map[string]any{"email": member.Email})
		}
		if !ticket.IsOpen() {
			return apperrors.NewConflict("ticket is closed", map[string]any{"ticket_id": ticketID})
		}

		cursor, err := lastAssigned(storeCtx, repos.Tickets)
		if err != nil {
			return err
		}
		assignedAt := nextAssignmentTime(cursor, s.now())
		previous = ticket.AssignedTo
		assignee := member.Email
		ticket.AssignedTo = &assignee
		ticket.AssignedAt = &assignedAt
		if err := repos.Tickets.Update(storeCtx, ticket); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		actorType, actorEmail := actorOf(actor)
		return recordAssigneeChange(storeCtx, repos.History, actorType, actorEmail, ticket.ID, previous, &assignee, "manual")
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("ticket manually assigned",
		zap.String("ticket_id", ticket.ID),
		zap.String("assignee", ticket.Assignee()),
		zap.String("actor", actor.Email))
	s.events.publish(ctx, events.EventTicketAssigned, ticket.ID, actor, events.TicketAssignedPayload{
		Assignee:         ticket.Assignee(),
		PreviousAssignee: previous,
		Manual:           true,
		Ticket:           summaryOf(ticket),
	})
	return ticket, nil
}

// Close resolves an open ticket. Closing twice is rejected as not found.
func (s *TicketService) Close(ctx context.Context, ticketID, resolvedBy, notes string) (*domain.Ticket, error) {
	resolvedBy = strings.TrimSpace(resolvedBy)
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, apperrors.NewValidationError("resolution notes required", map[string]any{"field": "notes"})
	}
	if resolvedBy == "" {
		return nil, apperrors.NewValidationError("resolved by required", map[string]any{"field": "resolved_by"})
	}
	if !validTicketID(ticketID) {
		return nil, ticketNotFound(ticketID)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var ticket *domain.Ticket
	err := s.store.WithinTx(storeCtx, func(repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(storeCtx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ticketNotFound(ticketID)
			}
			return err
		}
		if !ticket.IsOpen() {
			return apperrors.NewNotFound("open ticket", map[string]any{"ticket_id": ticketID})
		}
		resolvedAt := s.now().UTC()
		ticket.Status = domain.TicketStatusClosed
		ticket.ResolvedAt = &resolvedAt
		ticket.ResolvedBy = &resolvedBy
		ticket.ResolutionNotes = notes
		if err := repos.Tickets.Update(storeCtx, ticket); err != nil {
			return fmt.Errorf("update ticket: %w", err)
		}
		return repos.History.Create(storeCtx, &domain.TicketHistory{
			TicketID:      ticket.ID,
			ChangedByType: domain.ActorTypeStaff,
			ChangedByID:   &resolvedBy,
			ChangeType:    domain.ChangeTypeStatus,
			OldValue:      map[string]any{"status": domain.TicketStatusOpen},
			NewValue:      map[string]any{"status": domain.TicketStatusClosed, "notes": notes},
		})
	})
	if err != nil {
		return nil, storeError(err)
	}

	s.logger.Info("ticket closed", zap.String("ticket_id", ticket.ID), zap.String("resolved_by", resolvedBy))
	s.events.publish(ctx, events.EventTicketClosed, ticket.ID, nil, events.TicketClosedPayload{
		Assignee:   ticket.AssignedTo,
		ResolvedBy: resolvedBy,
		Ticket:     summaryOf(ticket),
	})
	return ticket, nil
}

// OnStaffDeactivated unassigns every open ticket held by email and marks it
// for reassignment. It runs inside the caller's transaction and returns the
// affected tickets so the caller can publish after commit.
func (s *TicketService) OnStaffDeactivated(ctx context.Context, repos repository.Repositories, actor *domain.StaffMember, email string) ([]domain.Ticket, error) {
	open, err := repos.Tickets.ListOpenByAssignee(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list open tickets: %w", err)
	}
	actorType, actorEmail := actorOf(actor)
	released := make([]domain.Ticket, 0, len(open))
	for i := range open {
		ticket, err := repos.Tickets.GetByIDForUpdate(ctx, open[i].ID)
		if err != nil {
			return nil, fmt.Errorf("lock ticket %s: %w", open[i].ID, err)
		}
		// closed or moved between the listing and the lock
		if !ticket.IsOpen() || ticket.Assignee() != email {
			continue
		}
		previous := ticket.AssignedTo
		ticket.AssignedTo = nil
		ticket.AssignedAt = nil
		ticket.Annotations = append(ticket.Annotations, domain.ReassignmentAnnotation)
		if err := repos.Tickets.Update(ctx, ticket); err != nil {
			return nil, fmt.Errorf("unassign ticket %s: %w", ticket.ID, err)
		}
		if err := recordAssigneeChange(ctx, repos.History, actorType, actorEmail, ticket.ID, previous, nil, domain.ReassignmentAnnotation); err != nil {
			return nil, fmt.Errorf("record unassignment: %w", err)
		}
		released = append(released, *ticket)
	}
	return released, nil
}

// AddAnnotation appends an administrative note to a ticket.
func (s *TicketService) AddAnnotation(ctx context.Context, actor *domain.StaffMember, ticketID, note string) (*domain.Ticket, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.NewValidationError("note required", map[string]any{"field": "note"})
	}
	if !validTicketID(ticketID) {
		return nil, ticketNotFound(ticketID)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var ticket *domain.Ticket
	err := s.store.WithinTx(storeCtx, func(repos repository.Repositories) error {
		var err error
		ticket, err = repos.Tickets.GetByIDForUpdate(storeCtx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ticketNotFound(ticketID)
			}
			return err
		}
		ticket.Annotations = append(ticket.Annotations, note)
		if err := repos.Tickets.Update(storeCtx, ticket); err != nil {
			return err
		}
		actorType, actorEmail := actorOf(actor)
		return repos.History.Create(storeCtx, &domain.TicketHistory{
			TicketID:      ticket.ID,
			ChangedByType: actorType,
			ChangedByID:   actorEmail,
			ChangeType:    domain.ChangeTypeAnnotation,
			NewValue:      map[string]any{"note": note},
		})
	})
	if err != nil {
		return nil, storeError(err)
	}
	return ticket, nil
}

// RefreshStaleInsights adds the over-24h insight to open tickets that crossed
// the threshold since intake. It returns how many tickets changed.
func (s *TicketService) RefreshStaleInsights(ctx context.Context) (int, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	now := s.now()
	cutoff := now.Add(-24 * time.Hour)
	stale, err := s.store.Repos().Tickets.ListWithFilter(storeCtx, repository.TicketFilter{
		Statuses:  []domain.TicketStatus{domain.TicketStatusOpen},
		CreatedTo: &cutoff,
		Limit:     maxStaleInsightsBatch,
	})
	if err != nil {
		return 0, storeError(err)
	}

	updated := 0
	for i := range stale {
		ticket := &stale[i]
		if containsString(ticket.Insights, analysis.InsightOpenOver24h) {
			continue
		}
		ticket.Insights = s.analyzer.Insights(analysis.InsightInput{
			Subject:        ticket.Subject,
			Body:           ticket.Body,
			Status:         ticket.Status,
			CreatedAt:      ticket.CreatedAt,
			SentimentScore: ticket.SentimentScore,
			Now:            now,
		})
		err := s.store.WithinTx(storeCtx, func(repos repository.Repositories) error {
			current, err := repos.Tickets.GetByIDForUpdate(storeCtx, ticket.ID)
			if err != nil {
				return err
			}
			if !current.IsOpen() {
				return nil
			}
			current.Insights = ticket.Insights
			return repos.Tickets.Update(storeCtx, current)
		})
		if err != nil {
			return updated, storeError(err)
		}
		updated++
	}
	return updated, nil
}

func ticketNotFound(ticketID string) error {
	return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
