package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

const (
	defaultStoreTimeout   = 10 * time.Second
	publishTimeout        = 5 * time.Second
	assignmentResolution  = time.Microsecond
	maxStaleInsightsBatch = 500
)

// nextInRotation returns the entry after last in verified, wrapping at the
// end, or the first entry when last is not in the list.
func nextInRotation(verified []string, last string) string {
	for i, email := range verified {
		if email == last {
			return verified[(i+1)%len(verified)]
		}
	}
	return verified[0]
}

// nextAssignmentTime keeps assignment timestamps strictly increasing so the
// most recent assignment is always unique.
func nextAssignmentTime(cursor *domain.Ticket, now time.Time) time.Time {
	at := now.UTC().Truncate(assignmentResolution)
	if cursor != nil && cursor.AssignedAt != nil && !at.After(*cursor.AssignedAt) {
		at = cursor.AssignedAt.UTC().Add(assignmentResolution)
	}
	return at
}

// lastAssigned returns the cursor ticket or nil when nothing was ever assigned.
func lastAssigned(ctx context.Context, tickets repository.TicketRepository) (*domain.Ticket, error) {
	last, err := tickets.LastAssigned(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return last, err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validTicketID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func requireAdmin(actor *domain.StaffMember) error {
	if actor == nil {
		return apperrors.NewUnauthorized("staff required")
	}
	if actor.Role != domain.StaffRoleAdmin {
		return apperrors.NewForbidden("administrator role required")
	}
	return nil
}

// storeError converts repository failures into domain errors. Anything that is
// not already classified means the store could not complete the operation.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("resource", nil)
	}
	return apperrors.NewStoreUnavailable(err)
}

func actorOf(actor *domain.StaffMember) (domain.ActorType, *string) {
	if actor == nil {
		return domain.ActorTypeSystem, nil
	}
	email := actor.Email
	return domain.ActorTypeStaff, &email
}

func recordAssigneeChange(ctx context.Context, history repository.TicketHistoryRepository, actorType domain.ActorType, actorEmail *string, ticketID string, oldAssignee, newAssignee *string, reason string) error {
	newValue := map[string]any{"assigned_to": newAssignee}
	if reason != "" {
		newValue["reason"] = reason
	}
	return history.Create(ctx, &domain.TicketHistory{
		TicketID:      ticketID,
		ChangedByType: actorType,
		ChangedByID:   actorEmail,
		ChangeType:    domain.ChangeTypeAssignee,
		OldValue:      map[string]any{"assigned_to": oldAssignee},
		NewValue:      newValue,
	})
}

// publisher emits events once the owning transaction has committed.
type publisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

func (p publisher) publish(ctx context.Context, eventType events.EventType, ticketID string, actor *domain.StaffMember, payload any) {
	if p.dispatcher == nil {
		return
	}
	actorType, email := actorOf(actor)
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		Actor:     events.Actor{Type: actorType, Email: email},
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.dispatcher.Publish(pubCtx, event); err != nil && p.logger != nil {
		p.logger.Warn("event handlers failed",
			zap.String("event_type", string(eventType)),
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}

func summaryOf(ticket *domain.Ticket) events.TicketSummary {
	return events.TicketSummary{
		ID:          ticket.ID,
		Subject:     ticket.Subject,
		SenderEmail: ticket.SenderEmail,
		Priority:    ticket.Priority,
		Urgency:     ticket.Urgency,
		Status:      ticket.Status,
	}
}
