package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/analysis"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AssignmentService turns candidates into tickets assigned round robin over
// idle staff.
type AssignmentService struct {
	store        repository.Store
	analyzer     analysis.Analyzer
	events       publisher
	metrics      *observability.Metrics
	logger       *zap.Logger
	storeTimeout time.Duration
	now          func() time.Time
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store        repository.Store
	Analyzer     analysis.Analyzer
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	StoreTimeout time.Duration
	Clock        func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
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
	return &AssignmentService{
		store:        deps.Store,
		analyzer:     analyzer,
		events:       publisher{dispatcher: deps.Dispatcher, logger: logger},
		metrics:      deps.Metrics,
		logger:       logger,
		storeTimeout: timeout,
		now:          clock,
	}
}

// Assign creates a ticket for the candidate unless one already exists for its
// external id. Duplicates and an empty idle pool are outcomes, not errors.
// The whole decision runs under the assignment lock.
func (s *AssignmentService) Assign(ctx context.Context, candidate domain.Candidate) (*domain.AssignmentOutcome, error) {
	c, err := domain.NewCandidate(candidate)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), nil)
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var outcome *domain.AssignmentOutcome
	err = s.store.WithinAssignment(storeCtx, func(repos repository.Repositories) error {
		var err error
		outcome, err = s.assignLocked(storeCtx, repos, c)
		return err
	})
	if err != nil {
		s.metrics.RecordAssignment("error")
		s.logger.Error("assignment failed", zap.String("external_id", c.ExternalID), zap.Error(err))
		return nil, storeError(err)
	}

	s.metrics.RecordAssignment(string(outcome.Status))
	switch outcome.Status {
	case domain.AssignmentAssigned:
		s.logger.Info("ticket assigned",
			zap.String("ticket_id", outcome.Ticket.ID),
			zap.String("external_id", c.ExternalID),
			zap.String("assignee", outcome.Assignee))
		s.events.publish(ctx, events.EventTicketAssigned, outcome.Ticket.ID, nil, events.TicketAssignedPayload{
			Assignee: outcome.Assignee,
			Ticket:   summaryOf(outcome.Ticket),
		})
	case domain.AssignmentAlreadyExists:
		s.logger.Debug("duplicate candidate", zap.String("external_id", c.ExternalID))
	case domain.AssignmentNoStaffAvailable:
		s.logger.Warn("no assignable staff; candidate left for retry", zap.String("external_id", c.ExternalID))
	}
	return outcome, nil
}

func (s *AssignmentService) assignLocked(ctx context.Context, repos repository.Repositories, c domain.Candidate) (*domain.AssignmentOutcome, error) {
	existing, err := repos.Tickets.GetByExternalID(ctx, c.ExternalID)
	if err == nil {
		return &domain.AssignmentOutcome{Status: domain.AssignmentAlreadyExists, Assignee: existing.Assignee(), Ticket: existing}, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup external id: %w", err)
	}

	assignable, err := repos.Staff.ListAssignable(ctx)
	if err != nil {
		return nil, fmt.Errorf("list assignable staff: %w", err)
	}
	verified, err := verifyActive(ctx, repos.Staff, assignable)
	if err != nil {
		return nil, err
	}
	if len(verified) == 0 {
		return &domain.AssignmentOutcome{Status: domain.AssignmentNoStaffAvailable}, nil
	}

	cursor, err := lastAssigned(ctx, repos.Tickets)
	if err != nil {
		return nil, fmt.Errorf("read assignment cursor: %w", err)
	}
	assignee := nextInRotation(verified, cursor.Assignee())
	now := s.now().UTC()
	assignedAt := nextAssignmentTime(cursor, now)

	ticket := &domain.Ticket{
		ExternalID:     c.ExternalID,
		Subject:        c.Subject,
		SenderEmail:    c.SenderEmail,
		SenderName:     c.SenderName,
		Body:           c.Body,
		AssignedTo:     &assignee,
		Status:         domain.TicketStatusOpen,
		Priority:       c.Urgency.Priority(),
		SentimentScore: c.SentimentScore,
		SentimentLabel: c.SentimentLabel,
		Urgency:        c.Urgency,
		CreatedAt:      now,
		AssignedAt:     &assignedAt,
		Annotations:    []string{},
		Insights: s.analyzer.Insights(analysis.InsightInput{
			Subject:        c.Subject,
			Body:           c.Body,
			Status:         domain.TicketStatusOpen,
			CreatedAt:      now,
			SentimentScore: c.SentimentScore,
			Now:            now,
		}),
	}
	if err := repos.Tickets.Create(ctx, ticket); err != nil {
		if errors.Is(err, repository.ErrDuplicateExternalID) {
			return &domain.AssignmentOutcome{Status: domain.AssignmentAlreadyExists}, nil
		}
		return nil, fmt.Errorf("create ticket: %w", err)
	}
	if err := recordAssigneeChange(ctx, repos.History, domain.ActorTypeSystem, nil, ticket.ID, nil, &assignee, ""); err != nil {
		return nil, fmt.Errorf("record assignment: %w", err)
	}
	return &domain.AssignmentOutcome{Status: domain.AssignmentAssigned, Assignee: assignee, Ticket: ticket}, nil
}

// verifyActive re-reads each listed member and keeps those still assignable,
// preserving order.
func verifyActive(ctx context.Context, staff repository.StaffRepository, emails []string) ([]string, error) {
	verified := make([]string, 0, len(emails))
	for _, email := range emails {
		member, err := staff.GetByEmail(ctx, email)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("verify staff %s: %w", email, err)
		}
		if member.Assignable() {
			verified = append(verified, member.Email)
		}
	}
	return verified, nil
}
