package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// StaffService manages the staff directory.
type StaffService struct {
	store        repository.Store
	tickets      *TicketService
	events       publisher
	logger       *zap.Logger
	protected    map[string]struct{}
	bcryptCost   int
	storeTimeout time.Duration
}

// StaffDependencies bundles collaborators for the staff service.
type StaffDependencies struct {
	Store             repository.Store
	Tickets           *TicketService
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
	ProtectedAccounts []string
	BcryptCost        int
	StoreTimeout      time.Duration
}

// StaffCreateInput describes a new staff account.
type StaffCreateInput struct {
	Email    string
	Name     string
	Password string
	Role     domain.StaffRole
}

// NewStaffService constructs the service.
func NewStaffService(deps StaffDependencies) *StaffService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := deps.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	protected := make(map[string]struct{}, len(deps.ProtectedAccounts))
	for _, email := range deps.ProtectedAccounts {
		protected[normalizeEmail(email)] = struct{}{}
	}
	return &StaffService{
		store:        deps.Store,
		tickets:      deps.Tickets,
		events:       publisher{dispatcher: deps.Dispatcher, logger: logger},
		logger:       logger,
		protected:    protected,
		bcryptCost:   deps.BcryptCost,
		storeTimeout: timeout,
	}
}

// ListAssignable returns name-ordered emails of active staff with no open tickets.
func (s *StaffService) ListAssignable(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	emails, err := s.store.Repos().Staff.ListAssignable(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return emails, nil
}

// ListActiveForManualPick returns every active support staff member regardless of load.
func (s *StaffService) ListActiveForManualPick(ctx context.Context) ([]domain.StaffMember, error) {
	role := domain.StaffRoleStaff
	active := true
	return s.list(ctx, repository.StaffFilter{Role: &role, Active: &active})
}

// ListStaff returns all staff accounts for administration.
func (s *StaffService) ListStaff(ctx context.Context, actor *domain.StaffMember) ([]domain.StaffMember, error) {
	if actor != nil {
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
	}
	return s.list(ctx, repository.StaffFilter{})
}

func (s *StaffService) list(ctx context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	members, err := s.store.Repos().Staff.List(ctx, filter)
	if err != nil {
		return nil, storeError(err)
	}
	return members, nil
}

// CreateStaff adds an account. A nil actor is the operator CLI.
func (s *StaffService) CreateStaff(ctx context.Context, actor *domain.StaffMember, input StaffCreateInput) (*domain.StaffMember, error) {
	if actor != nil {
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
	}
	email := normalizeEmail(input.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"field": "email"})
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("name required", map[string]any{"field": "name"})
	}
	role := input.Role
	if role == "" {
		role = domain.StaffRoleStaff
	}
	if !role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"field": "role"})
	}
	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "password"})
		}
		return nil, apperrors.NewInternalError(err)
	}

	member := &domain.StaffMember{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         role,
		Active:       true,
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.store.Repos().Staff.Create(ctx, member); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewConflict("staff email already exists", map[string]any{"email": email})
		}
		return nil, storeError(err)
	}
	s.logger.Info("staff created", zap.String("email", email), zap.String("role", string(role)))
	return member, nil
}

// StaffUpdateInput lists the fields an administrator may change. Nil fields
// are left alone; an empty Password keeps the current one.
type StaffUpdateInput struct {
	Name     *string
	Role     *domain.StaffRole
	Active   *bool
	Password string
}

// Deactivate disables a staff member and unassigns their open tickets in the
// same transaction. Protected accounts and the caller's own account cannot be
// deactivated. Deactivating an inactive member is a no-op. A nil actor is the
// operator CLI.
func (s *StaffService) Deactivate(ctx context.Context, actor *domain.StaffMember, email string) error {
	inactive := false
	_, err := s.UpdateStaff(ctx, actor, email, StaffUpdateInput{Active: &inactive})
	return err
}

// Reactivate puts a deactivated member back into the rotation.
func (s *StaffService) Reactivate(ctx context.Context, actor *domain.StaffMember, email string) (*domain.StaffMember, error) {
	active := true
	return s.UpdateStaff(ctx, actor, email, StaffUpdateInput{Active: &active})
}

// UpdateStaff edits name, role, active flag and password. Deactivation
// releases the member's open tickets exactly as Deactivate does. Protected
// accounts and the caller's own account keep their role and stay active.
func (s *StaffService) UpdateStaff(ctx context.Context, actor *domain.StaffMember, email string, input StaffUpdateInput) (*domain.StaffMember, error) {
	if actor != nil {
		if err := requireAdmin(actor); err != nil {
			return nil, err
		}
	}
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperrors.NewValidationError("staff email required", nil)
	}
	deactivating := input.Active != nil && !*input.Active
	_, protected := s.protected[email]
	self := actor != nil && normalizeEmail(actor.Email) == email
	switch {
	case deactivating && protected:
		return nil, apperrors.NewForbidden("protected account cannot be deactivated")
	case deactivating && self:
		return nil, apperrors.NewForbidden("cannot deactivate your own account")
	case input.Role != nil && protected:
		return nil, apperrors.NewForbidden("protected account role cannot change")
	case input.Role != nil && self:
		return nil, apperrors.NewForbidden("cannot change your own role")
	}

	var name string
	if input.Name != nil {
		name = strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewValidationError("name required", map[string]any{"field": "name"})
		}
	}
	if input.Role != nil && !input.Role.Valid() {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{"field": "role"})
	}
	var hash string
	if input.Password != "" {
		var err error
		hash, err = auth.HashPassword(input.Password, s.bcryptCost)
		if err != nil {
			if errors.Is(err, auth.ErrWeakPassword) {
				return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "password"})
			}
			return nil, apperrors.NewInternalError(err)
		}
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	var member *domain.StaffMember
	var released []domain.Ticket
	var deactivated bool
	err := s.store.WithinAssignment(storeCtx, func(repos repository.Repositories) error {
		var err error
		member, err = repos.Staff.GetByEmail(storeCtx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return apperrors.NewNotFound("staff", map[string]any{"email": email})
			}
			return err
		}
		if input.Name != nil {
			member.Name = name
		}
		if input.Role != nil {
			member.Role = *input.Role
		}
		if hash != "" {
			member.PasswordHash = hash
		}
		deactivated = deactivating && member.Active
		if input.Active != nil {
			member.Active = *input.Active
		}
		if err := repos.Staff.Update(storeCtx, member); err != nil {
			return fmt.Errorf("update staff: %w", err)
		}
		if !deactivated {
			return nil
		}
		released, err = s.tickets.OnStaffDeactivated(storeCtx, repos, actor, member.Email)
		return err
	})
	if err != nil {
		return nil, storeError(err)
	}

	if deactivated {
		s.logger.Info("staff deactivated", zap.String("email", email), zap.Int("unassigned_tickets", len(released)))
	} else {
		s.logger.Info("staff updated", zap.String("email", email), zap.Bool("active", member.Active))
	}
	for i := range released {
		ticket := &released[i]
		s.events.publish(ctx, events.EventTicketUnassigned, ticket.ID, actor, events.TicketUnassignedPayload{
			PreviousAssignee: email,
			Reason:           domain.ReassignmentAnnotation,
			Ticket:           summaryOf(ticket),
		})
	}
	return member, nil
}
