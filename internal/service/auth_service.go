package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// AuthService coordinates staff login.
type AuthService struct {
	store    repository.Store
	tokenMgr *auth.TokenManager
	logger   *zap.Logger
	now      func() time.Time
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	Store        repository.Store
	TokenManager *auth.TokenManager
	Logger       *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		store:    deps.Store,
		tokenMgr: deps.TokenManager,
		logger:   logger,
		now:      time.Now,
	}
}

// LoginStaff authenticates an active staff member and returns a role-bearing token.
// Unknown, inactive and wrong-password attempts are indistinguishable to the caller.
func (s *AuthService) LoginStaff(ctx context.Context, email, password string) (*domain.StaffMember, string, time.Time, error) {
	invalid := apperrors.NewUnauthorized("invalid credentials")

	staff, err := s.store.Repos().Staff.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, invalid
		}
		return nil, "", time.Time{}, storeError(err)
	}
	if !staff.Active {
		return nil, "", time.Time{}, invalid
	}
	if err := auth.ComparePassword(staff.PasswordHash, password); err != nil {
		return nil, "", time.Time{}, invalid
	}

	now := s.now().UTC()
	if err := s.store.Repos().Staff.TouchLastLogin(ctx, staff.ID, now); err != nil {
		s.logger.Warn("record last login failed", zap.String("email", staff.Email), zap.Error(err))
	} else {
		staff.LastLoginAt = &now
	}

	token, exp, err := s.tokenMgr.GenerateToken(staff)
	if err != nil {
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	return staff, token, exp, nil
}
