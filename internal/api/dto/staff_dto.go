package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// StaffLoginRequest payload.
type StaffLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StaffCreateRequest payload for POST /api/staff.
type StaffCreateRequest struct {
	Email    string           `json:"email" validate:"required,email,max=320"`
	Name     string           `json:"name" validate:"required,max=200"`
	Password string           `json:"password" validate:"required,min=8,max=72"`
	Role     domain.StaffRole `json:"role" validate:"omitempty,oneof=staff admin"`
}

// StaffUpdateRequest payload for PATCH /api/staff/:email. Omitted fields stay as they are.
type StaffUpdateRequest struct {
	Name     *string           `json:"name" validate:"omitempty,min=1,max=200"`
	Role     *domain.StaffRole `json:"role" validate:"omitempty,oneof=staff admin"`
	Active   *bool             `json:"active"`
	Password string            `json:"password" validate:"omitempty,min=8,max=72"`
}

// StaffResponse view of a staff member. The password hash never leaves the service.
type StaffResponse struct {
	ID          string           `json:"id"`
	Email       string           `json:"email"`
	Name        string           `json:"name"`
	Role        domain.StaffRole `json:"role"`
	Active      bool             `json:"active"`
	LastLoginAt *time.Time       `json:"last_login_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// NewStaffResponse maps a domain staff member.
func NewStaffResponse(staff *domain.StaffMember) StaffResponse {
	return StaffResponse{
		ID:          staff.ID,
		Email:       staff.Email,
		Name:        staff.Name,
		Role:        staff.Role,
		Active:      staff.Active,
		LastLoginAt: staff.LastLoginAt,
		CreatedAt:   staff.CreatedAt,
	}
}
