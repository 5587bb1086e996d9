package domain

import "time"

// StaffRole enumerates internal operator roles.
type StaffRole string

const (
	StaffRoleStaff StaffRole = "staff"
	StaffRoleAdmin StaffRole = "admin"
)

// Valid reports whether the role is known.
func (r StaffRole) Valid() bool {
	return r == StaffRoleStaff || r == StaffRoleAdmin
}

// StaffMember models a support agent or administrator. Email is the staff
// identifier used by assignment.
type StaffMember struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         StaffRole
	Active       bool
	LastLoginAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Assignable reports whether the member may receive tickets at all.
func (s *StaffMember) Assignable() bool {
	return s != nil && s.Active && s.Role == StaffRoleStaff
}
