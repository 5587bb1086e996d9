package handlers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// StaffHandler exposes the staff directory.
type StaffHandler struct {
	staff *service.StaffService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(staffService *service.StaffService) *StaffHandler {
	return &StaffHandler{staff: staffService}
}

// ListStaff handles GET /api/staff.
func (h *StaffHandler) ListStaff(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	members, err := h.staff.ListStaff(c.UserContext(), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": staffResponses(members)})
}

// CreateStaff handles POST /api/staff.
func (h *StaffHandler) CreateStaff(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.StaffCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	member, err := h.staff.CreateStaff(c.UserContext(), actor, service.StaffCreateInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewStaffResponse(member)})
}

// ListAssignable handles GET /api/staff/assignable.
func (h *StaffHandler) ListAssignable(c *fiber.Ctx) error {
	emails, err := h.staff.ListAssignable(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": emails})
}

// ListActive handles GET /api/staff/active.
func (h *StaffHandler) ListActive(c *fiber.Ctx) error {
	members, err := h.staff.ListActiveForManualPick(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": staffResponses(members)})
}

// UpdateStaff handles PATCH /api/staff/:email.
func (h *StaffHandler) UpdateStaff(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	var req dto.StaffUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	member, err := h.staff.UpdateStaff(c.UserContext(), actor, email, service.StaffUpdateInput{
		Name:     req.Name,
		Role:     req.Role,
		Active:   req.Active,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewStaffResponse(member)})
}

// Deactivate handles POST /api/staff/:email/deactivate.
func (h *StaffHandler) Deactivate(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	email, err := emailParam(c)
	if err != nil {
		return err
	}
	if err := h.staff.Deactivate(c.UserContext(), actor, email); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"email": email, "active": false}})
}

func emailParam(c *fiber.Ctx) (string, error) {
	email, err := url.PathUnescape(c.Params("email"))
	if err != nil {
		return "", apperrors.NewValidationError("invalid email", nil)
	}
	return email, nil
}

func principal(c *fiber.Ctx) (*domain.StaffMember, error) {
	staff, ok := auth.StaffFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	return staff, nil
}

func staffResponses(members []domain.StaffMember) []dto.StaffResponse {
	resp := make([]dto.StaffResponse, 0, len(members))
	for i := range members {
		resp = append(resp, dto.NewStaffResponse(&members[i]))
	}
	return resp
}
