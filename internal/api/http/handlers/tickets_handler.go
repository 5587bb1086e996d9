package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-service/internal/analysis"
	"github.com/spec-kit/helpdesk-service/internal/api/dto"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/service"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// TicketsHandler exposes the ticket workflows.
type TicketsHandler struct {
	tickets    *service.TicketService
	assignment *service.AssignmentService
	analyzer   analysis.Analyzer
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, assignment *service.AssignmentService, analyzer analysis.Analyzer) *TicketsHandler {
	if analyzer == nil {
		analyzer = analysis.NewKeywordAnalyzer()
	}
	return &TicketsHandler{tickets: tickets, assignment: assignment, analyzer: analyzer}
}

// Intake handles POST /api/tickets/intake. Duplicates and an empty idle pool
// are reported in the body, not as errors.
func (h *TicketsHandler) Intake(c *fiber.Ctx) error {
	var req dto.IntakeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}

	score, label := h.analyzer.ScoreSentiment(req.Body)
	urgency := req.Urgency
	if urgency == "" {
		urgency = h.analyzer.ScoreUrgency(req.Subject, req.Body)
	}
	candidate := domain.Candidate{
		ExternalID:     req.ExternalID,
		Subject:        req.Subject,
		SenderEmail:    req.SenderEmail,
		SenderName:     req.SenderName,
		Body:           req.Body,
		SentimentScore: score,
		SentimentLabel: label,
		Urgency:        urgency,
	}
	if req.ReceivedAt != nil {
		candidate.ReceivedAt = *req.ReceivedAt
	}

	outcome, err := h.assignment.Assign(c.UserContext(), candidate)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	switch outcome.Status {
	case domain.AssignmentAssigned:
		status = fiber.StatusCreated
	case domain.AssignmentNoStaffAvailable:
		status = fiber.StatusAccepted
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.NewAssignmentResponse(outcome)})
}

// List handles GET /api/tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	filter := parseTicketFilter(c)
	if parseBool(c.Query("mine"), false) {
		email := actor.Email
		filter.AssignedTo = &email
		filter.Unassigned = false
	}
	tickets, err := h.tickets.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get handles GET /api/tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	detail, err := h.tickets.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetailResponse(detail.Ticket, detail.History)})
}

// Assign handles POST /api/tickets/:id/assign.
func (h *TicketsHandler) Assign(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.ManualAssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	ticket, err := h.tickets.ManualAssign(c.UserContext(), actor, c.Params("id"), req.StaffEmail)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Close handles POST /api/tickets/:id/close. The caller is recorded as resolver.
func (h *TicketsHandler) Close(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CloseTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	ticket, err := h.tickets.Close(c.UserContext(), c.Params("id"), actor.Email, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Annotate handles POST /api/tickets/:id/annotations.
func (h *TicketsHandler) Annotate(c *fiber.Ctx) error {
	actor, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.AnnotationRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := dto.Validate(req); err != nil {
		return err
	}
	ticket, err := h.tickets.AddAnnotation(c.UserContext(), actor, c.Params("id"), req.Note)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

func parseTicketFilter(c *fiber.Ctx) service.TicketListFilter {
	filter := service.TicketListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if assignee := strings.TrimSpace(c.Query("assigned_to")); assignee != "" {
		assignee = strings.ToLower(assignee)
		filter.AssignedTo = &assignee
	}
	filter.Unassigned = parseBool(c.Query("unassigned"), false)
	if u := c.Query("urgency"); u != "" {
		urgency := domain.Urgency(u)
		filter.Urgency = &urgency
	}
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		filter.SearchTerm = &q
	}
	filter.CreatedTo = parseTime(c.Query("created_before"))
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}
