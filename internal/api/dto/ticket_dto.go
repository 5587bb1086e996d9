package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// IntakeRequest submits a candidate through the API instead of the mailbox.
type IntakeRequest struct {
	ExternalID  string         `json:"external_id" validate:"required,max=512"`
	Subject     string         `json:"subject" validate:"max=998"`
	SenderEmail string         `json:"sender_email" validate:"omitempty,email"`
	SenderName  string         `json:"sender_name" validate:"max=200"`
	Body        string         `json:"body"`
	ReceivedAt  *time.Time     `json:"received_at"`
	Urgency     domain.Urgency `json:"urgency" validate:"omitempty,oneof=normal high urgent"`
}

// ManualAssignRequest payload for POST /api/tickets/:id/assign.
type ManualAssignRequest struct {
	StaffEmail string `json:"staff_email" validate:"required,email"`
}

// CloseTicketRequest payload for POST /api/tickets/:id/close.
type CloseTicketRequest struct {
	Notes string `json:"notes" validate:"required"`
}

// AnnotationRequest payload for POST /api/tickets/:id/annotations.
type AnnotationRequest struct {
	Note string `json:"note" validate:"required,max=2000"`
}

// TicketResponse is the full ticket view.
type TicketResponse struct {
	ID              string                `json:"id"`
	ExternalID      string                `json:"external_id"`
	Subject         string                `json:"subject"`
	SenderEmail     string                `json:"sender_email"`
	SenderName      string                `json:"sender_name"`
	Body            string                `json:"body"`
	AssignedTo      *string               `json:"assigned_to"`
	Status          domain.TicketStatus   `json:"status"`
	Priority        domain.TicketPriority `json:"priority"`
	SentimentScore  float64               `json:"sentiment_score"`
	SentimentLabel  string                `json:"sentiment_label"`
	Urgency         domain.Urgency        `json:"urgency"`
	CreatedAt       time.Time             `json:"created_at"`
	AssignedAt      *time.Time            `json:"assigned_at"`
	ResolvedAt      *time.Time            `json:"resolved_at"`
	ResolvedBy      *string               `json:"resolved_by"`
	ResolutionNotes string                `json:"resolution_notes,omitempty"`
	Annotations     []string              `json:"annotations"`
	Insights        []string              `json:"insights"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID            string                  `json:"id"`
	ChangeType    domain.TicketChangeType `json:"change_type"`
	ChangedByType domain.ActorType        `json:"changed_by_type"`
	ChangedBy     *string                 `json:"changed_by"`
	OldValue      map[string]any          `json:"old_value,omitempty"`
	NewValue      map[string]any          `json:"new_value,omitempty"`
	CreatedAt     time.Time               `json:"created_at"`
}

// TicketDetailResponse is a ticket with its history.
type TicketDetailResponse struct {
	TicketResponse
	History []TicketHistoryResponse `json:"history"`
}

// AssignmentResponse reports the intake outcome.
type AssignmentResponse struct {
	Status   domain.AssignmentStatus `json:"status"`
	Assignee string                  `json:"assignee,omitempty"`
	Ticket   *TicketResponse         `json:"ticket,omitempty"`
}

// NewTicketResponse maps a domain ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:              t.ID,
		ExternalID:      t.ExternalID,
		Subject:         t.Subject,
		SenderEmail:     t.SenderEmail,
		SenderName:      t.SenderName,
		Body:            t.Body,
		AssignedTo:      t.AssignedTo,
		Status:          t.Status,
		Priority:        t.Priority,
		SentimentScore:  t.SentimentScore,
		SentimentLabel:  t.SentimentLabel,
		Urgency:         t.Urgency,
		CreatedAt:       t.CreatedAt,
		AssignedAt:      t.AssignedAt,
		ResolvedAt:      t.ResolvedAt,
		ResolvedBy:      t.ResolvedBy,
		ResolutionNotes: t.ResolutionNotes,
		Annotations:     nonNil(t.Annotations),
		Insights:        nonNil(t.Insights),
	}
}

// NewTicketDetailResponse maps a ticket and its audit trail.
func NewTicketDetailResponse(t *domain.Ticket, history []domain.TicketHistory) TicketDetailResponse {
	entries := make([]TicketHistoryResponse, 0, len(history))
	for _, h := range history {
		entries = append(entries, TicketHistoryResponse{
			ID:            h.ID,
			ChangeType:    h.ChangeType,
			ChangedByType: h.ChangedByType,
			ChangedBy:     h.ChangedByID,
			OldValue:      h.OldValue,
			NewValue:      h.NewValue,
			CreatedAt:     h.CreatedAt,
		})
	}
	return TicketDetailResponse{TicketResponse: NewTicketResponse(t), History: entries}
}

// NewAssignmentResponse maps an intake outcome.
func NewAssignmentResponse(o *domain.AssignmentOutcome) AssignmentResponse {
	resp := AssignmentResponse{Status: o.Status, Assignee: o.Assignee}
	if o.Ticket != nil {
		ticket := NewTicketResponse(o.Ticket)
		resp.Ticket = &ticket
	}
	return resp
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
