package events

import (
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketAssigned   EventType = "ticket_assigned"
	EventTicketClosed     EventType = "ticket_closed"
	EventTicketUnassigned EventType = "ticket_unassigned"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type  domain.ActorType `json:"type"`
	Email *string          `json:"email,omitempty"`
}

// Event represents a domain event emitted by services after commit.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	Assignee         string        `json:"assignee"`
	PreviousAssignee *string       `json:"previous_assignee,omitempty"`
	Manual           bool          `json:"manual"`
	Ticket           TicketSummary `json:"ticket"`
}

// TicketClosedPayload payload.
type TicketClosedPayload struct {
	Assignee   *string       `json:"assignee,omitempty"`
	ResolvedBy string        `json:"resolved_by"`
	Ticket     TicketSummary `json:"ticket"`
}

// TicketUnassignedPayload payload.
type TicketUnassignedPayload struct {
	PreviousAssignee string        `json:"previous_assignee"`
	Reason           string        `json:"reason"`
	Ticket           TicketSummary `json:"ticket"`
}
