package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Urgency is the level derived from message content.
type Urgency string

const (
	UrgencyNormal Urgency = "normal"
	UrgencyHigh   Urgency = "high"
	UrgencyUrgent Urgency = "urgent"
)

// Valid reports whether the urgency level is known.
func (u Urgency) Valid() bool {
	return u == UrgencyNormal || u == UrgencyHigh || u == UrgencyUrgent
}

// Priority maps an urgency level onto the ticket priority scale.
func (u Urgency) Priority() TicketPriority {
	switch u {
	case UrgencyUrgent:
		return TicketPriorityUrgent
	case UrgencyHigh:
		return TicketPriorityHigh
	default:
		return TicketPriorityMedium
	}
}

// ReassignmentAnnotation is appended to open tickets whose assignee was deactivated.
const ReassignmentAnnotation = "User deactivated - needs reassignment"

// Ticket is the aggregate for support requests created from inbound email.
type Ticket struct {
	ID              string
	ExternalID      string
	Subject         string
	SenderEmail     string
	SenderName      string
	Body            string
	AssignedTo      *string
	Status          TicketStatus
	Priority        TicketPriority
	SentimentScore  float64
	SentimentLabel  string
	Urgency         Urgency
	CreatedAt       time.Time
	AssignedAt      *time.Time
	ResolvedAt      *time.Time
	ResolvedBy      *string
	ResolutionNotes string
	Annotations     []string
	Insights        []string
}

// IsOpen reports whether the ticket can still be worked.
func (t *Ticket) IsOpen() bool {
	return t != nil && t.Status == TicketStatusOpen
}

// Assignee returns the assigned staff email or "".
func (t *Ticket) Assignee() string {
	if t == nil || t.AssignedTo == nil {
		return ""
	}
	return *t.AssignedTo
}
