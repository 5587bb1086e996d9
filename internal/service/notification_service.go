package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// Notifier delivers a notification to one staff member. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, staffEmail string, ticket events.TicketSummary) error
}

// LogNotifier writes notifications to the log instead of sending them.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier builds a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(_ context.Context, staffEmail string, ticket events.TicketSummary) error {
	n.logger.Info("notify staff",
		zap.String("recipient", staffEmail),
		zap.String("ticket_id", ticket.ID),
		zap.String("subject", ticket.Subject),
		zap.String("priority", string(ticket.Priority)),
		zap.String("status", string(ticket.Status)))
	return nil
}

// NotificationService turns domain events into outbox entries.
type NotificationService struct {
	dispatcher events.Dispatcher
	outbox     events.Outbox
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, outbox events.Outbox, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		outbox:     outbox,
		metrics:    metrics,
		logger:     logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
	n.dispatcher.Subscribe(events.EventTicketClosed, n.handleTicketClosed)
	n.dispatcher.Subscribe(events.EventTicketUnassigned, n.handleTicketUnassigned)
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketAssignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return n.enqueue(ctx, event, payload.Assignee, payload.Ticket)
}

func (n *NotificationService) handleTicketClosed(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketClosedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	// the resolver already knows; tell the assignee when someone else closed it
	if payload.Assignee == nil || *payload.Assignee == payload.ResolvedBy {
		return nil
	}
	return n.enqueue(ctx, event, *payload.Assignee, payload.Ticket)
}

func (n *NotificationService) handleTicketUnassigned(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketUnassignedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.logger.Info("ticket needs reassignment",
		zap.String("ticket_id", event.TicketID),
		zap.String("previous_assignee", payload.PreviousAssignee))
	return nil
}

func (n *NotificationService) enqueue(ctx context.Context, event events.Event, recipient string, ticket events.TicketSummary) error {
	if n.outbox == nil || recipient == "" {
		return nil
	}
	err := n.outbox.Enqueue(ctx, events.Notification{
		ID:        uuid.NewString(),
		Kind:      event.Type,
		Recipient: recipient,
		Ticket:    ticket,
		CreatedAt: event.Timestamp,
	})
	n.metrics.RecordNotification("enqueue", err)
	if err != nil {
		n.logger.Warn("notification dropped",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.String("recipient", recipient),
			zap.Error(err))
	}
	return err
}
