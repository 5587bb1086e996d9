package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// TicketFilter captures staff search parameters.
type TicketFilter struct {
	Statuses   []domain.TicketStatus
	AssignedTo *string
	Unassigned bool
	Urgency    *domain.Urgency
	SearchTerm *string
	CreatedTo  *time.Time
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create inserts a ticket. ErrDuplicateExternalID when the external id is taken.
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetByIDForUpdate reads a ticket and holds its row lock until the
	// surrounding transaction ends. Outside a transaction it behaves like GetByID.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error)
	// LastAssigned returns the ticket with the greatest non-null assigned_at.
	LastAssigned(ctx context.Context) (*domain.Ticket, error)
	ListOpenByAssignee(ctx context.Context, email string) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	db querier
}

const ticketColumns = `id, external_id, subject, sender_email, sender_name, body, assigned_to,
               status, priority, sentiment_score, sentiment_label, urgency, created_at,
               assigned_at, resolved_at, resolved_by, resolution_notes, annotations, insights`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (external_id, subject, sender_email, sender_name, body, assigned_to, status, priority,
            sentiment_score, sentiment_label, urgency, created_at, assigned_at, annotations, insights)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
        ON CONFLICT (external_id) DO NOTHING
        RETURNING id`
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}
	err := r.db.QueryRow(ctx, query,
		ticket.ExternalID,
		ticket.Subject,
		ticket.SenderEmail,
		ticket.SenderName,
		ticket.Body,
		ticket.AssignedTo,
		ticket.Status,
		ticket.Priority,
		ticket.SentimentScore,
		ticket.SentimentLabel,
		ticket.Urgency,
		ticket.CreatedAt,
		ticket.AssignedAt,
		nonNil(ticket.Annotations),
		nonNil(ticket.Insights),
	).Scan(&ticket.ID)
	switch {
	case err == nil:
		return nil
	case err == pgx.ErrNoRows, isUniqueViolation(err):
		return ErrDuplicateExternalID
	default:
		return err
	}
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET assigned_to=$1, assigned_at=$2, status=$3, priority=$4, resolved_at=$5,
            resolved_by=$6, resolution_notes=$7, annotations=$8, insights=$9
        WHERE id=$10`
	cmd, err := r.db.Exec(ctx, query,
		ticket.AssignedTo,
		ticket.AssignedAt,
		ticket.Status,
		ticket.Priority,
		ticket.ResolvedAt,
		ticket.ResolvedBy,
		ticket.ResolutionNotes,
		nonNil(ticket.Annotations),
		nonNil(ticket.Insights),
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id)
}

func (r *ticketRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE external_id=$1`, externalID)
}

func (r *ticketRepository) LastAssigned(ctx context.Context) (*domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets
        WHERE assigned_at IS NOT NULL
        ORDER BY assigned_at DESC, id DESC
        LIMIT 1`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, ErrNotFound
	}
	return &tickets[0], nil
}

func (r *ticketRepository) ListOpenByAssignee(ctx context.Context, email string) ([]domain.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets
        WHERE assigned_to=$1 AND status='open'
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, err
	}
	if len(tickets) == 0 {
		return nil, ErrNotFound
	}
	return &tickets[0], nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Unassigned {
		clauses = append(clauses, "assigned_to IS NULL")
	}
	if filter.Urgency != nil {
		args = append(args, *filter.Urgency)
		clauses = append(clauses, fmt.Sprintf("urgency=$%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(body) LIKE %s OR LOWER(sender_email) LIKE %s)",
			placeholder, placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ExternalID,
			&ticket.Subject,
			&ticket.SenderEmail,
			&ticket.SenderName,
			&ticket.Body,
			&ticket.AssignedTo,
			&ticket.Status,
			&ticket.Priority,
			&ticket.SentimentScore,
			&ticket.SentimentLabel,
			&ticket.Urgency,
			&ticket.CreatedAt,
			&ticket.AssignedAt,
			&ticket.ResolvedAt,
			&ticket.ResolvedBy,
			&ticket.ResolutionNotes,
			&ticket.Annotations,
			&ticket.Insights,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
