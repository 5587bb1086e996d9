package repository

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// AnalyticsRepository computes dashboard aggregates.
type AnalyticsRepository interface {
	Overview(ctx context.Context, since time.Time) (*domain.AnalyticsOverview, error)
	// Personal counts tickets currently assigned to email. Recent is left empty.
	Personal(ctx context.Context, email string) (*domain.PersonalStats, error)
}

type analyticsRepository struct {
	db querier
}

func (r *analyticsRepository) Overview(ctx context.Context, since time.Time) (*domain.AnalyticsOverview, error) {
	overview := &domain.AnalyticsOverview{UrgencyCounts: map[domain.Urgency]int64{}}

	const totals = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='open'),
               COUNT(*) FILTER (WHERE status='closed'),
               COUNT(*) FILTER (WHERE status='open' AND assigned_to IS NULL),
               COALESCE(AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600)
                   FILTER (WHERE status='closed' AND resolved_at IS NOT NULL), 0),
               COALESCE(AVG(sentiment_score), 0)
        FROM tickets`
	if err := r.db.QueryRow(ctx, totals).Scan(
		&overview.TotalTickets,
		&overview.OpenTickets,
		&overview.ClosedTickets,
		&overview.UnassignedOpen,
		&overview.AvgResolutionHours,
		&overview.AvgSentiment,
	); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `SELECT urgency, COUNT(*) FROM tickets GROUP BY urgency`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var urgency domain.Urgency
		var count int64
		if err := rows.Scan(&urgency, &count); err != nil {
			rows.Close()
			return nil, err
		}
		overview.UrgencyCounts[urgency] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, `
        SELECT date_trunc('day', created_at) AS day, COUNT(*)
        FROM tickets WHERE created_at >= $1
        GROUP BY day ORDER BY day ASC`, since)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var point domain.VolumePoint
		if err := rows.Scan(&point.Day, &point.Count); err != nil {
			rows.Close()
			return nil, err
		}
		overview.DailyVolume = append(overview.DailyVolume, point)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.Query(ctx, `
        SELECT s.email, s.name,
               COUNT(t.id),
               COUNT(t.id) FILTER (WHERE t.status='closed'),
               AVG(EXTRACT(EPOCH FROM (t.resolved_at - t.created_at)) / 3600)
                   FILTER (WHERE t.status='closed' AND t.resolved_at IS NOT NULL)
        FROM staff_members s
        LEFT JOIN tickets t ON t.assigned_to = s.email
        WHERE s.role = 'staff'
        GROUP BY s.email, s.name
        ORDER BY s.name COLLATE "C" ASC, s.email ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item domain.WorkloadItem
		if err := rows.Scan(&item.Email, &item.Name, &item.Total, &item.Closed, &item.AvgResolutionHours); err != nil {
			return nil, err
		}
		overview.Workload = append(overview.Workload, item)
	}
	return overview, rows.Err()
}

func (r *analyticsRepository) Personal(ctx context.Context, email string) (*domain.PersonalStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='open'),
               COUNT(*) FILTER (WHERE status='closed'),
               AVG(EXTRACT(EPOCH FROM (resolved_at - created_at)) / 3600)
                   FILTER (WHERE status='closed' AND resolved_at IS NOT NULL)
        FROM tickets WHERE assigned_to=$1`
	stats := &domain.PersonalStats{Email: email}
	if err := r.db.QueryRow(ctx, query, email).Scan(
		&stats.Total,
		&stats.Open,
		&stats.Closed,
		&stats.AvgResolutionHours,
	); err != nil {
		return nil, err
	}
	return stats, nil
}
