package service

import (
	"context"
	"time"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// trendWindow is how far back the daily volume series reaches.
const trendWindow = 30 * 24 * time.Hour

// AnalyticsService computes dashboard figures.
type AnalyticsService struct {
	store        repository.Store
	metrics      *observability.Metrics
	storeTimeout time.Duration
	now          func() time.Time
}

// NewAnalyticsService constructs the service.
func NewAnalyticsService(store repository.Store, metrics *observability.Metrics, storeTimeout time.Duration) *AnalyticsService {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &AnalyticsService{store: store, metrics: metrics, storeTimeout: storeTimeout, now: time.Now}
}

// Summary returns totals, distributions, the 30 day trend and per-staff workload.
func (s *AnalyticsService) Summary(ctx context.Context) (*domain.AnalyticsOverview, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	since := s.now().UTC().Add(-trendWindow).Truncate(24 * time.Hour)
	overview, err := s.store.Analytics().Overview(ctx, since)
	if err != nil {
		return nil, storeError(err)
	}
	return overview, nil
}

// recentPersonalTickets is how many of a member's latest tickets Personal lists.
const recentPersonalTickets = 10

// Personal returns the caller's own assignment totals and latest tickets.
func (s *AnalyticsService) Personal(ctx context.Context, actor *domain.StaffMember) (*domain.PersonalStats, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	email := normalizeEmail(actor.Email)
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	stats, err := s.store.Analytics().Personal(ctx, email)
	if err != nil {
		return nil, storeError(err)
	}
	stats.Recent, err = s.store.Repos().Tickets.ListWithFilter(ctx, repository.TicketFilter{
		AssignedTo: &email,
		Limit:      recentPersonalTickets,
	})
	if err != nil {
		return nil, storeError(err)
	}
	return stats, nil
}

// RefreshGauges updates the ticket and staff gauges.
func (s *AnalyticsService) RefreshGauges(ctx context.Context) error {
	overview, err := s.Summary(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	assignable, err := s.store.Repos().Staff.ListAssignable(ctx)
	if err != nil {
		return storeError(err)
	}
	s.metrics.SetTicketGauges(overview.OpenTickets, overview.UnassignedOpen, int64(len(assignable)))
	return nil
}
