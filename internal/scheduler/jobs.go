package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/config"
)

const (
	JobMetricsRefresh    = "metrics.refresh"
	JobStaleInsights     = "tickets.staleInsights"
	defaultJobTimeout    = time.Minute
	staleInsightsTimeout = 5 * time.Minute
)

// GaugeRefresher updates ticket and staff gauges.
type GaugeRefresher interface {
	RefreshGauges(ctx context.Context) error
}

// InsightRefresher marks open tickets that crossed the age threshold.
type InsightRefresher interface {
	RefreshStaleInsights(ctx context.Context) (int, error)
}

// RegisterDefaultJobs installs the built-in maintenance jobs. A job with an
// empty schedule or no collaborator is left out.
func (s *Service) RegisterDefaultJobs(cfg config.SchedulerConfig, gauges GaugeRefresher, insights InsightRefresher) error {
	if gauges != nil && cfg.MetricsRefreshSpec != "" {
		if err := s.Register(Job{
			Name:     JobMetricsRefresh,
			Schedule: cfg.MetricsRefreshSpec,
			Timeout:  defaultJobTimeout,
			Run:      gauges.RefreshGauges,
		}); err != nil {
			return err
		}
	}
	if insights != nil && cfg.StaleInsightSpec != "" {
		if err := s.Register(Job{
			Name:     JobStaleInsights,
			Schedule: cfg.StaleInsightSpec,
			Timeout:  staleInsightsTimeout,
			Run: func(ctx context.Context) error {
				updated, err := insights.RefreshStaleInsights(ctx)
				if updated > 0 {
					s.logger.Info("stale insights added", zap.Int("tickets", updated))
				}
				return err
			},
		}); err != nil {
			return err
		}
	}
	return nil
}
