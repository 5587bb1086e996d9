// Package bootstrap wires configuration into the stores and services shared by
// the API server and the admin CLI.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/analysis"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/events"
	"github.com/spec-kit/helpdesk-service/internal/ingest"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
	"github.com/spec-kit/helpdesk-service/internal/repository"
	"github.com/spec-kit/helpdesk-service/internal/repository/memory"
	"github.com/spec-kit/helpdesk-service/internal/service"
)

// Runtime holds everything a process entry point needs.
type Runtime struct {
	Config     *config.Config
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Postgres   *persistence.Postgres
	Redis      *persistence.Redis
	Store      repository.Store
	Dispatcher events.Dispatcher
	Outbox     events.Outbox
	Tokens     *auth.TokenManager
	Analyzer   analysis.Analyzer

	Tickets       *service.TicketService
	Assignment    *service.AssignmentService
	Staff         *service.StaffService
	Auth          *service.AuthService
	Analytics     *service.AnalyticsService
	Notifications *service.NotificationService

	// Poller is nil when no mailbox is configured.
	Poller *ingest.Poller
}

// New opens the store, the optional Redis outbox and builds the services.
// Migrations run when cfg.Postgres.RunMigrations is set.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*Runtime, error) {
	rt := &Runtime{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		Dispatcher: events.NewInMemoryDispatcher(),
		Tokens:     auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL()),
		Analyzer:   analysis.NewKeywordAnalyzer(),
	}

	if err := rt.openStore(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	rt.openOutbox(ctx)
	if err := rt.buildServices(); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context) error {
	cfg := rt.Config.Postgres
	if cfg.DSN == "" {
		rt.Logger.Warn("POSTGRES_DSN not provided; using in-memory store")
		rt.Store = memory.NewStore()
		return nil
	}

	pg, err := persistence.NewPostgres(ctx, cfg, rt.Logger)
	if err != nil {
		return err
	}
	rt.Postgres = pg

	if cfg.RunMigrations {
		if _, err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.MigrationsDir, rt.Logger); err != nil {
			return err
		}
	}
	rt.Store = repository.NewPostgresStore(pg.PoolHandle())
	return nil
}

func (rt *Runtime) openOutbox(ctx context.Context) {
	r, err := persistence.NewRedis(ctx, rt.Config.Redis, rt.Logger)
	switch {
	case err == nil:
		rt.Redis = r
		rt.Outbox = events.NewRedisOutbox(r.Client, rt.Config.Notification.OutboxKey, rt.Config.Notification.QueueSize)
		return
	case errors.Is(err, persistence.ErrRedisDisabled):
		rt.Logger.Info("redis disabled; notifications stay in process")
	default:
		rt.Logger.Warn("redis unavailable; notifications stay in process", zap.Error(err))
	}
	rt.Outbox = events.NewChannelOutbox(rt.Config.Notification.QueueSize)
}

func (rt *Runtime) buildServices() error {
	cfg := rt.Config
	rt.Tickets = service.NewTicketService(service.TicketDependencies{
		Store:        rt.Store,
		Analyzer:     rt.Analyzer,
		Dispatcher:   rt.Dispatcher,
		Logger:       rt.Logger,
		StoreTimeout: cfg.Assignment.StoreTimeout,
	})
	rt.Assignment = service.NewAssignmentService(service.AssignmentDependencies{
		Store:        rt.Store,
		Analyzer:     rt.Analyzer,
		Dispatcher:   rt.Dispatcher,
		Metrics:      rt.Metrics,
		Logger:       rt.Logger,
		StoreTimeout: cfg.Assignment.StoreTimeout,
	})
	rt.Staff = service.NewStaffService(service.StaffDependencies{
		Store:             rt.Store,
		Tickets:           rt.Tickets,
		Dispatcher:        rt.Dispatcher,
		Logger:            rt.Logger,
		ProtectedAccounts: cfg.Assignment.ProtectedAccounts,
		BcryptCost:        cfg.Auth.BcryptCost,
		StoreTimeout:      cfg.Assignment.StoreTimeout,
	})
	rt.Auth = service.NewAuthService(service.AuthDependencies{
		Store:        rt.Store,
		TokenManager: rt.Tokens,
		Logger:       rt.Logger,
	})
	rt.Analytics = service.NewAnalyticsService(rt.Store, rt.Metrics, cfg.Assignment.StoreTimeout)
	rt.Notifications = service.NewNotificationService(rt.Dispatcher, rt.Outbox, rt.Metrics, rt.Logger)
	rt.Notifications.RegisterHandlers()

	if !cfg.Ingest.Enabled() {
		rt.Logger.Info("no mailbox configured; ingestion disabled")
		return nil
	}
	dialer, err := ingest.NewDialer(ingest.AccountFromConfig(cfg.Ingest))
	if err != nil {
		return fmt.Errorf("configure mailbox: %w", err)
	}
	rt.Poller = ingest.NewPoller(ingest.PollerDependencies{
		Dialer:        dialer,
		Assigner:      rt.Assignment,
		Analyzer:      rt.Analyzer,
		Metrics:       rt.Metrics,
		Logger:        rt.Logger,
		Interval:      cfg.Ingest.Interval,
		RetryInitial:  cfg.Ingest.RetryInitial,
		RetryMax:      cfg.Ingest.RetryMax,
		AssignTimeout: cfg.Assignment.StoreTimeout,
	})
	return nil
}

// Close releases connections. Safe to call on a partially built runtime.
func (rt *Runtime) Close() {
	rt.Redis.Close()
	rt.Postgres.Close()
}
