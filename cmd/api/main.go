package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/helpdesk-service/internal/api/http"
	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/bootstrap"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/scheduler"
	"github.com/spec-kit/helpdesk-service/internal/service"
	"github.com/spec-kit/helpdesk-service/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("service stopped with error", zap.Error(err))
	}
	logger.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := observability.NewMetrics()
	rt, err := bootstrap.New(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched := scheduler.NewService(logger)
	if err := sched.RegisterDefaultJobs(cfg.Scheduler, rt.Analytics, rt.Tickets); err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	notifier := worker.NewNotificationWorker(rt.Outbox, service.NewLogNotifier(logger), metrics, logger, cfg.Notification.DeliverTimeout)

	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	var redisPinger handlers.Pinger
	if rt.Redis != nil {
		redisPinger = rt.Redis
	}
	var poller handlers.MailboxPoller
	if rt.Poller != nil {
		poller = rt.Poller
	}
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, rt.Store, redisPinger),
		Auth:           handlers.NewAuthHandler(rt.Auth),
		Tickets:        handlers.NewTicketsHandler(rt.Tickets, rt.Assignment, rt.Analyzer),
		Staff:          handlers.NewStaffHandler(rt.Staff),
		Ingest:         handlers.NewIngestHandler(poller),
		Analytics:      handlers.NewAnalyticsHandler(rt.Analytics),
		AuthMiddleware: auth.NewAuthMiddleware(rt.Tokens, rt.Store.Repos().Staff),
		Metrics:        metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return notifier.Run(gctx) })
	g.Go(func() error { return sched.Start(gctx) })
	if rt.Poller != nil {
		g.Go(func() error { return rt.Poller.Run(gctx) })
	}
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			return fmt.Errorf("fiber listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}
