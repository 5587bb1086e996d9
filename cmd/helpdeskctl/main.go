// Command helpdeskctl administers the helpdesk from a shell: schema
// migrations, a one-off mailbox fetch and staff management.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/bootstrap"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	"github.com/spec-kit/helpdesk-service/internal/persistence"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(productionEnv()).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var errNoDatabase = errors.New("POSTGRES_DSN is required")

func loadCLIConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	// stdout is reserved for command output
	cfg.Logger.Output = "stderr"
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func productionEnv() environment {
	return environment{
		open: func(ctx context.Context) (*bootstrap.Runtime, error) {
			cfg, logger, err := loadCLIConfig()
			if err != nil {
				return nil, err
			}
			if cfg.Postgres.DSN == "" {
				return nil, errNoDatabase
			}
			cfg.Postgres.RunMigrations = false
			return bootstrap.New(ctx, cfg, logger, nil)
		},
		migrate: func(ctx context.Context) (int, error) {
			cfg, logger, err := loadCLIConfig()
			if err != nil {
				return 0, err
			}
			if cfg.Postgres.DSN == "" {
				return 0, errNoDatabase
			}
			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return 0, err
			}
			defer pg.Close()
			return persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger)
		},
	}
}
