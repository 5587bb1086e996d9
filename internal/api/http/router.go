package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/helpdesk-service/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Staff          *handlers.StaffHandler
	Ingest         *handlers.IngestHandler
	Analytics      *handlers.AnalyticsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	authGroup := app.Group("/auth")
	authGroup.Post("/staff/login", cfg.Auth.Login)

	api := app.Group("/api", cfg.AuthMiddleware.Handle)
	staffOnly := auth.RequireStaffRole()
	adminOnly := auth.RequireAdmin()

	tickets := api.Group("/tickets")
	tickets.Post("/intake", adminOnly, cfg.Tickets.Intake)
	tickets.Get("/", staffOnly, cfg.Tickets.List)
	tickets.Get("/:id", staffOnly, cfg.Tickets.Get)
	tickets.Post("/:id/assign", adminOnly, cfg.Tickets.Assign)
	tickets.Post("/:id/close", staffOnly, cfg.Tickets.Close)
	tickets.Post("/:id/annotations", adminOnly, cfg.Tickets.Annotate)

	staff := api.Group("/staff")
	staff.Get("/", adminOnly, cfg.Staff.ListStaff)
	staff.Post("/", adminOnly, cfg.Staff.CreateStaff)
	staff.Get("/assignable", staffOnly, cfg.Staff.ListAssignable)
	staff.Get("/active", adminOnly, cfg.Staff.ListActive)
	staff.Patch("/:email", adminOnly, cfg.Staff.UpdateStaff)
	staff.Post("/:email/deactivate", adminOnly, cfg.Staff.Deactivate)

	api.Post("/ingest/fetch", adminOnly, cfg.Ingest.Fetch)
	api.Get("/analytics/summary", adminOnly, cfg.Analytics.Summary)
	api.Get("/analytics/me", staffOnly, cfg.Analytics.Personal)
}
