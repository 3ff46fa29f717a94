// Package api provides the HTTP API for the Taskline server.
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/api/handlers"
	"github.com/taskline/taskline/internal/api/middleware"
	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/config"
	"github.com/taskline/taskline/internal/db"
	"github.com/taskline/taskline/internal/metrics"
	"github.com/taskline/taskline/internal/realtime"
)

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies. The hub may
// be nil when realtime delivery is disabled; the REST API still works.
func NewRouter(
	cfg config.ServerConfig,
	database *db.DB,
	tokens *auth.TokenManager,
	hub *realtime.Hub,
	logger zerolog.Logger,
) (*Router, error) {
	if cfg.Environment == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))
	if cfg.MetricsEnabled {
		r.Engine.Use(metrics.GinMiddleware())
	}

	if cfg.RateLimit != "" {
		rateLimiter, err := middleware.NewRateLimiter(cfg.RateLimit)
		if err != nil {
			return nil, err
		}
		r.Engine.Use(rateLimiter)
	}

	// Health check endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(database, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus scrape endpoint (no auth required)
	if cfg.MetricsEnabled {
		r.Engine.GET("/metrics", metrics.Handler())
	}

	authHandler := handlers.NewAuthHandler(database, tokens, logger)
	orgsHandler := handlers.NewOrganizationsHandler(database, logger)

	var events handlers.EventPublisher
	if hub != nil {
		events = hub
	}

	// Public API routes
	apiV1 := r.Engine.Group("/api/v1")
	authHandler.RegisterRoutes(apiV1)
	orgsHandler.RegisterPublicRoutes(apiV1)

	// Authenticated API routes
	protected := apiV1.Group("")
	protected.Use(middleware.AuthMiddleware(tokens, database, logger))
	{
		authHandler.RegisterProtectedRoutes(protected)
		orgsHandler.RegisterRoutes(protected)
		handlers.NewUsersHandler(database, logger).RegisterRoutes(protected)
		handlers.NewProjectsHandler(database, events, logger).RegisterRoutes(protected)
		handlers.NewTasksHandler(database, events, logger).RegisterRoutes(protected)
		handlers.NewCommentsHandler(database, logger).RegisterRoutes(protected)
	}

	// WebSocket routes (auth required, token via header or query param)
	if hub != nil {
		wsHandler := handlers.NewWSHandler(database, hub, logger)
		hub.SetAuthorizer(wsHandler.AuthorizeProjectSubscribe)

		ws := r.Engine.Group("/ws")
		ws.Use(middleware.AuthMiddleware(tokens, database, logger))
		wsHandler.RegisterRoutes(ws)
	}

	return r, nil
}
