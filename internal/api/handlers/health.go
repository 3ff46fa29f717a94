package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// HealthStore defines the checks the health endpoint runs.
type HealthStore interface {
	Ping(ctx context.Context) error
	Health() map[string]any
}

// HealthHandler handles liveness and readiness endpoints.
type HealthHandler struct {
	store  HealthStore
	logger zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(store HealthStore, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		logger: logger.With().Str("component", "health_handler").Logger(),
	}
}

// RegisterPublicRoutes registers health routes on the engine root.
func (h *HealthHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/healthz", h.Live)
	r.GET("/readyz", h.Ready)
}

// Live reports process liveness.
// GET /healthz
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports readiness, including database connectivity.
// GET /readyz
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.logger.Error().Err(err).Msg("readiness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": h.store.Health()})
}
