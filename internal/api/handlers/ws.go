package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/api/middleware"
	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/models"
	"github.com/taskline/taskline/internal/realtime"
)

// WSStore defines the lookups needed to authorize WebSocket subscriptions.
type WSStore interface {
	GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

// WSHandler upgrades authenticated requests into realtime sessions. All
// tenant checks run before the upgrade; a denied request never becomes a
// WebSocket connection.
type WSHandler struct {
	store  WSStore
	hub    *realtime.Hub
	logger zerolog.Logger
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(store WSStore, hub *realtime.Hub, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		store:  store,
		hub:    hub,
		logger: logger.With().Str("component", "ws_handler").Logger(),
	}
}

// RegisterRoutes registers WebSocket routes on the given router group. The
// group must carry the auth middleware.
func (h *WSHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/projects/:id", h.Project)
	r.GET("/orgs/:slug", h.Org)
	r.GET("/notifications", h.Notifications)
}

// AuthorizeProjectSubscribe is the hub callback for in-session subscribe
// messages. It applies the same tenant rule as the handshake endpoints.
func (h *WSHandler) AuthorizeProjectSubscribe(ctx context.Context, user *models.User, projectID uuid.UUID) bool {
	project, err := h.store.GetProjectByID(ctx, projectID)
	if err != nil {
		return false
	}
	return auth.Evaluate(auth.ResourceProject, auth.ActionRead, user, auth.ResourceRef{OrgID: project.OrgID, OwnerID: project.OwnerID}) == nil
}

// Project opens a session subscribed to one project's task events.
// GET /ws/projects/:id
func (h *WSHandler) Project(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project ID"})
		return
	}

	project, err := h.store.GetProjectByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	if err := auth.Evaluate(auth.ResourceProject, auth.ActionRead, user, auth.ResourceRef{OrgID: project.OrgID, OwnerID: project.OwnerID}); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	h.logger.Debug().
		Str("user_id", user.ID.String()).
		Str("project_id", id.String()).
		Msg("websocket project session opened")
	h.hub.HandleWebSocket(c.Writer, c.Request, user, realtime.ProjectGroup(id))
}

// Org opens a session subscribed to an organization's project and task
// events.
// GET /ws/orgs/:slug
func (h *WSHandler) Org(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	org, err := h.store.GetOrganizationBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}
	if err := auth.Evaluate(auth.ResourceOrganization, auth.ActionRead, user, auth.ResourceRef{OrgID: org.ID}); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	h.logger.Debug().
		Str("user_id", user.ID.String()).
		Str("org_slug", org.Slug).
		Msg("websocket org session opened")
	h.hub.HandleWebSocket(c.Writer, c.Request, user, realtime.OrgGroup(org.Slug))
}

// Notifications opens a session on the caller's private group, plus their
// organization's group when they have one.
// GET /ws/notifications
func (h *WSHandler) Notifications(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	groups := []string{realtime.UserGroup(user.ID)}
	if user.OrgID != nil {
		org, err := h.store.GetOrganizationByID(c.Request.Context(), *user.OrgID)
		if err == nil {
			groups = append(groups, realtime.OrgGroup(org.Slug))
		}
	}

	h.logger.Debug().Str("user_id", user.ID.String()).Msg("websocket notifications session opened")
	h.hub.HandleWebSocket(c.Writer, c.Request, user, groups...)
}
