package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/api/middleware"
	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/db"
	"github.com/taskline/taskline/internal/models"
	"github.com/taskline/taskline/pkg/slug"
)

// OrganizationStore defines the interface for organization persistence operations.
type OrganizationStore interface {
	CreateOrganization(ctx context.Context, org *models.Organization) error
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetAllOrganizations(ctx context.Context) ([]*models.Organization, error)
	UpdateOrganization(ctx context.Context, org *models.Organization) error
	DeleteOrganization(ctx context.Context, id uuid.UUID) error
	GetProjectsByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.Project, error)
}

// OrganizationsHandler handles organization-related HTTP endpoints.
type OrganizationsHandler struct {
	store  OrganizationStore
	logger zerolog.Logger
}

// NewOrganizationsHandler creates a new OrganizationsHandler.
func NewOrganizationsHandler(store OrganizationStore, logger zerolog.Logger) *OrganizationsHandler {
	return &OrganizationsHandler{
		store:  store,
		logger: logger.With().Str("component", "organizations_handler").Logger(),
	}
}

// RegisterRoutes registers organization routes on the given router group.
func (h *OrganizationsHandler) RegisterRoutes(r *gin.RouterGroup) {
	orgs := r.Group("/organizations")
	{
		orgs.GET("", h.List)
		orgs.POST("", h.Create)
		orgs.GET("/:id", h.Get)
		orgs.PUT("/:id", h.Update)
		orgs.DELETE("/:id", h.Delete)
		orgs.GET("/:id/projects", h.ListProjects)
	}
}

// RegisterPublicRoutes registers the unauthenticated organization directory,
// used by signup forms to offer a tenant choice.
func (h *OrganizationsHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/organizations/public", h.ListPublic)
}

// publicOrg is the reduced organization view exposed without authentication.
type publicOrg struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

// ListPublic returns the id, name, and slug of every organization.
// GET /api/v1/organizations/public
func (h *OrganizationsHandler) ListPublic(c *gin.Context) {
	orgs, err := h.store.GetAllOrganizations(c.Request.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to list organizations")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list organizations"})
		return
	}

	out := make([]publicOrg, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, publicOrg{ID: org.ID, Name: org.Name, Slug: org.Slug})
	}
	c.JSON(http.StatusOK, gin.H{"organizations": out})
}

// List returns the organizations visible to the authenticated user: all of
// them for the system owner, only their own for everyone else.
// GET /api/v1/organizations
func (h *OrganizationsHandler) List(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	if user.IsSystemOwner {
		orgs, err := h.store.GetAllOrganizations(c.Request.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to list organizations")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list organizations"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"organizations": orgs})
		return
	}

	if user.OrgID == nil {
		c.JSON(http.StatusOK, gin.H{"organizations": []*models.Organization{}})
		return
	}

	org, err := h.store.GetOrganizationByID(c.Request.Context(), *user.OrgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", user.OrgID.String()).Msg("failed to get organization")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list organizations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizations": []*models.Organization{org}})
}

// Get returns a single organization.
// GET /api/v1/organizations/:id
func (h *OrganizationsHandler) Get(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization ID"})
		return
	}

	org, err := h.store.GetOrganizationByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	if err := auth.Evaluate(auth.ResourceOrganization, auth.ActionRead, user, auth.ResourceRef{OrgID: org.ID}); err != nil {
		// Cross-tenant reads 404 rather than 403 to avoid leaking existence.
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	c.JSON(http.StatusOK, org)
}

// Create creates a new organization. System owner only.
// POST /api/v1/organizations
func (h *OrganizationsHandler) Create(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	if err := auth.Evaluate(auth.ResourceOrganization, auth.ActionCreate, user, auth.ResourceRef{}); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req models.CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	s := strings.TrimSpace(req.Slug)
	if s == "" {
		s = slug.Make(name)
	}

	org := models.NewOrganization(name, s)
	if err := h.store.CreateOrganization(c.Request.Context(), org); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "organization slug already exists"})
			return
		}
		h.logger.Error().Err(err).Str("name", name).Msg("failed to create organization")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create organization"})
		return
	}

	h.logger.Info().Str("org_id", org.ID.String()).Str("slug", org.Slug).Msg("organization created")
	c.JSON(http.StatusCreated, org)
}

// Update renames an organization. System owner only.
// PUT /api/v1/organizations/:id
func (h *OrganizationsHandler) Update(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization ID"})
		return
	}

	var req models.UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	org, err := h.store.GetOrganizationByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	if err := auth.Evaluate(auth.ResourceOrganization, auth.ActionUpdate, user, auth.ResourceRef{OrgID: org.ID}); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	org.Name = strings.TrimSpace(req.Name)
	if org.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}

	if err := h.store.UpdateOrganization(c.Request.Context(), org); err != nil {
		h.logger.Error().Err(err).Str("org_id", id.String()).Msg("failed to update organization")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update organization"})
		return
	}

	h.logger.Info().Str("org_id", id.String()).Msg("organization updated")
	c.JSON(http.StatusOK, org)
}

// Delete removes an organization and everything in it. System owner only.
// DELETE /api/v1/organizations/:id
func (h *OrganizationsHandler) Delete(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization ID"})
		return
	}

	org, err := h.store.GetOrganizationByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	if err := auth.Evaluate(auth.ResourceOrganization, auth.ActionDelete, user, auth.ResourceRef{OrgID: org.ID}); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.store.DeleteOrganization(c.Request.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("org_id", id.String()).Msg("failed to delete organization")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete organization"})
		return
	}

	h.logger.Info().Str("org_id", id.String()).Str("slug", org.Slug).Msg("organization deleted")
	c.JSON(http.StatusOK, gin.H{"message": "organization deleted"})
}

// ListProjects returns all projects in an organization.
// GET /api/v1/organizations/:id/projects
func (h *OrganizationsHandler) ListProjects(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization ID"})
		return
	}

	org, err := h.store.GetOrganizationByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	if err := auth.Evaluate(auth.ResourceOrganization, auth.ActionRead, user, auth.ResourceRef{OrgID: org.ID}); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "organization not found"})
		return
	}

	projects, err := h.store.GetProjectsByOrgID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", id.String()).Msg("failed to list projects")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}
