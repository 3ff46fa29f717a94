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
)

// UserDirectoryStore defines the interface for user persistence operations.
type UserDirectoryStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUsersByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.User, error)
	GetAllUsers(ctx context.Context) ([]*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id uuid.UUID) error
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// UsersHandler handles the user directory HTTP endpoints.
type UsersHandler struct {
	store  UserDirectoryStore
	logger zerolog.Logger
}

// NewUsersHandler creates a new UsersHandler.
func NewUsersHandler(store UserDirectoryStore, logger zerolog.Logger) *UsersHandler {
	return &UsersHandler{
		store:  store,
		logger: logger.With().Str("component", "users_handler").Logger(),
	}
}

// RegisterRoutes registers user routes on the given router group.
func (h *UsersHandler) RegisterRoutes(r *gin.RouterGroup) {
	users := r.Group("/users")
	{
		users.GET("", h.List)
		users.POST("", h.Create)
		users.GET("/organization", h.ListOrganizationUsers)
		users.GET("/:id", h.Get)
		users.PUT("/:id", h.Update)
		users.DELETE("/:id", h.Delete)
	}
}

// List returns users visible to the caller: the whole directory for the
// system owner, the caller's organization for everyone else.
// GET /api/v1/users
func (h *UsersHandler) List(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	if user.IsSystemOwner {
		users, err := h.store.GetAllUsers(c.Request.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to list users")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
		return
	}

	if user.OrgID == nil {
		c.JSON(http.StatusOK, gin.H{"users": []*models.User{}})
		return
	}

	users, err := h.store.GetUsersByOrgID(c.Request.Context(), *user.OrgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", user.OrgID.String()).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// ListOrganizationUsers returns the members of the caller's organization.
// Used by assignee pickers.
// GET /api/v1/users/organization
func (h *UsersHandler) ListOrganizationUsers(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	if user.OrgID == nil {
		c.JSON(http.StatusOK, gin.H{"users": []*models.User{}})
		return
	}

	users, err := h.store.GetUsersByOrgID(c.Request.Context(), *user.OrgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", user.OrgID.String()).Msg("failed to list users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// Get returns a single user.
// GET /api/v1/users/:id
func (h *UsersHandler) Get(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	target, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	ref := userRef(target)
	if err := auth.Evaluate(auth.ResourceUser, auth.ActionRead, user, ref); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, target)
}

// Create adds a user to an organization. Org admins create users in their
// own tenant; the system owner may target any tenant.
// POST /api/v1/users
func (h *UsersHandler) Create(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	// The target tenant comes from the actor, not the payload, unless the
	// actor is the system owner.
	var orgID *uuid.UUID
	switch {
	case user.IsSystemOwner && req.OrgID != "":
		id, err := uuid.Parse(req.OrgID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid organization"})
			return
		}
		if _, err := h.store.GetOrganizationByID(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "organization not found"})
			return
		}
		orgID = &id
	case user.OrgID != nil:
		orgID = user.OrgID
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization is required"})
		return
	}

	if err := auth.Evaluate(auth.ResourceUser, auth.ActionCreate, user, auth.ResourceRef{OrgID: *orgID}); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error().Err(err).Msg("failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	target := models.NewUser(strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), hash, orgID)
	target.IsAdmin = req.IsAdmin

	if err := h.store.CreateUser(c.Request.Context(), target); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
			return
		}
		h.logger.Error().Err(err).Str("username", req.Username).Msg("failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	h.logger.Info().
		Str("user_id", target.ID.String()).
		Str("username", target.Username).
		Str("created_by", user.ID.String()).
		Msg("user created")

	c.JSON(http.StatusCreated, target)
}

// Update modifies a user's email, password, or admin flag. Users update
// themselves; the system owner may update anyone in reach of the tenant rule.
// PUT /api/v1/users/:id
func (h *UsersHandler) Update(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	var req models.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	target, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	ref := userRef(target)
	if err := auth.Evaluate(auth.ResourceUser, auth.ActionUpdate, user, ref); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if req.Email != nil {
		target.Email = strings.TrimSpace(*req.Email)
	}
	if req.Password != nil {
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrPasswordTooShort) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			h.logger.Error().Err(err).Msg("failed to hash password")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
			return
		}
		target.PasswordHash = hash
	}
	if req.IsAdmin != nil {
		// Only admins of the tenant may grant or revoke the admin flag.
		if err := auth.Evaluate(auth.ResourceUser, auth.ActionCreate, user, ref); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		target.IsAdmin = *req.IsAdmin
	}

	if err := h.store.UpdateUser(c.Request.Context(), target); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already taken"})
			return
		}
		h.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to update user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	h.logger.Info().Str("user_id", id.String()).Msg("user updated")
	c.JSON(http.StatusOK, target)
}

// Delete removes a user. Org admins delete within their tenant.
// DELETE /api/v1/users/:id
func (h *UsersHandler) Delete(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user ID"})
		return
	}

	if id == user.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot delete your own account"})
		return
	}

	target, err := h.store.GetUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	ref := userRef(target)
	if err := auth.Evaluate(auth.ResourceUser, auth.ActionDelete, user, ref); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.store.DeleteUser(c.Request.Context(), id); err != nil {
		h.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to delete user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete user"})
		return
	}

	h.logger.Info().
		Str("user_id", id.String()).
		Str("deleted_by", user.ID.String()).
		Msg("user deleted")
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

// userRef builds the policy resource facts for a target user. A target
// without an organization (the system owner) maps to the nil org, which no
// tenant-scoped actor matches.
func userRef(target *models.User) auth.ResourceRef {
	ref := auth.ResourceRef{OwnerID: target.ID}
	if target.OrgID != nil {
		ref.OrgID = *target.OrgID
	}
	return ref
}
