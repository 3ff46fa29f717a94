// Package handlers implements the HTTP endpoints of the Taskline API.
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

// AuthStore defines the persistence operations the auth endpoints need.
type AuthStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// AuthHandler handles signup, login, and token refresh.
type AuthHandler struct {
	store  AuthStore
	tokens *auth.TokenManager
	logger zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(store AuthStore, tokens *auth.TokenManager, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		store:  store,
		tokens: tokens,
		logger: logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterRoutes registers the public auth routes on the given router group.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	authGroup := r.Group("/auth")
	{
		authGroup.POST("/signup", h.Signup)
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}
}

// RegisterProtectedRoutes registers auth routes that require a valid token.
func (h *AuthHandler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/auth/me", h.Me)
}

// TokenResponse carries an issued token pair.
type TokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// SignupResponse is the response body for a successful signup.
type SignupResponse struct {
	User   *models.User  `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

// Signup registers a new account. Users who name no organization land in
// the default organization; the very first account becomes the system owner.
// POST /api/v1/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req models.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
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

	var orgID *uuid.UUID
	if req.OrgID != "" {
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
	}

	user := models.NewUser(strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), hash, orgID)
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already taken"})
			return
		}
		h.logger.Error().Err(err).Str("username", req.Username).Msg("failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue tokens")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create user"})
		return
	}

	h.logger.Info().
		Str("user_id", user.ID.String()).
		Str("username", user.Username).
		Bool("system_owner", user.IsSystemOwner).
		Msg("user signed up")

	c.JSON(http.StatusCreated, SignupResponse{
		User:   user,
		Tokens: TokenResponse{Access: pair.Access, Refresh: pair.Refresh},
	})
}

// Login exchanges username and password for a token pair.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	user, err := h.store.GetUserByUsername(c.Request.Context(), req.Username)
	if err != nil {
		// Same response for unknown user and wrong password.
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		h.logger.Debug().Str("username", req.Username).Msg("failed login attempt")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	pair, err := h.tokens.IssuePair(user.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue tokens")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log in"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Access: pair.Access, Refresh: pair.Refresh})
}

// RefreshRequest is the request body for refreshing an access token.
type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

// Refresh exchanges a valid refresh token for a new token pair.
// POST /api/v1/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	userID, err := h.tokens.VerifyRefresh(req.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}

	// The account must still exist.
	if _, err := h.store.GetUserByID(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}

	pair, err := h.tokens.IssuePair(userID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to issue tokens")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{Access: pair.Access, Refresh: pair.Refresh})
}

// Me returns the authenticated user.
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}
	c.JSON(http.StatusOK, user)
}
