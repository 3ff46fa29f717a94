// Package middleware provides HTTP middleware for the Taskline API.
package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/models"
)

// UserStore is the interface for loading authenticated users from the database.
type UserStore interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ContextKey is the type for context keys used by this package.
type ContextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey ContextKey = "user"

// AuthMiddleware returns a Gin middleware that requires a valid access token
// and loads the current user into the request context. WebSocket clients may
// pass the token as a "token" query parameter since browsers cannot set
// headers on WebSocket handshakes.
func AuthMiddleware(tokens *auth.TokenManager, store UserStore, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		raw := auth.ExtractBearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		userID, err := tokens.VerifyAccess(raw)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("rejected access token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		user, err := store.GetUserByID(c.Request.Context(), userID)
		if err != nil {
			log.Warn().
				Str("user_id", userID.String()).
				Msg("token subject not found in database")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(string(UserContextKey), user)
		c.Next()
	}
}

// GetUser retrieves the authenticated user from the Gin context.
// Returns nil if no user is authenticated.
func GetUser(c *gin.Context) *models.User {
	val, exists := c.Get(string(UserContextKey))
	if !exists {
		return nil
	}
	user, ok := val.(*models.User)
	if !ok {
		return nil
	}
	return user
}

// RequireUser returns the authenticated user or aborts with 401.
func RequireUser(c *gin.Context) *models.User {
	user := GetUser(c)
	if user == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return nil
	}
	return user
}
