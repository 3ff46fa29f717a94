package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/db"
	"github.com/taskline/taskline/internal/models"
)

type mockUserStore struct {
	users map[uuid.UUID]*models.User
}

func (m *mockUserStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, db.ErrNotFound
}

func setupAuthMiddlewareTest(t *testing.T) (*gin.Engine, *auth.TokenManager, *models.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := auth.NewTokenManager(auth.DefaultTokenConfig([]byte("0123456789abcdef0123456789abcdef")))
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}

	user := &models.User{ID: uuid.New(), Username: "alice"}
	store := &mockUserStore{users: map[uuid.UUID]*models.User{user.ID: user}}

	r := gin.New()
	r.Use(AuthMiddleware(tokens, store, zerolog.Nop()))
	r.GET("/whoami", func(c *gin.Context) {
		u := RequireUser(c)
		if u == nil {
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": u.Username})
	})
	return r, tokens, user
}

func TestAuthMiddleware(t *testing.T) {
	r, tokens, user := setupAuthMiddlewareTest(t)

	pair, err := tokens.IssuePair(user.ID)
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	t.Run("bearer header", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+pair.Access)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("token query param", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/whoami?token="+pair.Access, nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/whoami", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("refresh token rejected on API routes", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+pair.Refresh)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("token for deleted user rejected", func(t *testing.T) {
		ghost, err := tokens.IssuePair(uuid.New())
		if err != nil {
			t.Fatalf("issue pair: %v", err)
		}
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+ghost.Access)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("expected status 401, got %d: %s", w.Code, w.Body.String())
		}
	})
}
