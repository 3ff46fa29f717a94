package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/api/middleware"
	"github.com/taskline/taskline/internal/db"
	"github.com/taskline/taskline/internal/models"
)

// mockOrgStore implements OrganizationStore for testing.
type mockOrgStore struct {
	orgByID       map[uuid.UUID]*models.Organization
	projectsByOrg map[uuid.UUID][]*models.Project
	createErr     error
}

func newMockOrgStore() *mockOrgStore {
	return &mockOrgStore{
		orgByID:       make(map[uuid.UUID]*models.Organization),
		projectsByOrg: make(map[uuid.UUID][]*models.Project),
	}
}

func (m *mockOrgStore) CreateOrganization(_ context.Context, org *models.Organization) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.orgByID[org.ID] = org
	return nil
}

func (m *mockOrgStore) GetOrganizationByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	if o, ok := m.orgByID[id]; ok {
		return o, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockOrgStore) GetAllOrganizations(_ context.Context) ([]*models.Organization, error) {
	var all []*models.Organization
	for _, o := range m.orgByID {
		all = append(all, o)
	}
	return all, nil
}

func (m *mockOrgStore) UpdateOrganization(_ context.Context, org *models.Organization) error {
	m.orgByID[org.ID] = org
	return nil
}

func (m *mockOrgStore) DeleteOrganization(_ context.Context, id uuid.UUID) error {
	delete(m.orgByID, id)
	return nil
}

func (m *mockOrgStore) GetProjectsByOrgID(_ context.Context, orgID uuid.UUID) ([]*models.Project, error) {
	return m.projectsByOrg[orgID], nil
}

func setupOrgTestRouter(store OrganizationStore, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})

	handler := NewOrganizationsHandler(store, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterPublicRoutes(api)
	handler.RegisterRoutes(api)
	return r
}

func TestOrganizationPublicDirectory(t *testing.T) {
	store := newMockOrgStore()
	org := models.NewOrganization("Acme", "acme")
	store.orgByID[org.ID] = org

	// No authenticated user at all.
	r := setupOrgTestRouter(store, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/v1/organizations/public", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Organizations []map[string]any `json:"organizations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Organizations) != 1 {
		t.Fatalf("expected 1 organization, got %d", len(resp.Organizations))
	}
	if _, leaked := resp.Organizations[0]["created_at"]; leaked {
		t.Errorf("public directory leaks created_at")
	}
}

func TestOrganizationCreateRequiresSystemOwner(t *testing.T) {
	orgID := uuid.New()
	admin := &models.User{ID: uuid.New(), Username: "admin", OrgID: &orgID, IsAdmin: true}
	sysOwner := &models.User{ID: uuid.New(), Username: "root", IsSystemOwner: true, IsAdmin: true}

	body := `{"name": "Globex"}`

	t.Run("org admin denied", func(t *testing.T) {
		r := setupOrgTestRouter(newMockOrgStore(), admin)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/organizations", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("system owner allowed, slug derived", func(t *testing.T) {
		store := newMockOrgStore()
		r := setupOrgTestRouter(store, sysOwner)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/organizations", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}

		var created models.Organization
		if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if created.Slug != "globex" {
			t.Errorf("slug = %q, want globex", created.Slug)
		}
	})

	t.Run("duplicate slug conflicts", func(t *testing.T) {
		store := newMockOrgStore()
		store.createErr = db.ErrDuplicate
		r := setupOrgTestRouter(store, sysOwner)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("POST", "/api/v1/organizations", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestOrganizationVisibility(t *testing.T) {
	store := newMockOrgStore()
	orgA := models.NewOrganization("Acme", "acme")
	orgB := models.NewOrganization("Globex", "globex")
	store.orgByID[orgA.ID] = orgA
	store.orgByID[orgB.ID] = orgB

	member := &models.User{ID: uuid.New(), Username: "member", OrgID: &orgA.ID}

	t.Run("member sees only own org in list", func(t *testing.T) {
		r := setupOrgTestRouter(store, member)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/organizations", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp struct {
			Organizations []*models.Organization `json:"organizations"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if len(resp.Organizations) != 1 || resp.Organizations[0].ID != orgA.ID {
			t.Errorf("expected only own org, got %+v", resp.Organizations)
		}
	})

	t.Run("foreign org get is a 404", func(t *testing.T) {
		r := setupOrgTestRouter(store, member)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/organizations/"+orgB.ID.String(), nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("system owner sees all", func(t *testing.T) {
		sysOwner := &models.User{ID: uuid.New(), Username: "root", IsSystemOwner: true}
		r := setupOrgTestRouter(store, sysOwner)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/organizations", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}

		var resp struct {
			Organizations []*models.Organization `json:"organizations"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if len(resp.Organizations) != 2 {
			t.Errorf("expected 2 organizations, got %d", len(resp.Organizations))
		}
	})
}
