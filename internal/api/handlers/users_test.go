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

// mockUserDirStore implements UserDirectoryStore for testing.
type mockUserDirStore struct {
	userByID map[uuid.UUID]*models.User
	orgByID  map[uuid.UUID]*models.Organization
}

func newMockUserDirStore() *mockUserDirStore {
	return &mockUserDirStore{
		userByID: make(map[uuid.UUID]*models.User),
		orgByID:  make(map[uuid.UUID]*models.Organization),
	}
}

func (m *mockUserDirStore) CreateUser(_ context.Context, user *models.User) error {
	for _, u := range m.userByID {
		if u.Username == user.Username {
			return db.ErrDuplicate
		}
	}
	m.userByID[user.ID] = user
	return nil
}

func (m *mockUserDirStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := m.userByID[id]; ok {
		return u, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockUserDirStore) GetUsersByOrgID(_ context.Context, orgID uuid.UUID) ([]*models.User, error) {
	var users []*models.User
	for _, u := range m.userByID {
		if u.OrgID != nil && *u.OrgID == orgID {
			users = append(users, u)
		}
	}
	return users, nil
}

func (m *mockUserDirStore) GetAllUsers(_ context.Context) ([]*models.User, error) {
	var users []*models.User
	for _, u := range m.userByID {
		users = append(users, u)
	}
	return users, nil
}

func (m *mockUserDirStore) UpdateUser(_ context.Context, user *models.User) error {
	m.userByID[user.ID] = user
	return nil
}

func (m *mockUserDirStore) DeleteUser(_ context.Context, id uuid.UUID) error {
	delete(m.userByID, id)
	return nil
}

func (m *mockUserDirStore) GetOrganizationByID(_ context.Context, id uuid.UUID) (*models.Organization, error) {
	if o, ok := m.orgByID[id]; ok {
		return o, nil
	}
	return nil, db.ErrNotFound
}

func setupUserTestRouter(store UserDirectoryStore, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})

	handler := NewUsersHandler(store, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

// userDirFixture wires two tenants with a member and an admin in the first.
type userDirFixture struct {
	store    *mockUserDirStore
	orgA     *models.Organization
	orgB     *models.Organization
	member   *models.User
	admin    *models.User
	foreign  *models.User
	sysOwner *models.User
}

func newUserDirFixture() *userDirFixture {
	orgA := models.NewOrganization("Acme", "acme")
	orgB := models.NewOrganization("Globex", "globex")
	member := &models.User{ID: uuid.New(), Username: "member", OrgID: &orgA.ID}
	admin := &models.User{ID: uuid.New(), Username: "admin", OrgID: &orgA.ID, IsAdmin: true}
	foreign := &models.User{ID: uuid.New(), Username: "foreign", OrgID: &orgB.ID}
	sysOwner := &models.User{ID: uuid.New(), Username: "root", IsSystemOwner: true, IsAdmin: true}

	store := newMockUserDirStore()
	store.orgByID[orgA.ID] = orgA
	store.orgByID[orgB.ID] = orgB
	for _, u := range []*models.User{member, admin, foreign, sysOwner} {
		store.userByID[u.ID] = u
	}

	return &userDirFixture{
		store:    store,
		orgA:     orgA,
		orgB:     orgB,
		member:   member,
		admin:    admin,
		foreign:  foreign,
		sysOwner: sysOwner,
	}
}

func TestUserDirectoryScoping(t *testing.T) {
	listUsers := func(t *testing.T, r *gin.Engine) []*models.User {
		t.Helper()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/users", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		var resp struct {
			Users []*models.User `json:"users"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		return resp.Users
	}

	t.Run("member sees own tenant only", func(t *testing.T) {
		f := newUserDirFixture()
		users := listUsers(t, setupUserTestRouter(f.store, f.member))
		if len(users) != 2 {
			t.Fatalf("expected 2 users, got %d", len(users))
		}
		for _, u := range users {
			if u.OrgID == nil || *u.OrgID != f.orgA.ID {
				t.Errorf("user %s from another tenant leaked", u.Username)
			}
		}
	})

	t.Run("system owner sees everyone", func(t *testing.T) {
		f := newUserDirFixture()
		users := listUsers(t, setupUserTestRouter(f.store, f.sysOwner))
		if len(users) != 4 {
			t.Errorf("expected 4 users, got %d", len(users))
		}
	})

	t.Run("foreign user lookup is a 404", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.member)
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/users/"+f.foreign.ID.String(), nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestUserCreate(t *testing.T) {
	t.Run("org admin creates in own tenant, payload org ignored", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.admin)

		body := `{"username": "newbie", "email": "new@example.com", "password": "hunter2hunter2", "organization": "` + f.orgB.ID.String() + `"}`
		w := postJSON(r, "/api/v1/users", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}

		var created models.User
		if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if created.OrgID == nil || *created.OrgID != f.orgA.ID {
			t.Errorf("user landed outside the admin's tenant")
		}
	})

	t.Run("plain member may not create", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.member)

		w := postJSON(r, "/api/v1/users",
			`{"username": "newbie", "email": "new@example.com", "password": "hunter2hunter2"}`)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("system owner targets a tenant", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.sysOwner)

		body := `{"username": "newbie", "email": "new@example.com", "password": "hunter2hunter2", "organization": "` + f.orgB.ID.String() + `"}`
		w := postJSON(r, "/api/v1/users", body)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
		}

		var created models.User
		if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
			t.Fatalf("unmarshal response: %v", err)
		}
		if created.OrgID == nil || *created.OrgID != f.orgB.ID {
			t.Errorf("user not placed in the targeted tenant")
		}
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.admin)

		w := postJSON(r, "/api/v1/users",
			`{"username": "member", "email": "dup@example.com", "password": "hunter2hunter2"}`)
		if w.Code != http.StatusConflict {
			t.Fatalf("expected status 409, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestUserUpdate(t *testing.T) {
	putUser := func(r *gin.Engine, id uuid.UUID, body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("PUT", "/api/v1/users/"+id.String(), strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("self-service email change", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.member)

		w := putUser(r, f.member.ID, `{"email": "new@example.com"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if f.store.userByID[f.member.ID].Email != "new@example.com" {
			t.Errorf("email not updated")
		}
	})

	t.Run("member cannot grant themselves admin", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.member)

		w := putUser(r, f.member.ID, `{"is_admin": true}`)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
		}
		if f.store.userByID[f.member.ID].IsAdmin {
			t.Errorf("admin flag granted despite denial")
		}
	})

	t.Run("system owner grants admin to a member", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.sysOwner)

		w := putUser(r, f.member.ID, `{"is_admin": true}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if !f.store.userByID[f.member.ID].IsAdmin {
			t.Errorf("admin flag not granted")
		}
	})

	t.Run("member cannot update a colleague", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.member)

		w := putUser(r, f.admin.ID, `{"email": "hijack@example.com"}`)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestUserDelete(t *testing.T) {
	deleteUser := func(r *gin.Engine, id uuid.UUID) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/api/v1/users/"+id.String(), nil)
		r.ServeHTTP(w, req)
		return w
	}

	t.Run("own account is off limits", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.admin)

		w := deleteUser(r, f.admin.ID)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("org admin deletes a member", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.admin)

		w := deleteUser(r, f.member.ID)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		if _, stillThere := f.store.userByID[f.member.ID]; stillThere {
			t.Errorf("user not deleted")
		}
	})

	t.Run("member may not delete anyone", func(t *testing.T) {
		f := newUserDirFixture()
		r := setupUserTestRouter(f.store, f.member)

		w := deleteUser(r, f.admin.ID)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
		}
	})
}
