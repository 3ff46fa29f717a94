package handlers

import (
	"context"
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

// mockCommentStore implements CommentStore for testing.
type mockCommentStore struct {
	commentByID    map[uuid.UUID]*models.TaskComment
	commentsByTask map[uuid.UUID][]*models.TaskComment
	taskByID       map[uuid.UUID]*models.Task
}

func newMockCommentStore() *mockCommentStore {
	return &mockCommentStore{
		commentByID:    make(map[uuid.UUID]*models.TaskComment),
		commentsByTask: make(map[uuid.UUID][]*models.TaskComment),
		taskByID:       make(map[uuid.UUID]*models.Task),
	}
}

func (m *mockCommentStore) CreateComment(_ context.Context, c *models.TaskComment) error {
	m.commentByID[c.ID] = c
	m.commentsByTask[c.TaskID] = append(m.commentsByTask[c.TaskID], c)
	return nil
}

func (m *mockCommentStore) GetCommentByID(_ context.Context, id uuid.UUID) (*models.TaskComment, error) {
	if c, ok := m.commentByID[id]; ok {
		return c, nil
	}
	return nil, db.ErrNotFound
}

func (m *mockCommentStore) GetCommentsByTaskID(_ context.Context, taskID uuid.UUID) ([]*models.TaskComment, error) {
	return m.commentsByTask[taskID], nil
}

func (m *mockCommentStore) UpdateComment(_ context.Context, c *models.TaskComment) error {
	m.commentByID[c.ID] = c
	return nil
}

func (m *mockCommentStore) DeleteComment(_ context.Context, id uuid.UUID) error {
	delete(m.commentByID, id)
	return nil
}

func (m *mockCommentStore) GetTaskByID(_ context.Context, id uuid.UUID) (*models.Task, error) {
	if t, ok := m.taskByID[id]; ok {
		return t, nil
	}
	return nil, db.ErrNotFound
}

func setupCommentTestRouter(store CommentStore, user *models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	r.Use(func(c *gin.Context) {
		if user != nil {
			c.Set(string(middleware.UserContextKey), user)
		}
		c.Next()
	})

	handler := NewCommentsHandler(store, zerolog.Nop())
	api := r.Group("/api/v1")
	handler.RegisterRoutes(api)
	return r
}

// commentFixture wires an org, a task, its author, an org admin, and the
// system owner.
type commentFixture struct {
	store    *mockCommentStore
	orgID    uuid.UUID
	author   *models.User
	admin    *models.User
	sysOwner *models.User
	task     *models.Task
	comment  *models.TaskComment
}

func newCommentFixture() *commentFixture {
	orgID := uuid.New()
	author := &models.User{ID: uuid.New(), Username: "author", OrgID: &orgID}
	admin := &models.User{ID: uuid.New(), Username: "admin", OrgID: &orgID, IsAdmin: true}
	sysOwner := &models.User{ID: uuid.New(), Username: "root", IsSystemOwner: true, IsAdmin: true}

	task := models.NewTask("Fix login", "", uuid.New(), orgID)
	comment := models.NewTaskComment(task.ID, author.ID, "works on my machine")

	store := newMockCommentStore()
	store.taskByID[task.ID] = task
	store.commentByID[comment.ID] = comment
	store.commentsByTask[task.ID] = []*models.TaskComment{comment}

	return &commentFixture{
		store:    store,
		orgID:    orgID,
		author:   author,
		admin:    admin,
		sysOwner: sysOwner,
		task:     task,
		comment:  comment,
	}
}

func putComment(r *gin.Engine, commentID uuid.UUID, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("PUT", "/api/v1/comments/"+commentID.String(), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func deleteComment(r *gin.Engine, commentID uuid.UUID) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("DELETE", "/api/v1/comments/"+commentID.String(), nil)
	r.ServeHTTP(w, req)
	return w
}

func TestCommentCreate(t *testing.T) {
	f := newCommentFixture()
	r := setupCommentTestRouter(f.store, f.author)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/v1/tasks/"+f.task.ID.String()+"/comments",
		strings.NewReader(`{"content": "ship it"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(f.store.commentsByTask[f.task.ID]) != 2 {
		t.Errorf("comment not persisted")
	}
}

func TestCommentEditIsAuthorOnly(t *testing.T) {
	t.Run("author edits and comment is marked edited", func(t *testing.T) {
		f := newCommentFixture()
		r := setupCommentTestRouter(f.store, f.author)

		w := putComment(r, f.comment.ID, `{"content": "works everywhere now"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
		got := f.store.commentByID[f.comment.ID]
		if got.Content != "works everywhere now" {
			t.Errorf("content not updated: %q", got.Content)
		}
		if !got.IsEdited {
			t.Errorf("comment not marked as edited")
		}
	})

	t.Run("org admin may not edit", func(t *testing.T) {
		f := newCommentFixture()
		r := setupCommentTestRouter(f.store, f.admin)

		w := putComment(r, f.comment.ID, `{"content": "rewritten"}`)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("system owner may not edit", func(t *testing.T) {
		f := newCommentFixture()
		r := setupCommentTestRouter(f.store, f.sysOwner)

		w := putComment(r, f.comment.ID, `{"content": "rewritten"}`)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestCommentDelete(t *testing.T) {
	t.Run("author deletes own comment", func(t *testing.T) {
		f := newCommentFixture()
		r := setupCommentTestRouter(f.store, f.author)

		w := deleteComment(r, f.comment.ID)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("org admin deletes member comment", func(t *testing.T) {
		f := newCommentFixture()
		r := setupCommentTestRouter(f.store, f.admin)

		w := deleteComment(r, f.comment.ID)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("system owner deletes any comment", func(t *testing.T) {
		f := newCommentFixture()
		r := setupCommentTestRouter(f.store, f.sysOwner)

		w := deleteComment(r, f.comment.ID)
		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("unrelated member may not delete", func(t *testing.T) {
		f := newCommentFixture()
		bystander := &models.User{ID: uuid.New(), Username: "bystander", OrgID: &f.orgID}
		r := setupCommentTestRouter(f.store, bystander)

		w := deleteComment(r, f.comment.ID)
		if w.Code != http.StatusForbidden {
			t.Fatalf("expected status 403, got %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestCommentCrossTenant(t *testing.T) {
	f := newCommentFixture()
	otherOrg := uuid.New()
	outsider := &models.User{ID: uuid.New(), Username: "outsider", OrgID: &otherOrg}
	r := setupCommentTestRouter(f.store, outsider)

	t.Run("list is a 404", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/v1/tasks/"+f.task.ID.String()+"/comments", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("edit is a 404", func(t *testing.T) {
		w := putComment(r, f.comment.ID, `{"content": "sneaky"}`)
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d: %s", w.Code, w.Body.String())
		}
	})
}
