package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/api/middleware"
	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/models"
)

// CommentStore defines the interface for comment persistence operations.
type CommentStore interface {
	CreateComment(ctx context.Context, c *models.TaskComment) error
	GetCommentByID(ctx context.Context, id uuid.UUID) (*models.TaskComment, error)
	GetCommentsByTaskID(ctx context.Context, taskID uuid.UUID) ([]*models.TaskComment, error)
	UpdateComment(ctx context.Context, c *models.TaskComment) error
	DeleteComment(ctx context.Context, id uuid.UUID) error
	GetTaskByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
}

// CommentsHandler handles task comment HTTP endpoints.
type CommentsHandler struct {
	store  CommentStore
	logger zerolog.Logger
}

// NewCommentsHandler creates a new CommentsHandler.
func NewCommentsHandler(store CommentStore, logger zerolog.Logger) *CommentsHandler {
	return &CommentsHandler{
		store:  store,
		logger: logger.With().Str("component", "comments_handler").Logger(),
	}
}

// RegisterRoutes registers comment routes on the given router group.
func (h *CommentsHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/tasks/:id/comments", h.List)
	r.POST("/tasks/:id/comments", h.Create)
	r.PUT("/comments/:id", h.Update)
	r.DELETE("/comments/:id", h.Delete)
}

// List returns a task's comments in creation order.
// GET /api/v1/tasks/:id/comments
func (h *CommentsHandler) List(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	task := h.loadTask(c, user)
	if task == nil {
		return
	}

	comments, err := h.store.GetCommentsByTaskID(c.Request.Context(), task.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to list comments")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list comments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// Create adds a comment to a task. Any member of the task's organization
// may comment; the author is always the authenticated user.
// POST /api/v1/tasks/:id/comments
func (h *CommentsHandler) Create(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	task := h.loadTask(c, user)
	if task == nil {
		return
	}

	if err := auth.Evaluate(auth.ResourceComment, auth.ActionCreate, user, auth.ResourceRef{OrgID: task.OrgID}); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req models.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	comment := models.NewTaskComment(task.ID, user.ID, strings.TrimSpace(req.Content))
	if err := comment.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateComment(c.Request.Context(), comment); err != nil {
		h.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to create comment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create comment"})
		return
	}

	h.logger.Info().
		Str("comment_id", comment.ID.String()).
		Str("task_id", task.ID.String()).
		Msg("comment created")

	c.JSON(http.StatusCreated, comment)
}

// Update edits a comment's content. Author only, without exception, and the
// comment is marked as edited.
// PUT /api/v1/comments/:id
func (h *CommentsHandler) Update(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	comment, task := h.loadComment(c, user)
	if comment == nil {
		return
	}

	ref := auth.ResourceRef{OrgID: task.OrgID, AuthorID: comment.AuthorID}
	if err := auth.Evaluate(auth.ResourceComment, auth.ActionUpdate, user, ref); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req models.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	comment.Content = strings.TrimSpace(req.Content)
	comment.IsEdited = true
	comment.UpdatedAt = time.Now()
	if err := comment.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateComment(c.Request.Context(), comment); err != nil {
		h.logger.Error().Err(err).Str("comment_id", comment.ID.String()).Msg("failed to update comment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update comment"})
		return
	}

	h.logger.Info().Str("comment_id", comment.ID.String()).Msg("comment updated")
	c.JSON(http.StatusOK, comment)
}

// Delete removes a comment. Author, org admin, or system owner.
// DELETE /api/v1/comments/:id
func (h *CommentsHandler) Delete(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	comment, task := h.loadComment(c, user)
	if comment == nil {
		return
	}

	ref := auth.ResourceRef{OrgID: task.OrgID, AuthorID: comment.AuthorID}
	if err := auth.Evaluate(auth.ResourceComment, auth.ActionDelete, user, ref); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.store.DeleteComment(c.Request.Context(), comment.ID); err != nil {
		h.logger.Error().Err(err).Str("comment_id", comment.ID.String()).Msg("failed to delete comment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete comment"})
		return
	}

	h.logger.Info().
		Str("comment_id", comment.ID.String()).
		Str("deleted_by", user.ID.String()).
		Msg("comment deleted")
	c.JSON(http.StatusOK, gin.H{"message": "comment deleted"})
}

// loadTask loads the task named by :id and applies the tenant read check.
func (h *CommentsHandler) loadTask(c *gin.Context, user *models.User) *models.Task {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid task ID"})
		return nil
	}

	task, err := h.store.GetTaskByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return nil
	}

	if err := auth.Evaluate(auth.ResourceTask, auth.ActionRead, user, auth.ResourceRef{OrgID: task.OrgID}); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return nil
	}

	return task
}

// loadComment loads the comment named by :id plus its task, applying the
// tenant read check through the task's organization.
func (h *CommentsHandler) loadComment(c *gin.Context, user *models.User) (*models.TaskComment, *models.Task) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment ID"})
		return nil, nil
	}

	comment, err := h.store.GetCommentByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return nil, nil
	}

	task, err := h.store.GetTaskByID(c.Request.Context(), comment.TaskID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return nil, nil
	}

	if err := auth.Evaluate(auth.ResourceComment, auth.ActionRead, user, auth.ResourceRef{OrgID: task.OrgID, AuthorID: comment.AuthorID}); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "comment not found"})
		return nil, nil
	}

	return comment, task
}
