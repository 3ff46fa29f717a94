package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/taskline/taskline/internal/api/middleware"
	"github.com/taskline/taskline/internal/auth"
	"github.com/taskline/taskline/internal/models"
	"github.com/taskline/taskline/internal/realtime"
)

// TaskStore defines the interface for task persistence operations.
type TaskStore interface {
	GetTaskByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	GetTasksByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	DeleteTask(ctx context.Context, id uuid.UUID) error
	GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

// TasksHandler handles task-related HTTP endpoints. Task creation lives on
// the projects handler, under the parent project.
type TasksHandler struct {
	store  TaskStore
	events EventPublisher
	logger zerolog.Logger
}

// NewTasksHandler creates a new TasksHandler.
func NewTasksHandler(store TaskStore, events EventPublisher, logger zerolog.Logger) *TasksHandler {
	return &TasksHandler{
		store:  store,
		events: events,
		logger: logger.With().Str("component", "tasks_handler").Logger(),
	}
}

// RegisterRoutes registers task routes on the given router group.
func (h *TasksHandler) RegisterRoutes(r *gin.RouterGroup) {
	tasks := r.Group("/tasks")
	{
		tasks.GET("", h.List)
		tasks.GET("/:id", h.Get)
		tasks.PATCH("/:id", h.Update)
		tasks.PUT("/:id", h.Update)
		tasks.DELETE("/:id", h.Delete)
	}
}

func (h *TasksHandler) publish(ctx context.Context, event *realtime.Event) {
	if h.events != nil {
		h.events.Publish(ctx, event)
	}
}

func (h *TasksHandler) orgSlug(ctx context.Context, orgID uuid.UUID) string {
	org, err := h.store.GetOrganizationByID(ctx, orgID)
	if err != nil {
		h.logger.Warn().Err(err).Str("org_id", orgID.String()).Msg("failed to resolve org slug for event")
		return ""
	}
	return org.Slug
}

// List returns the tasks in the caller's organization.
// GET /api/v1/tasks
func (h *TasksHandler) List(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	if user.OrgID == nil {
		c.JSON(http.StatusOK, gin.H{"tasks": []*models.Task{}})
		return
	}

	tasks, err := h.store.GetTasksByOrgID(c.Request.Context(), *user.OrgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", user.OrgID.String()).Msg("failed to list tasks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// Get returns a single task.
// GET /api/v1/tasks/:id
func (h *TasksHandler) Get(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	task := h.loadTask(c, user)
	if task == nil {
		return
	}
	c.JSON(http.StatusOK, task)
}

// Update modifies a task. A status-only update is allowed for the current
// assignee as well; any other field requires the owning project's owner or
// an org admin. The task's project and organization are immutable.
// PATCH /api/v1/tasks/:id
func (h *TasksHandler) Update(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	task := h.loadTask(c, user)
	if task == nil {
		return
	}

	var req models.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	project, err := h.store.GetProjectByID(c.Request.Context(), task.ProjectID)
	if err != nil {
		h.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to load parent project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update task"})
		return
	}

	action := auth.ActionUpdate
	if req.StatusOnly() {
		action = auth.ActionUpdateStatus
	}
	ref := auth.ResourceRef{OrgID: task.OrgID, OwnerID: project.OwnerID, AssigneeID: task.AssigneeID}
	if err := auth.Evaluate(auth.ResourceTask, action, user, ref); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if req.Title != nil {
		task.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		if !models.ValidTaskStatus(status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		task.Status = status
	}
	if req.AssigneeID != nil {
		if *req.AssigneeID == "" {
			task.AssigneeID = nil
		} else {
			assigneeID, err := uuid.Parse(*req.AssigneeID)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignee_id"})
				return
			}
			assignee, err := h.store.GetUserByID(c.Request.Context(), assigneeID)
			if err != nil || !assignee.InOrg(task.OrgID) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "assignee must belong to the task's organization"})
				return
			}
			task.AssigneeID = &assigneeID
		}
	}
	if err := task.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateTask(c.Request.Context(), task); err != nil {
		h.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to update task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update task"})
		return
	}

	if s := h.orgSlug(c.Request.Context(), task.OrgID); s != "" {
		h.publish(c.Request.Context(), realtime.NewTaskEvent(realtime.EventTaskUpdate, task, s))
	}

	h.logger.Info().Str("task_id", task.ID.String()).Str("action", string(action)).Msg("task updated")
	c.JSON(http.StatusOK, task)
}

// Delete removes a task. Owning project's owner or org admin only.
// DELETE /api/v1/tasks/:id
func (h *TasksHandler) Delete(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	task := h.loadTask(c, user)
	if task == nil {
		return
	}

	project, err := h.store.GetProjectByID(c.Request.Context(), task.ProjectID)
	if err != nil {
		h.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to load parent project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete task"})
		return
	}

	ref := auth.ResourceRef{OrgID: task.OrgID, OwnerID: project.OwnerID, AssigneeID: task.AssigneeID}
	if err := auth.Evaluate(auth.ResourceTask, auth.ActionDelete, user, ref); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	if err := h.store.DeleteTask(c.Request.Context(), task.ID); err != nil {
		h.logger.Error().Err(err).Str("task_id", task.ID.String()).Msg("failed to delete task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete task"})
		return
	}

	if s := h.orgSlug(c.Request.Context(), task.OrgID); s != "" {
		h.publish(c.Request.Context(), realtime.NewTaskDeleteEvent(task.ID, task.ProjectID, s))
	}

	h.logger.Info().Str("task_id", task.ID.String()).Msg("task deleted")
	c.JSON(http.StatusOK, gin.H{"message": "task deleted"})
}

// loadTask parses the :id param, loads the task, and applies the tenant
// read check. Cross-tenant tasks 404.
func (h *TasksHandler) loadTask(c *gin.Context, user *models.User) *models.Task {
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
