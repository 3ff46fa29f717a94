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

// EventPublisher delivers realtime events to subscribed clients. Handlers
// publish only after the database write has succeeded, so subscribers never
// see a mutation that was rolled back.
type EventPublisher interface {
	Publish(ctx context.Context, event *realtime.Event)
}

// ProjectStore defines the interface for project persistence operations.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProjectByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetProjectsByOrgID(ctx context.Context, orgID uuid.UUID) ([]*models.Project, error)
	GetAllProjects(ctx context.Context) ([]*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	DeleteProject(ctx context.Context, id uuid.UUID) error
	GetTasksByProjectID(ctx context.Context, projectID uuid.UUID) ([]*models.Task, error)
	CreateTask(ctx context.Context, t *models.Task) error
	GetOrganizationByID(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// ProjectsHandler handles project-related HTTP endpoints.
type ProjectsHandler struct {
	store  ProjectStore
	events EventPublisher
	logger zerolog.Logger
}

// NewProjectsHandler creates a new ProjectsHandler.
func NewProjectsHandler(store ProjectStore, events EventPublisher, logger zerolog.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		store:  store,
		events: events,
		logger: logger.With().Str("component", "projects_handler").Logger(),
	}
}

// RegisterRoutes registers project routes on the given router group.
func (h *ProjectsHandler) RegisterRoutes(r *gin.RouterGroup) {
	projects := r.Group("/projects")
	{
		projects.GET("", h.List)
		projects.POST("", h.Create)
		projects.GET("/:id", h.Get)
		projects.PUT("/:id", h.Update)
		projects.DELETE("/:id", h.Delete)
		projects.GET("/:id/tasks", h.ListTasks)
		projects.POST("/:id/add_task", h.AddTask)
	}
}

// publish emits an event unless realtime is disabled.
func (h *ProjectsHandler) publish(ctx context.Context, event *realtime.Event) {
	if h.events != nil {
		h.events.Publish(ctx, event)
	}
}

// orgSlug resolves the slug of an organization for event routing.
func (h *ProjectsHandler) orgSlug(ctx context.Context, orgID uuid.UUID) string {
	org, err := h.store.GetOrganizationByID(ctx, orgID)
	if err != nil {
		h.logger.Warn().Err(err).Str("org_id", orgID.String()).Msg("failed to resolve org slug for event")
		return ""
	}
	return org.Slug
}

// List returns the projects in the caller's organization. The system owner
// sees every project.
// GET /api/v1/projects
func (h *ProjectsHandler) List(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	if user.IsSystemOwner {
		projects, err := h.store.GetAllProjects(c.Request.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to list projects")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"projects": projects})
		return
	}

	if user.OrgID == nil {
		c.JSON(http.StatusOK, gin.H{"projects": []*models.Project{}})
		return
	}

	projects, err := h.store.GetProjectsByOrgID(c.Request.Context(), *user.OrgID)
	if err != nil {
		h.logger.Error().Err(err).Str("org_id", user.OrgID.String()).Msg("failed to list projects")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// Get returns a single project.
// GET /api/v1/projects/:id
func (h *ProjectsHandler) Get(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	project := h.loadProject(c, user, auth.ActionRead)
	if project == nil {
		return
	}
	c.JSON(http.StatusOK, project)
}

// Create creates a new project in the caller's organization. The system
// owner may name another tenant in the payload; for everyone else the
// submitted organization is ignored.
// POST /api/v1/projects
func (h *ProjectsHandler) Create(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	var req models.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	var orgID uuid.UUID
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
		orgID = id
	case user.OrgID != nil:
		orgID = *user.OrgID
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "organization is required"})
		return
	}

	if err := auth.Evaluate(auth.ResourceProject, auth.ActionCreate, user, auth.ResourceRef{OrgID: orgID}); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	project := models.NewProject(strings.TrimSpace(req.Title), req.Description, user.ID, orgID)
	if err := project.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateProject(c.Request.Context(), project); err != nil {
		h.logger.Error().Err(err).Str("title", project.Title).Msg("failed to create project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
		return
	}

	if s := h.orgSlug(c.Request.Context(), orgID); s != "" {
		h.publish(c.Request.Context(), realtime.NewProjectEvent(realtime.EventProjectCreate, project, s))
	}

	h.logger.Info().
		Str("project_id", project.ID.String()).
		Str("org_id", orgID.String()).
		Str("owner_id", user.ID.String()).
		Msg("project created")

	c.JSON(http.StatusCreated, project)
}

// Update modifies a project's title or description. Owner or org admin only.
// PUT /api/v1/projects/:id
func (h *ProjectsHandler) Update(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	project := h.loadProject(c, user, auth.ActionUpdate)
	if project == nil {
		return
	}

	var req models.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if req.Title != nil {
		project.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if err := project.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateProject(c.Request.Context(), project); err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to update project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update project"})
		return
	}

	if s := h.orgSlug(c.Request.Context(), project.OrgID); s != "" {
		h.publish(c.Request.Context(), realtime.NewProjectEvent(realtime.EventProjectUpdate, project, s))
	}

	h.logger.Info().Str("project_id", project.ID.String()).Msg("project updated")
	c.JSON(http.StatusOK, project)
}

// Delete removes a project and its tasks. Owner or org admin only.
// DELETE /api/v1/projects/:id
func (h *ProjectsHandler) Delete(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	project := h.loadProject(c, user, auth.ActionDelete)
	if project == nil {
		return
	}

	if err := h.store.DeleteProject(c.Request.Context(), project.ID); err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to delete project")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete project"})
		return
	}

	if s := h.orgSlug(c.Request.Context(), project.OrgID); s != "" {
		h.publish(c.Request.Context(), realtime.NewProjectDeleteEvent(project.ID, s))
	}

	h.logger.Info().Str("project_id", project.ID.String()).Msg("project deleted")
	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}

// ListTasks returns the tasks of a project.
// GET /api/v1/projects/:id/tasks
func (h *ProjectsHandler) ListTasks(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	project := h.loadProject(c, user, auth.ActionRead)
	if project == nil {
		return
	}

	tasks, err := h.store.GetTasksByProjectID(c.Request.Context(), project.ID)
	if err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to list tasks")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// AddTask creates a task inside a project. The task inherits the project's
// organization; any organization in the payload is ignored.
// POST /api/v1/projects/:id/add_task
func (h *ProjectsHandler) AddTask(c *gin.Context) {
	user := middleware.RequireUser(c)
	if user == nil {
		return
	}

	project := h.loadProject(c, user, auth.ActionRead)
	if project == nil {
		return
	}

	if err := auth.Evaluate(auth.ResourceTask, auth.ActionCreate, user, auth.ResourceRef{OrgID: project.OrgID}); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var req models.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	task := models.NewTask(strings.TrimSpace(req.Title), req.Description, project.ID, project.OrgID)
	if req.Status != "" {
		task.Status = models.TaskStatus(req.Status)
	}
	if req.AssigneeID != "" {
		assigneeID, err := uuid.Parse(req.AssigneeID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignee_id"})
			return
		}
		assignee, err := h.store.GetUserByID(c.Request.Context(), assigneeID)
		if err != nil || !assignee.InOrg(project.OrgID) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "assignee must belong to the project's organization"})
			return
		}
		task.AssigneeID = &assigneeID
	}
	if err := task.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.CreateTask(c.Request.Context(), task); err != nil {
		h.logger.Error().Err(err).Str("project_id", project.ID.String()).Msg("failed to create task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create task"})
		return
	}

	if s := h.orgSlug(c.Request.Context(), task.OrgID); s != "" {
		h.publish(c.Request.Context(), realtime.NewTaskEvent(realtime.EventTaskCreate, task, s))
	}

	h.logger.Info().
		Str("task_id", task.ID.String()).
		Str("project_id", project.ID.String()).
		Msg("task created")

	c.JSON(http.StatusCreated, task)
}

// loadProject parses the :id param, loads the project, and runs the policy
// check for the given action. On failure it writes the error response and
// returns nil. Cross-tenant reads 404 to avoid leaking existence; denied
// mutations on visible projects 403.
func (h *ProjectsHandler) loadProject(c *gin.Context, user *models.User, action auth.Action) *models.Project {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project ID"})
		return nil
	}

	project, err := h.store.GetProjectByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return nil
	}

	ref := auth.ResourceRef{OrgID: project.OrgID, OwnerID: project.OwnerID}
	if err := auth.Evaluate(auth.ResourceProject, auth.ActionRead, user, ref); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return nil
	}
	if action != auth.ActionRead {
		if err := auth.Evaluate(auth.ResourceProject, action, user, ref); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return nil
		}
	}

	return project
}
