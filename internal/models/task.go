package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is the workflow state of a task.
type TaskStatus string

const (
	// TaskStatusTodo is the initial state.
	TaskStatusTodo TaskStatus = "todo"
	// TaskStatusInProgress marks a task being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusDone marks a completed task.
	TaskStatusDone TaskStatus = "done"
)

// ValidTaskStatus reports whether s is a known task status.
func ValidTaskStatus(s TaskStatus) bool {
	switch s {
	case TaskStatusTodo, TaskStatusInProgress, TaskStatusDone:
		return true
	}
	return false
}

// Task is a unit of work inside a project. OrgID is a denormalized copy of
// the parent project's organization and must always equal it.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TaskStatus `json:"status"`
	ProjectID   uuid.UUID  `json:"project_id"`
	AssigneeID  *uuid.UUID `json:"assignee_id,omitempty"`
	OrgID       uuid.UUID  `json:"org_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// NewTask creates a new Task in the given project, copying the project's
// organization.
func NewTask(title, description string, projectID, orgID uuid.UUID) *Task {
	now := time.Now()
	return &Task{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Status:      TaskStatusTodo,
		ProjectID:   projectID,
		OrgID:       orgID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks required task fields.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return errors.New("title is required")
	}
	if !ValidTaskStatus(t.Status) {
		return errors.New("invalid status")
	}
	return nil
}

// CreateTaskRequest is the payload for creating a task.
type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Status      string `json:"status"`
	AssigneeID  string `json:"assignee_id,omitempty"`
}

// UpdateTaskRequest is the payload for updating a task. Pointer fields
// distinguish omitted fields from zero values; the access policy needs
// that distinction for assignee status-only updates.
type UpdateTaskRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
}

// StatusOnly reports whether the update touches nothing but the status field.
func (r *UpdateTaskRequest) StatusOnly() bool {
	return r.Status != nil && r.Title == nil && r.Description == nil && r.AssigneeID == nil
}
