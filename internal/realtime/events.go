// Package realtime provides WebSocket fan-out of project and task mutations
// to per-tenant, per-project, and per-user broadcast groups.
package realtime

import (
	"github.com/google/uuid"

	"github.com/taskline/taskline/internal/models"
)

// EventType identifies a realtime notification kind.
type EventType string

const (
	EventProjectCreate EventType = "project_create"
	EventProjectUpdate EventType = "project_update"
	EventProjectDelete EventType = "project_delete"
	EventTaskCreate    EventType = "task_create"
	EventTaskUpdate    EventType = "task_update"
	EventTaskDelete    EventType = "task_delete"
)

// Event is a typed mutation notification. Delivery is at-most-once and
// best-effort: no persistence, no replay, no cross-channel ordering.
type Event struct {
	Type EventType `json:"type"`

	Project *models.Project `json:"project,omitempty"`
	Task    *models.Task    `json:"task,omitempty"`

	// Set on delete events, when the entity body is gone.
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	TaskID    *uuid.UUID `json:"task_id,omitempty"`

	// Routing metadata, not serialized to clients.
	Groups []string `json:"-"`
}

// Group name constructors. A group is a named channel of subscribed
// sessions receiving fan-out notifications.

// OrgGroup returns the broadcast group for an organization slug.
func OrgGroup(slug string) string { return "org:" + slug }

// ProjectGroup returns the broadcast group for a project.
func ProjectGroup(id uuid.UUID) string { return "project:" + id.String() }

// UserGroup returns the private broadcast group for a user.
func UserGroup(id uuid.UUID) string { return "user:" + id.String() }

// NewProjectEvent builds a project create/update event routed to the
// owning organization's group.
func NewProjectEvent(t EventType, p *models.Project, orgSlug string) *Event {
	return &Event{
		Type:    t,
		Project: p,
		Groups:  []string{OrgGroup(orgSlug)},
	}
}

// NewProjectDeleteEvent builds a project deletion event.
func NewProjectDeleteEvent(projectID uuid.UUID, orgSlug string) *Event {
	return &Event{
		Type:      EventProjectDelete,
		ProjectID: &projectID,
		Groups:    []string{OrgGroup(orgSlug), ProjectGroup(projectID)},
	}
}

// NewTaskEvent builds a task create/update event routed to both the project
// group and the owning organization's group.
func NewTaskEvent(t EventType, task *models.Task, orgSlug string) *Event {
	return &Event{
		Type:   t,
		Task:   task,
		Groups: []string{ProjectGroup(task.ProjectID), OrgGroup(orgSlug)},
	}
}

// NewTaskDeleteEvent builds a task deletion event.
func NewTaskDeleteEvent(taskID, projectID uuid.UUID, orgSlug string) *Event {
	return &Event{
		Type:   EventTaskDelete,
		TaskID: &taskID,
		Groups: []string{ProjectGroup(projectID), OrgGroup(orgSlug)},
	}
}
