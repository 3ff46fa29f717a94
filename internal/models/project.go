package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Project is a tenant-scoped container for tasks. OrgID equals the owner's
// organization at creation time and never changes afterwards.
type Project struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OwnerID     uuid.UUID `json:"owner_id"`
	OrgID       uuid.UUID `json:"org_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewProject creates a new Project owned by the given user and organization.
func NewProject(title, description string, ownerID, orgID uuid.UUID) *Project {
	now := time.Now()
	return &Project{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		OwnerID:     ownerID,
		OrgID:       orgID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks required project fields.
func (p *Project) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return errors.New("title is required")
	}
	return nil
}

// CreateProjectRequest is the payload for creating a project.
type CreateProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	// OrgID is honored only for system owners targeting another tenant.
	OrgID string `json:"organization,omitempty"`
}

// UpdateProjectRequest is the payload for updating a project.
type UpdateProjectRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}
