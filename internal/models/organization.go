// Package models defines the domain models for Taskline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// DefaultOrgName is the canonical display name of the auto-provisioned
// default organization. At most one organization may carry this name once
// reconciliation has run.
const DefaultOrgName = "Default Organization"

// Organization represents a tenant. Every other entity belongs to exactly
// one organization, reachable through its owner or parent.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrganization creates a new Organization with the given name and slug.
func NewOrganization(name, slug string) *Organization {
	return &Organization{
		ID:        uuid.New(),
		Name:      name,
		Slug:      slug,
		CreatedAt: time.Now(),
	}
}

// IsDefault returns true if this is the canonical default organization.
func (o *Organization) IsDefault() bool {
	return o.Name == DefaultOrgName
}

// CreateOrganizationRequest is the payload for creating an organization.
type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
	Slug string `json:"slug"`
}

// UpdateOrganizationRequest is the payload for updating an organization.
type UpdateOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
}
