package auth

import (
	"errors"

	"github.com/google/uuid"

	"github.com/taskline/taskline/internal/models"
)

// ErrForbidden is returned when the policy table denies an operation.
// Denial is terminal: no operation proceeds partially.
var ErrForbidden = errors.New("forbidden")

// ResourceType identifies a policy-governed resource kind.
type ResourceType string

const (
	ResourceOrganization ResourceType = "organization"
	ResourceUser         ResourceType = "user"
	ResourceProject      ResourceType = "project"
	ResourceTask         ResourceType = "task"
	ResourceComment      ResourceType = "comment"
)

// Action identifies an operation on a resource.
type Action string

const (
	ActionRead         Action = "read"
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionUpdateStatus Action = "update_status"
	ActionDelete       Action = "delete"
)

// ResourceRef carries the ownership facts of a persisted resource that the
// predicates consume. Handlers build it from the stored row, never from
// submitted payloads, so a tampered request body cannot escalate across
// tenants.
type ResourceRef struct {
	OrgID      uuid.UUID
	OwnerID    uuid.UUID
	AuthorID   uuid.UUID
	AssigneeID *uuid.UUID
}

// Predicate is a stateless allow/deny check over an (actor, resource) pair.
type Predicate func(actor *models.User, res ResourceRef) bool

// SameTenant allows actors in the resource's organization; the system owner
// overrides tenancy everywhere.
func SameTenant(actor *models.User, res ResourceRef) bool {
	return actor.IsSystemOwner || actor.InOrg(res.OrgID)
}

// OrgAdmin allows organization admins of the resource's tenant and the
// system owner.
func OrgAdmin(actor *models.User, res ResourceRef) bool {
	return actor.IsSystemOwner || (actor.IsAdmin && actor.InOrg(res.OrgID))
}

// ResourceOwner allows the resource's owning user, org admins, and the
// system owner.
func ResourceOwner(actor *models.User, res ResourceRef) bool {
	return actor.ID == res.OwnerID || OrgAdmin(actor, res)
}

// CommentAuthor allows only the comment's author. Not even the system owner
// may edit someone else's words.
func CommentAuthor(actor *models.User, res ResourceRef) bool {
	return actor.ID == res.AuthorID
}

// CommentDelete allows the author, org admins of the comment's tenant, and
// the system owner.
func CommentDelete(actor *models.User, res ResourceRef) bool {
	return actor.ID == res.AuthorID || OrgAdmin(actor, res)
}

// TaskAssignee allows the task's current assignee.
func TaskAssignee(actor *models.User, res ResourceRef) bool {
	return res.AssigneeID != nil && *res.AssigneeID == actor.ID
}

// SystemOwner allows only the system owner.
func SystemOwner(actor *models.User, _ ResourceRef) bool {
	return actor.IsSystemOwner
}

// Any combines predicates with OR.
func Any(preds ...Predicate) Predicate {
	return func(actor *models.User, res ResourceRef) bool {
		for _, p := range preds {
			if p(actor, res) {
				return true
			}
		}
		return false
	}
}

// policyTable maps (resource type, action) to the ordered predicate list
// required for the operation. Every tenant-scoped rule starts with
// SameTenant; the action-specific predicates are ANDed on top.
var policyTable = map[ResourceType]map[Action][]Predicate{
	ResourceOrganization: {
		ActionRead:   {SameTenant},
		ActionCreate: {SystemOwner},
		ActionUpdate: {SystemOwner},
		ActionDelete: {SystemOwner},
	},
	ResourceUser: {
		ActionRead:   {SameTenant},
		ActionCreate: {SameTenant, OrgAdmin},
		ActionUpdate: {SameTenant, Any(selfUser, SystemOwner)},
		ActionDelete: {SameTenant, OrgAdmin},
	},
	ResourceProject: {
		ActionRead:   {SameTenant},
		ActionCreate: {SameTenant},
		ActionUpdate: {SameTenant, ResourceOwner},
		ActionDelete: {SameTenant, ResourceOwner},
	},
	ResourceTask: {
		ActionRead:         {SameTenant},
		ActionCreate:       {SameTenant},
		ActionUpdate:       {SameTenant, ResourceOwner},
		ActionUpdateStatus: {SameTenant, Any(ResourceOwner, TaskAssignee)},
		ActionDelete:       {SameTenant, ResourceOwner},
	},
	ResourceComment: {
		ActionRead:   {SameTenant},
		ActionCreate: {SameTenant},
		ActionUpdate: {SameTenant, CommentAuthor},
		ActionDelete: {SameTenant, CommentDelete},
	},
}

// selfUser allows a user operating on their own account; the target user's
// ID travels in OwnerID.
func selfUser(actor *models.User, res ResourceRef) bool {
	return actor.ID == res.OwnerID
}

// Evaluate runs the policy table for (resource, action) against the actor
// and persisted resource facts. Unknown (resource, action) pairs deny.
func Evaluate(resource ResourceType, action Action, actor *models.User, res ResourceRef) error {
	actions, ok := policyTable[resource]
	if !ok {
		return ErrForbidden
	}
	preds, ok := actions[action]
	if !ok {
		return ErrForbidden
	}
	for _, p := range preds {
		if !p(actor, res) {
			return ErrForbidden
		}
	}
	return nil
}
