package api

import (
	"time"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
)

// Check modes
const (
	CheckModeAll  = "all"
	CheckModeAny  = "any"
	CheckModeRole = "role"
)

// PermissionRequest creates or updates a permission
type PermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleRequest creates or updates a role. Permissions is only honored on create.
type RoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions,omitempty"`
}

// RoleResponse is a role with its permission names in name order
type RoleResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NamesRequest carries a list of permission or role names
type NamesRequest struct {
	Names []string `json:"names"`
}

// CheckRequest asks whether a subject holds permissions
type CheckRequest struct {
	Subject     rbac.Subject `json:"subject"`
	Permissions []string     `json:"permissions"`
	Mode        string       `json:"mode,omitempty"`
}

// CheckResponse is the decision for a CheckRequest
type CheckResponse struct {
	Allowed bool `json:"allowed"`
}

// HasRoleResponse reports whether a subject holds a role
type HasRoleResponse struct {
	HasRole bool `json:"has_role"`
}

func newRoleResponse(role *rbac.Role) RoleResponse {
	perms := role.Permissions()
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return RoleResponse{
		ID:          role.ID,
		Name:        role.Name,
		Description: role.Description,
		Permissions: names,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

func newRoleResponses(roles []*rbac.Role) []RoleResponse {
	out := make([]RoleResponse, len(roles))
	for i, r := range roles {
		out[i] = newRoleResponse(r)
	}
	return out
}

func permissionNames(perms []*rbac.Permission) []string {
	names := make([]string, len(perms))
	for i, p := range perms {
		names[i] = p.Name
	}
	return names
}
