package roles

import (
	"time"

	"github.com/jobready/authcore/internal/rbac"
)

// Role is a named bundle of permissions.
type Role struct {
	ID          int64              `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Permissions rbac.PermissionSet `json:"permissions"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// ListFilter narrows role listings.
type ListFilter struct {
	Active *bool
	Search string
}

// CreateInput describes a new role.
type CreateInput struct {
	Name        string   `json:"name" validate:"required,rolename"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions"`
	IsActive    *bool    `json:"is_active"`
}

// Patch updates a role; nil fields are left untouched. Permissions, when
// present, replace the whole set.
type Patch struct {
	Name        *string   `json:"name" validate:"omitempty,rolename"`
	Description *string   `json:"description" validate:"omitempty,max=500"`
	Permissions *[]string `json:"permissions"`
	IsActive    *bool     `json:"is_active"`
}
