package rbac

import (
	"strings"
	"time"
)

// Assignment links one account to one role. Revoked assignments stay in
// storage with IsActive=false so the grant history is preserved.
type Assignment struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"account_id"`
	RoleID    int64     `json:"role_id"`
	RoleName  string    `json:"role_name"`
	GrantedBy *string   `json:"granted_by,omitempty"`
	GrantedAt time.Time `json:"granted_at"`
	IsActive  bool      `json:"is_active"`
}

// RoleState is the slice of a role the ledger needs while granting it.
type RoleState struct {
	ID       int64
	Name     string
	IsActive bool
}

// Subject carries the account facts that feed a Principal.
type Subject struct {
	AccountID   string
	Email       string
	IsActive    bool
	IsSuperuser bool
}

// Grant is an active role reachable through an active assignment.
type Grant struct {
	RoleID      int64
	RoleName    string
	Permissions PermissionSet
}

// Principal describes the authenticated actor. It is derived per request by
// the Resolver and never persisted.
type Principal struct {
	AccountID   string        `json:"account_id"`
	Email       string        `json:"email"`
	Permissions PermissionSet `json:"permissions"`
	Roles       []string      `json:"roles"`
	IsSuperuser bool          `json:"is_superuser"`
	IsActive    bool          `json:"is_active"`
}

// HasPermission is pure set membership; superuser status is not consulted.
func (p Principal) HasPermission(perm string) bool {
	return p.Permissions.Has(perm)
}

// HasRole reports whether a role with the given name was granted.
func (p Principal) HasRole(name string) bool {
	name = NormalizeName(name)
	for _, r := range p.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Allows reports whether the principal may exercise perm, treating
// superusers as holding every permission.
func (p Principal) Allows(perm string) bool {
	return p.IsSuperuser || p.HasPermission(perm)
}

// AllowsAny reports whether at least one of perms is allowed.
func (p Principal) AllowsAny(perms ...string) bool {
	if len(perms) == 0 || p.IsSuperuser {
		return true
	}
	for _, perm := range perms {
		if p.HasPermission(perm) {
			return true
		}
	}
	return false
}

// AllowsAll reports whether every perm is allowed.
func (p Principal) AllowsAll(perms ...string) bool {
	if p.IsSuperuser {
		return true
	}
	for _, perm := range perms {
		if !p.HasPermission(perm) {
			return false
		}
	}
	return true
}

// RoleUsage counts assignments for one role.
type RoleUsage struct {
	RoleID      int64  `json:"role_id"`
	Name        string `json:"name"`
	Assignments int    `json:"assignments"`
}

// Stats summarises roles and assignments.
type Stats struct {
	TotalRoles        int         `json:"total_roles"`
	ActiveRoles       int         `json:"active_roles"`
	TotalAssignments  int         `json:"total_assignments"`
	ActiveAssignments int         `json:"active_assignments"`
	MostUsedRoles     []RoleUsage `json:"most_used_roles"`
}

// NormalizeName lower-cases and trims role names.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
