package shared

// PermAdmin grants full administrative access when present in a principal's
// effective permission set.
const PermAdmin = "admin"

// Core platform permissions.
const (
	PermUsersView = "users.view"
	PermUsersEdit = "users.edit"

	PermRolesView = "roles.view"
	PermRolesEdit = "roles.edit"

	PermAssignmentsEdit = "assignments.edit"

	PermAuditView = "audit.view"

	PermResumesRead   = "resumes.read"
	PermResumesWrite  = "resumes.write"
	PermResumesDelete = "resumes.delete"
)

// CoreScopes lists all permissions related to the core platform.
func CoreScopes() []string {
	return []string{
		PermAdmin,
		PermUsersView,
		PermUsersEdit,
		PermRolesView,
		PermRolesEdit,
		PermAssignmentsEdit,
		PermAuditView,
		PermResumesRead,
		PermResumesWrite,
		PermResumesDelete,
	}
}
