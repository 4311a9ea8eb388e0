package rbac

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jobready/authcore/internal/platform/httpx"
	"github.com/jobready/authcore/internal/shared"
)

// PermissionsHandler exposes the permission catalogue.
type PermissionsHandler struct {
	rbac Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listPermissions)
	})
	r.Get("/me", h.myPermissions)
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, "permissions", shared.CoreScopes())
}

func (h *PermissionsHandler) myPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		httpx.Fail(w, http.StatusUnauthorized, "authentication required", "token_missing")
		return
	}
	httpx.OK(w, http.StatusOK, "permissions", map[string]any{
		"permissions":  principal.Permissions,
		"roles":        principal.Roles,
		"is_superuser": principal.IsSuperuser,
	})
}
