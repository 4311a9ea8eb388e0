package rbac

import (
	"log/slog"
	"net/http"

	"github.com/jobready/authcore/internal/platform/httpx"
)

// Middleware wires RBAC authorization helpers for HTTP handlers. It relies
// on the request gate having attached a Principal to the context.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny ensures the current principal has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require("rbac require any", func(p Principal) bool {
		return p.AllowsAny(normalized...)
	})
}

// RequireAll ensures the current principal has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return m.require("rbac require all", func(p Principal) bool {
		return p.AllowsAll(normalized...)
	})
}

// RequireSuperuser admits superusers only.
func (m Middleware) RequireSuperuser() func(http.Handler) http.Handler {
	return m.require("rbac require superuser", func(p Principal) bool {
		return p.IsSuperuser
	})
}

func (m Middleware) require(op string, allowed func(Principal) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok {
				httpx.Fail(w, http.StatusUnauthorized, "authentication required", "token_missing")
				return
			}
			if allowed(principal) {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Info(op+" denied", slog.String("account_id", principal.AccountID), slog.String("path", r.URL.Path))
			}
			httpx.Fail(w, http.StatusForbidden, "insufficient permissions", "forbidden")
		})
	}
}

func normalizePermissions(perms []string) []string {
	unique := make(map[string]struct{}, len(perms))
	normalized := make([]string, 0, len(perms))
	for _, p := range perms {
		p = NormalizePermission(p)
		if p == "" {
			continue
		}
		if _, ok := unique[p]; ok {
			continue
		}
		unique[p] = struct{}{}
		normalized = append(normalized, p)
	}
	return normalized
}
