package gate

import (
	"net/http"

	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/session"
)

// CheckFunc builds the check for a request, typically from route variables
type CheckFunc func(r *http.Request) rbac.PermissionCheck

// RequirePermission requires a single check. fallback, when non-nil, is
// served to authenticated users who are denied instead of a bare 403.
func (g *Gate) RequirePermission(check rbac.PermissionCheck, fallback http.Handler) func(http.Handler) http.Handler {
	return g.RequireFunc(func(*http.Request) rbac.PermissionCheck { return check }, fallback)
}

// RequireFunc requires the check built from the request
func (g *Gate) RequireFunc(build CheckFunc, fallback http.Handler) func(http.Handler) http.Handler {
	return g.require(func(user *rbac.UserContext, r *http.Request) bool {
		return g.access.HasPermission(user, build(r))
	}, fallback)
}

// RequireAny requires at least one of the checks
func (g *Gate) RequireAny(checks []rbac.PermissionCheck, fallback http.Handler) func(http.Handler) http.Handler {
	return g.require(func(user *rbac.UserContext, _ *http.Request) bool {
		return g.access.HasAnyPermission(user, checks)
	}, fallback)
}

// RequireAll requires every check
func (g *Gate) RequireAll(checks []rbac.PermissionCheck, fallback http.Handler) func(http.Handler) http.Handler {
	return g.require(func(user *rbac.UserContext, _ *http.Request) bool {
		return g.access.HasAllPermissions(user, checks)
	}, fallback)
}

func (g *Gate) require(allowed func(*rbac.UserContext, *http.Request) bool, fallback http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := session.UserFromContext(r.Context())
			if allowed(user, r) {
				next.ServeHTTP(w, r)
				return
			}

			if user == nil {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			if fallback != nil {
				fallback.ServeHTTP(w, r)
				return
			}
			http.Error(w, "Insufficient permissions", http.StatusForbidden)
		})
	}
}
