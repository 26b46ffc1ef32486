package middleware

import (
	"net/http"

	"github.com/devfolio/portfolio-backend/internal/domain"
	"github.com/devfolio/portfolio-backend/internal/http/response"
	"github.com/devfolio/portfolio-backend/internal/observability"
	"github.com/devfolio/portfolio-backend/internal/service"
)

// RequireRole gates a route on the caller's role. The role is re-resolved
// through the cache rather than trusted from the token so revocations take
// effect within the cache TTL. Resolution failure denies access.
func RequireRole(resolver service.RoleResolver, allowed func(role string) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			role, err := resolver.ResolveRole(r.Context(), userID)
			if err != nil {
				observability.RecordRoleCacheEvent(r.Context(), "gate_error")
				response.Error(w, r, http.StatusServiceUnavailable, "ROLE_UNAVAILABLE", "role resolution unavailable", nil)
				return
			}
			if !allowed(role) {
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "insufficient role", map[string]string{"role": role})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireEditor admits editors and admins.
func RequireEditor(resolver service.RoleResolver) func(http.Handler) http.Handler {
	return RequireRole(resolver, domain.IsEditor)
}

// RequireAdmin admits admins only.
func RequireAdmin(resolver service.RoleResolver) func(http.Handler) http.Handler {
	return RequireRole(resolver, domain.IsAdmin)
}
