// Package rbac guards routes by the caller's role.
package rbac

import (
	"log/slog"
	"net/http"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/shared"
)

// Middleware wires role checks for HTTP handlers. It expects an identity
// placed in the request context by the auth middleware.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAny lets the request through when the caller holds one of roles.
// No roles means any authenticated caller.
func (m Middleware) RequireAny(roles ...shared.Role) func(http.Handler) http.Handler {
	allowed := make(map[shared.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if len(allowed) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			if _, ok := allowed[id.Role]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if m.Logger != nil {
				m.Logger.Warn("rbac denied", slog.Int64("user_id", id.UserID), slog.String("role", string(id.Role)), slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "insufficient role")
		})
	}
}

// RequireAdmin is RequireAny(shared.RoleAdmin).
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return m.RequireAny(shared.RoleAdmin)
}

// RequireStaff admits admins and cashiers.
func (m Middleware) RequireStaff() func(http.Handler) http.Handler {
	return m.RequireAny(shared.RoleAdmin, shared.RoleCashier)
}
