// Package rbac enforces role requirements on routes using the actor asserted
// by the upstream gateway.
package rbac

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/malimina/internal/platform/httpx"
	"github.com/odyssey-erp/malimina/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Logger *slog.Logger
}

// RequireActor rejects requests without an authenticated actor.
func (m Middleware) RequireActor() func(http.Handler) http.Handler {
	return m.RequireRole()
}

// RequireRole ensures the current actor holds one of roles. With no roles any
// authenticated actor passes.
func (m Middleware) RequireRole(roles ...shared.Role) func(http.Handler) http.Handler {
	allowed := normalizeRoles(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor headers missing")
				return
			}
			if !Allowed(actor, allowed...) {
				if m.Logger != nil {
					m.Logger.Warn("rbac denied",
						slog.String("actor", actor.ID.String()),
						slog.String("role", string(actor.Role)),
						slog.String("path", r.URL.Path))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "role not permitted")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Allowed reports whether actor holds one of roles.
func Allowed(actor shared.Actor, roles ...shared.Role) bool {
	if !actor.Role.Valid() {
		return false
	}
	if len(roles) == 0 {
		return true
	}
	for _, role := range roles {
		if actor.Role == role {
			return true
		}
	}
	return false
}

func normalizeRoles(roles []shared.Role) []shared.Role {
	seen := make(map[shared.Role]struct{}, len(roles))
	normalized := make([]shared.Role, 0, len(roles))
	for _, role := range roles {
		if !role.Valid() {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		normalized = append(normalized, role)
	}
	return normalized
}
