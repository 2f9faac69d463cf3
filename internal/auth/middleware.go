package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Middleware authenticates bearer tokens and enforces role permissions.
type Middleware struct {
	Tokens *Tokens
	Logger *slog.Logger
}

// Authenticate resolves the bearer token into an actor on the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}
		actor, err := m.Tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			if m.Logger != nil {
				m.Logger.Debug("reject token", slog.Any("error", err))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// Require ensures the current actor's role grants perm.
func (m Middleware) Require(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
				return
			}
			if !shared.HasPermission(actor.Role, perm) {
				if m.Logger != nil {
					m.Logger.Warn("permission denied",
						slog.Int64("actor_id", actor.ID),
						slog.String("role", actor.Role),
						slog.String("permission", perm))
				}
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing permission "+perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var _ shared.PermissionGuard = Middleware{}
