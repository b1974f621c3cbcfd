package auth

import (
	"net/http"
	"strings"

	"github.com/example/video-platform/internal/platform/api"
	"github.com/example/video-platform/internal/platform/httpserver"
)

const RoleAdmin = "admin"

// RequireRole allows the request only if RequireUser put a matching role
// claim into the context. Roles compare case-insensitively.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ := RoleFromContext(r.Context())
			if !strings.EqualFold(strings.TrimSpace(got), role) {
				api.Forbidden(w, api.CodeForbidden, role+" role required", httpserver.RequestIDFromContext(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin guards catalog administration such as category creation.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireRole(RoleAdmin)(next)
}
