package jwt

import (
	"encoding/json"
	"net/http"

	"pet-tracker/internal/domain/user"
)

// AuthMiddlewareFunc validates tokens and injects claims into the request context. Used for HTTP routes.
func AuthMiddlewareFunc(mgr *Manager, allowedRoles ...user.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			// extract token from Authorization header
			raw, err := FromAuthorization(r)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err)
				return
			}

			// parse and validate token
			_, claims, err := mgr.ParseAndValidate(raw)
			if err != nil {
				writeAuthError(w, http.StatusUnauthorized, err)
				return
			}

			// enforce role-based access control (RBAC)
			if err := RoleAllowed(claims, allowedRoles...); err != nil {
				writeAuthError(w, http.StatusForbidden, err)
				return
			}

			ctx := InjectClaims(r.Context(), claims)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireClaims extracts JWT claims from the request context.
func RequireClaims(r *http.Request) *Claims {
	c, _ := FromContext(r.Context())
	return c
}

func writeAuthError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
