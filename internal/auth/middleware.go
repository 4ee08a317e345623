package auth

import (
	"net/http"
	"strings"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

// Middleware extracts the access token from the Authorization header or,
// failing that, from the access cookie.
type Middleware struct {
	Service      *Service
	AccessCookie string
}

// Authenticate attaches user identity to the context when a valid token is
// present. Requests without a token pass through anonymously.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.extractToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		id, roles, err := m.Service.ParseAccessToken(token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := common.WithUserID(r.Context(), id.String())
		ctx = common.WithUserRole(ctx, strings.Join(roles, ","))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects requests that carry no valid token.
func (m *Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.UserID(r.Context()); !ok {
			common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole rejects authenticated requests whose token lacks the role.
func (m *Middleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := common.UserRole(r.Context())
			if !ok || !HasRole(strings.Split(raw, ","), role) {
				common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient role", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if m.AccessCookie == "" {
		return ""
	}
	cookie, err := r.Cookie(m.AccessCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}
