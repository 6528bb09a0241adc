package httpapi

import (
	"context"
	"net/http"

	"github.com/chattrix/chattrix/internal/token"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the access claims attached by RequireAuth.
func ClaimsFromContext(ctx context.Context) (*token.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*token.AccessClaims)
	return claims, ok
}

// RequireAuth admits only requests carrying a valid access cookie and
// attaches the parsed claims to the request context.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(accessCookie)
		if err != nil || cookie.Value == "" {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		claims, err := s.auth.ParseAccess(cookie.Value)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
