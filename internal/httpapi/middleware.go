package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/parley/chat-server/internal/auth"
)

type ctxKey int

const principalKey ctxKey = 0

// requireAuth verifies the Authorization: Bearer header and stores the
// resolved principal on the request context. Requests without a valid token
// get a 401 with the standard error envelope.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		p, err := s.tokens.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), principalKey, p)))
	})
}

// principalFrom returns the authenticated principal stored by requireAuth.
func principalFrom(r *http.Request) *auth.Principal {
	p, _ := r.Context().Value(principalKey).(*auth.Principal)
	return p
}
