package handler

import (
	"net/http"
	"strings"

	"github.com/boddenberg/contribution-bfa-go/internal/domain"
	"github.com/boddenberg/contribution-bfa-go/internal/infra/session"

	"go.uber.org/zap"
)

// SessionMiddleware reads an optional Bearer token and stores the session
// state in the request context. The contribution flow is public until the
// access gate runs, so a missing or invalid token is an anonymous session,
// not a 401.
func SessionMiddleware(sessions *session.Provider, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := &domain.SessionState{}

			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
					logger.Warn("session: invalid token format",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
					)
				} else if st, err := sessions.Parse(parts[1]); err != nil {
					logger.Warn("session: invalid or expired token",
						zap.String("path", r.URL.Path),
						zap.String("remote_addr", r.RemoteAddr),
						zap.Error(err),
					)
				} else {
					state = st
				}
			}

			ctx := session.WithState(r.Context(), state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
