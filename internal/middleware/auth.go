// Package middleware provides HTTP middleware for the feed service.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/memefeed-labs/memefeed/internal/errors"
	"github.com/memefeed-labs/memefeed/internal/logging"
	"github.com/memefeed-labs/memefeed/internal/session"
)

type sessionContextKey string

// SessionContextKey carries the validated session claims on the request
// context.
const SessionContextKey sessionContextKey = "session_claims"

// SessionMiddleware validates bearer session tokens and places the claims on
// the request context.
type SessionMiddleware struct {
	sessions *session.Manager
	logger   *logging.Logger
}

// NewSessionMiddleware creates a session validation middleware.
func NewSessionMiddleware(sessions *session.Manager, logger *logging.Logger) *SessionMiddleware {
	if logger == nil {
		logger = logging.NewDefault("middleware")
	}
	return &SessionMiddleware{sessions: sessions, logger: logger}
}

// Handler returns the middleware handler.
func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, errors.InvalidToken(nil))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			respondError(w, errors.InvalidToken(nil))
			return
		}

		claims, err := m.sessions.Validate(parts[1])
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Warn("session validation failed")
			respondError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, claims)
		ctx = context.WithValue(ctx, logging.UserIDKey, claims.UserID)
		ctx = context.WithValue(ctx, logging.RoomIDKey, claims.RoomID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext returns the validated claims placed by the middleware.
func SessionFromContext(ctx context.Context) (*session.Claims, bool) {
	claims, ok := ctx.Value(SessionContextKey).(*session.Claims)
	return claims, ok
}

func respondError(w http.ResponseWriter, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("internal error", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(svcErr.HTTPStatus)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":    svcErr.Code,
			"message": svcErr.Message,
		},
	})
}
