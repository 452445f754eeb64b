package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/status-im/credential-host/server/jwt"
)

type contextKey int

const subjectKey contextKey = iota

// subject returns the token subject of an authenticated request
func subject(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// requireAdmin rejects requests without a valid admin token
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			w.Header().Set("WWW-Authenticate", `Bearer realm="credhost"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := jwt.VerifyScope(token, s.config.JWTSecret, jwt.ScopeAdmin)
		switch {
		case errors.Is(err, jwt.ErrInsufficientScope):
			writeError(w, http.StatusForbidden, err.Error())
			return
		case err != nil:
			s.logger.Debug("Rejected admin token", "error", err)
			w.Header().Set("WWW-Authenticate", `Bearer realm="credhost", error="invalid_token"`)
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// observe records one metric and one log line per request, labelled with
// the route pattern rather than the raw path
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if route == s.metricsPath {
			return
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		s.metrics.RecordAPIRequest(route, status)
		s.logger.Debug("Admin API request",
			"method", r.Method,
			"route", route,
			"status", status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
