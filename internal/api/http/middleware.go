package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"clubledger-backend/internal/config"
	"clubledger-backend/internal/domain"
	"clubledger-backend/internal/logger"
	"clubledger-backend/internal/security"

	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

type ctxKey int

const actorKey ctxKey = iota

func ContextWithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(domain.Actor)
	return actor, ok
}

// AuthMiddleware authenticates and authorizes matched routes using the
// endpoint security table keyed by the route's path template.
type AuthMiddleware struct {
	tokenManager security.TokenManager
}

func NewAuthMiddleware(tm security.TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokenManager: tm}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		template := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				template = t
			}
		}
		sec := config.GetEndpointSecurity(r.Method, template)

		// Public endpoint - skip auth
		if sec.Level == config.SecurityPublic {
			next.ServeHTTP(w, r)
			return
		}

		token := extractToken(r)
		if token == "" {
			respondError(w, http.StatusUnauthorized, CodeUnauthorized, "authorization token is not provided", nil)
			return
		}
		claims, err := m.tokenManager.ValidateToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, CodeUnauthorized, err.Error(), nil)
			return
		}
		if !sec.Allows(claims.Role) {
			logger.Warn("Role not allowed for endpoint", "method", r.Method, "route", template, "role", claims.Role, "userID", claims.UserID)
			respondError(w, http.StatusForbidden, CodeForbidden, "forbidden", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithActor(r.Context(), claims.Actor())))
	})
}

func extractToken(r *http.Request) string {
	token := r.Header.Get("Authorization")
	// Remove Bearer prefix if present
	if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
		token = token[7:]
	}
	return strings.TrimSpace(token)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs each request and turns handler panics into 500s.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				logger.Error("Handler panic", "method", r.Method, "path", r.URL.Path, "panic", p)
				respondError(rec, http.StatusInternalServerError, CodeInternal, "internal error", nil)
			}
			logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		}()
		next.ServeHTTP(rec, r)
	})
}

// RateLimit rejects requests beyond the limiter's budget with 429.
func RateLimit(limiter *rate.Limiter, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", retryAfterSeconds)
			respondError(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests", nil)
			return
		}
		next(w, r)
	}
}
