package httpx

import (
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/0xh7/lua-chess-server/internal/app"
	"github.com/0xh7/lua-chess-server/pkg/auth"
	"github.com/0xh7/lua-chess-server/pkg/ratelimit"
)

// AdminKeyHeader carries the shared moderation key
const AdminKeyHeader = "X-Admin-Key"

type Middleware struct {
	cors   *cors.Cors
	auth   *auth.Authorizer
	rlimit *ratelimit.Limiter
}

// NewMiddleware builds the shared middleware stack from config
func NewMiddleware(cfg app.Config, authz *auth.Authorizer) *Middleware {
	return &Middleware{
		cors: cors.New(cors.Options{
			AllowedOrigins:   cfg.CORSAllow,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}),
		auth:   authz,
		rlimit: ratelimit.New(cfg.RateLimit, cfg.RateWindow, cfg.TrustProxy),
	}
}

// Wrap applies CORS + rate limiting to a handler
func (m *Middleware) Wrap(h http.Handler) http.Handler {
	return m.cors.Handler(m.rlimit.Middleware(h))
}

// Admin enforces the moderation credential; every failure looks the same
func (m *Middleware) Admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bearer := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if bearer == r.Header.Get("Authorization") {
			bearer = ""
		}
		sub, ok := m.auth.Authorize(r.Header.Get(AdminKeyHeader), bearer)
		if !ok {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		// Pass along the moderator for audit events
		next.ServeHTTP(w, r.WithContext(auth.WithSubject(r.Context(), sub)))
	})
}
