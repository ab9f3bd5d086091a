package httpx

import (
	"net/http"

	"github.com/0xh7/lua-chess-server/internal/app"
	"github.com/0xh7/lua-chess-server/internal/relay"
	"github.com/0xh7/lua-chess-server/internal/ws"
	"github.com/0xh7/lua-chess-server/pkg/auth"
	"github.com/0xh7/lua-chess-server/pkg/metrics"
)

// NewRouter wires up all HTTP routes, middleware, and handlers
func NewRouter(cfg app.Config, hub *ws.Hub, mod *relay.Moderator) http.Handler {
	authz := auth.NewAuthorizer(cfg.AdminKey)
	mw := NewMiddleware(cfg, authz)
	api := &AdminAPI{Mod: mod, JWT: authz.JWT(), TokenTTL: cfg.AdminTokenTTL}

	mux := http.NewServeMux()

	// Banner / health / readiness / metrics
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"message": "Chess relay is running"})
	})
	mux.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(200) }))
	mux.Handle("/metrics", metrics.Handler())

	// WebSocket endpoints
	mux.HandleFunc("GET /play", hub.ServeWS)
	mux.HandleFunc("GET /play/{room}", hub.ServeWS)

	// Moderation endpoints (admin key or admin JWT)
	admin := func(h http.HandlerFunc) http.Handler { return mw.Admin(h) }
	mux.Handle("POST /admin/token", admin(api.Token))
	mux.Handle("GET /admin/rooms", admin(api.Rooms))
	mux.Handle("GET /admin/details", admin(api.Details))
	mux.Handle("GET /admin/bans", admin(api.Bans))
	mux.Handle("POST /admin/broadcast", admin(api.Broadcast))
	mux.Handle("POST /admin/close", admin(api.Close))
	mux.Handle("POST /admin/ban", admin(api.Ban))
	mux.Handle("POST /admin/unban", admin(api.Unban))

	return mw.Wrap(mux) // CORS + rate limit applied globally
}
