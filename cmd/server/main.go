package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	app "github.com/0xh7/lua-chess-server/internal/app"
	events "github.com/0xh7/lua-chess-server/internal/events"
	httpx "github.com/0xh7/lua-chess-server/internal/http"
	relay "github.com/0xh7/lua-chess-server/internal/relay"
	ws "github.com/0xh7/lua-chess-server/internal/ws"
)

func main() {
	// Load local .env (dev only)
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger := app.NewLogger(cfg.Env, cfg.LogLevel)
	logger.Info("config", "cfg", cfg.String())

	// Cancel on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Optional redis stream for moderation audit events
	var pub relay.Publisher
	if cfg.RedisAddr != "" {
		bus, err := events.NewRedisBus(ctx, cfg, logger)
		if err != nil {
			logger.Error("redis connect", "err", err)
			log.Fatal(err)
		}
		defer bus.Close()
		pub = bus
	}

	// Shared room + moderation state
	registry := relay.NewRegistry()
	state := relay.NewModeration()
	mod := relay.NewModerator(logger, registry, state, pub)

	// WebSocket session handler
	hub := ws.NewHub(logger, registry, state, ws.Options{
		GuardInterval: cfg.GuardInterval,
		SendQueue:     cfg.SendQueue,
		TrustProxy:    cfg.TrustProxy,
	})

	// HTTP + WS router
	router := httpx.NewRouter(cfg, hub, mod)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start server
	go func() {
		logger.Info("server.listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server.crash", "err", err)
			cancel()
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("server.shutdown.start")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()

	// stop accepting first; hijacked websockets are not tracked by srv.Shutdown
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server.shutdown.http", "err", err)
	}
	closed := hub.Shutdown()
	logger.Info("server.shutdown.sessions", "closed", closed)
	if err := hub.Wait(shutdownCtx); err != nil {
		logger.Warn("server.shutdown.sessions.timeout", "err", err)
	}

	logger.Info("server.shutdown.complete")
	_ = os.Stdout.Sync()
}
