package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/0xh7/lua-chess-server/internal/relay"
	"github.com/0xh7/lua-chess-server/pkg/metrics"
	"github.com/0xh7/lua-chess-server/pkg/ratelimit"
)

// DefaultRoom is used when the client names no room
const DefaultRoom = "default"

// Transport is what a session needs from its connection
type Transport interface {
	relay.Peer
	Read(ctx context.Context) ([]byte, error)
}

// JoinRequest is the connect-time input of a session
type JoinRequest struct {
	Room      string
	Role      string
	Token     string
	IP        string
	Port      string
	UserAgent string
}

type Options struct {
	GuardInterval time.Duration
	SendQueue     int
	TrustProxy    bool
}

type Hub struct {
	log      *slog.Logger
	registry *relay.Registry
	state    *relay.Moderation
	opts     Options
	sessions sync.WaitGroup // ServeWS calls still running, writer included
}

// NewHub sets up the session handler over a shared registry + moderation state
func NewHub(logger *slog.Logger, registry *relay.Registry, state *relay.Moderation, opts Options) *Hub {
	if opts.GuardInterval <= 0 {
		opts.GuardInterval = 750 * time.Millisecond
	}
	if opts.SendQueue <= 0 {
		opts.SendQueue = 256
	}
	return &Hub{log: logger, registry: registry, state: state, opts: opts}
}

// ServeWS handles a new /play connection
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	h.sessions.Add(1)
	defer h.sessions.Done()

	ctx := r.Context()
	q := r.URL.Query()
	req := JoinRequest{
		Room:      roomID(r.PathValue("room"), q.Get("room")),
		Role:      q.Get("role"),
		Token:     strings.TrimSpace(q.Get("token")),
		IP:        ratelimit.ClientIP(r, h.opts.TrustProxy),
		Port:      remotePort(r),
		UserAgent: userAgent(r),
	}

	ws, err := Accept(w, r)
	if err != nil {
		h.log.Error("ws.accept", "err", err)
		return
	}
	c := NewConn(ws, h.opts.SendQueue)

	// Outbound writer
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.WriteLoop(ctx)
	}()

	h.Serve(ctx, c, req)

	_ = c.Close(relay.CloseNormal, "bye")
	<-done
}

// Serve runs one session to completion. It returns once the transport is
// closed or fails, and the entry has been removed from its room.
func (h *Hub) Serve(ctx context.Context, t Transport, req JoinRequest) {
	log := h.log.With("room", req.Room, "ip", req.IP)

	// CONNECTING
	if err := h.state.Admit(req.Room, req.IP); err != nil {
		h.reject(log, t, err)
		return
	}

	// ADMITTED
	token := req.Token
	if token == "" {
		token = relay.NewToken()
	}
	entry := relay.NewEntry(t, token, relay.ParseRole(req.Role), req.IP, req.UserAgent)
	entry.Port = req.Port

	adm, err := h.registry.Join(req.Room, entry,
		func() error { return h.state.Admit(req.Room, req.IP) },
		func(adm relay.Admission) {
			// the token goes out before anything else can reach this peer
			_ = t.Send(relay.HelloFrame(req.Room, adm.Role, token).Encode())
			if adm.Demoted {
				_ = t.Send(relay.ErrorFrame(relay.ErrCodeRoomFull).Encode())
			}
		})
	if err != nil {
		h.reject(log, t, err)
		return
	}
	if adm.Replaced != nil {
		_ = adm.Replaced.Close(relay.CloseNormal, "session resumed")
	}

	metrics.Connections.Inc()
	log.Info("ws.admitted", "role", adm.Role, "demoted", adm.Demoted, "resumed", adm.Replaced != nil)

	// ACTIVE
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		// CLOSED
		cancel()
		if rec := recover(); rec != nil {
			log.Error("ws.panic", "panic", rec)
			_ = t.Close(relay.CloseGoingAway, "internal error")
		}
		_, deleted := h.registry.Leave(req.Room, entry)
		metrics.Connections.Dec()
		log.Info("ws.closed", "room_deleted", deleted)
	}()

	go h.guard(ctx, log, t, req.Room, entry)

	for {
		data, err := t.Read(ctx)
		if err != nil {
			return
		}
		if !h.handle(log, t, req.Room, entry, data) {
			return
		}
	}
}

// handle authorizes one inbound frame and fans it out; false ends the session
func (h *Hub) handle(log *slog.Logger, t Transport, room string, entry *relay.Entry, data []byte) bool {
	role, ok := h.registry.RoleOf(room, entry)
	if !ok {
		_ = t.Send(relay.ErrorFrame(relay.ErrCodeInvalidToken).Encode())
		_ = t.Close(relay.ClosePolicyViolation, "Invalid token")
		return false
	}

	out, reply := relay.Route(data, role)
	if reply != nil {
		metrics.Rejections.WithLabelValues("frame").Inc()
		log.Debug("ws.frame.rejected", "role", role)
		_ = t.Send(reply)
		return true
	}
	metrics.Frames.WithLabelValues(frameType(out)).Inc()

	for _, peer := range h.registry.Others(room, entry) {
		if err := peer.Send(out); err != nil {
			metrics.DroppedFrames.Inc()
		}
	}
	return true
}

// guard re-validates ban, lock and membership until ctx ends
func (h *Hub) guard(ctx context.Context, log *slog.Logger, t Transport, room string, entry *relay.Entry) {
	tick := time.NewTicker(h.opts.GuardInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}

		switch {
		case h.state.IsBanned(entry.IP):
			log.Info("ws.guard.banned")
			_ = t.Send(relay.SystemFrame(relay.EventBanned).Encode())
			_ = t.Close(relay.ClosePolicyViolation, "Banned")
			return
		case h.state.IsLocked(room):
			log.Info("ws.guard.locked")
			_ = t.Send(relay.SystemFrame(relay.EventRoomClosed).Encode())
			_ = t.Close(relay.CloseGoingAway, "Room closed")
			return
		}
		if _, ok := h.registry.RoleOf(room, entry); !ok {
			_ = t.Close(relay.ClosePolicyViolation, "Evicted")
			return
		}
	}
}

func (h *Hub) reject(log *slog.Logger, t Transport, err error) {
	reason := "admission"
	switch {
	case errors.Is(err, relay.ErrBanned):
		reason = "banned"
	case errors.Is(err, relay.ErrRoomLocked):
		reason = "locked"
	}
	metrics.Rejections.WithLabelValues(reason).Inc()
	log.Info("ws.rejected", "reason", reason)

	f := relay.RejectFrame(err)
	_ = t.Send(f.Encode())
	_ = t.Close(relay.ClosePolicyViolation, f.Error)
}

// Shutdown closes every live session with 1001. Call it after the listener
// has stopped so no session can be admitted behind it.
func (h *Hub) Shutdown() int {
	entries := h.registry.Drain()
	for _, e := range entries {
		_ = e.Close(relay.CloseGoingAway, "server shutting down")
	}
	return len(entries)
}

// Wait blocks until every ServeWS call has returned and its close frame
// has been written, or ctx ends
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func roomID(path, query string) string {
	for _, v := range []string{path, query} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return DefaultRoom
}

// remotePort is the peer's source port; behind a proxy it is the proxy's
func remotePort(r *http.Request) string {
	if _, port, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return port
	}
	return ""
}

func userAgent(r *http.Request) string {
	if ua := r.Header.Get("User-Agent"); ua != "" {
		return ua
	}
	return "unknown"
}

// frameType labels a relayed frame for metrics
func frameType(out []byte) string {
	in := relay.Decode(out)
	switch in.Type {
	case relay.TypeMove, relay.TypeChat, relay.TypeRaw:
		return in.Type
	}
	return "other"
}
