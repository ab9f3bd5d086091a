package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/0xh7/lua-chess-server/internal/relay"
	"github.com/0xh7/lua-chess-server/pkg/auth"
)

type AdminAPI struct {
	Mod      *relay.Moderator
	JWT      *auth.JWT
	TokenTTL time.Duration
}

type broadcastReq struct {
	Message string `json:"message"`
}
type closeReq struct {
	Room        string `json:"room"`
	LockSeconds int64  `json:"lock_seconds"`
}
type banReq struct {
	IP      string `json:"ip"`
	Token   string `json:"token"`
	Seconds int64  `json:"seconds"`
}
type unbanReq struct {
	IP string `json:"ip"`
}
type tokenResp struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token exchanges the admin key for a short-lived bearer token
func (a *AdminAPI) Token(w http.ResponseWriter, r *http.Request) {
	tok, err := a.JWT.Sign(auth.Subject(r.Context()), a.TokenTTL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, tokenResp{Token: tok, ExpiresAt: time.Now().Add(a.TokenTTL).UTC()})
}

// Rooms lists member counts per room
func (a *AdminAPI) Rooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.Mod.ListRooms())
}

// Details lists every entry of one room (?room=) or of all rooms
func (a *AdminAPI) Details(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.Mod.RoomDetails(r.URL.Query().Get("room"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make(map[string]relay.RoomSnapshot, len(rooms))
	for _, s := range rooms {
		out[s.ID] = s
	}
	writeJSON(w, out)
}

// Bans lists active bans and room locks
func (a *AdminAPI) Bans(w http.ResponseWriter, _ *http.Request) {
	bans, locks := a.Mod.Bans()
	writeJSON(w, map[string]any{"bans": bans, "locks": locks})
}

// Broadcast sends a system chat line to every connection
func (a *AdminAPI) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastReq
	if !readJSON(w, r, &req) {
		return
	}
	sent, err := a.Mod.Broadcast(r.Context(), req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"message": req.Message, "sent": sent})
}

// Close disconnects a room and optionally locks it
func (a *AdminAPI) Close(w http.ResponseWriter, r *http.Request) {
	var req closeReq
	if !readJSON(w, r, &req) {
		return
	}
	lock, err := relay.Seconds(req.LockSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.Mod.CloseRoom(r.Context(), req.Room, lock)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

// Ban bans an ip (or the ip behind a token) and kicks its connections
func (a *AdminAPI) Ban(w http.ResponseWriter, r *http.Request) {
	var req banReq
	if !readJSON(w, r, &req) {
		return
	}
	d, err := relay.Seconds(req.Seconds)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := a.Mod.Ban(r.Context(), relay.BanRequest{
		IP:       req.IP,
		Token:    req.Token,
		Duration: d,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, res)
}

// Unban lifts a ban
func (a *AdminAPI) Unban(w http.ResponseWriter, r *http.Request) {
	var req unbanReq
	if !readJSON(w, r, &req) {
		return
	}
	if req.IP == "" {
		http.Error(w, "ip required", http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{"ip": req.IP, "existed": a.Mod.Unban(r.Context(), req.IP)})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(v); err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps relay errors to status codes
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, relay.ErrRoomNotFound), errors.Is(err, relay.ErrUnknownToken):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, relay.ErrEmptyMessage),
		errors.Is(err, relay.ErrMessageTooLong),
		errors.Is(err, relay.ErrRoomRequired),
		errors.Is(err, relay.ErrTargetRequired),
		errors.Is(err, relay.ErrInvalidDuration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// send JSON with proper headers
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
