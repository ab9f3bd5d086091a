package relay

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/0xh7/lua-chess-server/pkg/auth"
	"github.com/0xh7/lua-chess-server/pkg/metrics"
)

// Event describes one moderation action for audit consumers
type Event struct {
	Action   string    `json:"action"`
	Actor    string    `json:"actor,omitempty"`
	Room     string    `json:"room,omitempty"`
	IP       string    `json:"ip,omitempty"`
	Seconds  int64     `json:"seconds,omitempty"`
	Affected int       `json:"affected"`
	At       time.Time `json:"at"`
}

// Publisher receives moderation events
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Moderator runs the admin operations against the registry and the
// moderation tables. Authorization happens before any call reaches it.
type Moderator struct {
	log      *slog.Logger
	registry *Registry
	state    *Moderation
	events   Publisher // optional
}

// NewModerator wires the moderation actor; events may be nil
func NewModerator(logger *slog.Logger, registry *Registry, state *Moderation, events Publisher) *Moderator {
	return &Moderator{log: logger, registry: registry, state: state, events: events}
}

// RoomSummary is the list_rooms view of one room
type RoomSummary struct {
	Players int  `json:"players"`
	Viewers int  `json:"viewers"`
	Locked  bool `json:"locked"`
}

// ListRooms counts members per room
func (m *Moderator) ListRooms() map[string]RoomSummary {
	out := map[string]RoomSummary{}
	for _, s := range m.registry.List() {
		out[s.ID] = RoomSummary{
			Players: len(s.Players),
			Viewers: len(s.Viewers),
			Locked:  m.state.IsLocked(s.ID),
		}
	}
	return out
}

// RoomDetails lists the entries of roomID, or of every room when empty
func (m *Moderator) RoomDetails(roomID string) ([]RoomSnapshot, error) {
	if roomID == "" {
		return m.registry.List(), nil
	}
	s, ok := m.registry.Snapshot(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return []RoomSnapshot{s}, nil
}

// Bans returns the active bans and room locks
func (m *Moderator) Bans() ([]Ban, []Lock) { return m.state.Bans(), m.state.Locks() }

// CloseResult reports a close_room call
type CloseResult struct {
	Room        string    `json:"room"`
	Closed      int       `json:"closed"`
	LockedUntil time.Time `json:"locked_until,omitzero"`
}

// CloseRoom disconnects every member of roomID with 1001 and removes the
// room. A positive lock keeps it closed; the lock is installed even when
// the room does not exist yet.
func (m *Moderator) CloseRoom(ctx context.Context, roomID string, lock time.Duration) (CloseResult, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return CloseResult{}, ErrRoomRequired
	}
	if lock < 0 {
		return CloseResult{}, ErrInvalidDuration
	}

	res := CloseResult{Room: roomID}
	if lock > 0 {
		res.LockedUntil = m.state.Lock(roomID, lock)
	}
	members := m.registry.Remove(roomID)
	notice := SystemFrame(EventRoomClosed).Encode()
	for _, e := range members {
		_ = e.Send(notice)
		_ = e.Close(CloseGoingAway, "Room closed")
	}
	res.Closed = len(members)

	m.log.Info("admin.close", "room", roomID, "closed", res.Closed, "lock", lock)
	m.publish(ctx, Event{Action: "close", Room: roomID, Seconds: int64(lock / time.Second), Affected: res.Closed})
	return res, nil
}

// BanRequest targets an ip directly or through a live token
type BanRequest struct {
	IP       string
	Token    string
	Duration time.Duration // 0 bans permanently
}

// BanResult reports a ban call
type BanResult struct {
	IP     string `json:"ip"`
	Kicked int    `json:"kicked"`
	Ban    Ban    `json:"ban"`
}

// Ban records a ban and evicts every connection from that ip with 1008
func (m *Moderator) Ban(ctx context.Context, req BanRequest) (BanResult, error) {
	if req.Duration < 0 {
		return BanResult{}, ErrInvalidDuration
	}
	ip := strings.TrimSpace(req.IP)
	if ip == "" {
		token := strings.TrimSpace(req.Token)
		if token == "" {
			return BanResult{}, ErrTargetRequired
		}
		var ok bool
		if ip, ok = m.registry.IPForToken(token); !ok {
			return BanResult{}, ErrUnknownToken
		}
	}

	// install before the scan so a concurrent Join either sees the ban or gets evicted
	b := m.state.Ban(ip, req.Duration)
	evicted := m.registry.EvictIP(ip)
	notice := SystemFrame(EventBanned).Encode()
	for _, e := range evicted {
		_ = e.Send(notice)
		_ = e.Close(ClosePolicyViolation, "Banned")
	}

	m.log.Info("admin.ban", "ip", ip, "kicked", len(evicted), "permanent", b.Permanent())
	m.publish(ctx, Event{Action: "ban", IP: ip, Seconds: int64(req.Duration / time.Second), Affected: len(evicted)})
	return BanResult{IP: ip, Kicked: len(evicted), Ban: b}, nil
}

// Unban lifts a ban and reports whether one existed
func (m *Moderator) Unban(ctx context.Context, ip string) bool {
	ip = strings.TrimSpace(ip)
	existed := m.state.Unban(ip)
	m.log.Info("admin.unban", "ip", ip, "existed", existed)
	if existed {
		m.publish(ctx, Event{Action: "unban", IP: ip})
	}
	return existed
}

// Broadcast sends a system chat line to every connection and returns
// how many sends succeeded
func (m *Moderator) Broadcast(ctx context.Context, message string) (int, error) {
	text, err := CheckMessage(message)
	if err != nil {
		return 0, err
	}

	frame := Frame{Type: TypeChat, Message: text, FromRole: roleSystem}.Encode()
	sent := 0
	for _, e := range m.registry.All() {
		if err := e.Send(frame); err != nil {
			metrics.DroppedFrames.Inc()
			continue
		}
		sent++
	}

	m.log.Info("admin.broadcast", "sent", sent)
	m.publish(ctx, Event{Action: "broadcast", Affected: sent})
	return sent, nil
}

func (m *Moderator) publish(ctx context.Context, ev Event) {
	metrics.ModerationActions.WithLabelValues(ev.Action).Inc()
	if m.events == nil {
		return
	}
	ev.Actor = auth.Subject(ctx)
	ev.At = time.Now().UTC()
	if err := m.events.Publish(ctx, ev); err != nil {
		m.log.Warn("admin.event.publish", "action", ev.Action, "err", err)
	}
}
