package relay

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the part a connection plays in a room
type Role string

const (
	RoleHost   Role = "host"
	RoleClient Role = "client"
	RoleViewer Role = "viewer"

	// roleSystem tags frames that originate from the server itself
	roleSystem Role = "system"
)

// ParseRole normalizes a requested role, anything unknown becomes viewer
func ParseRole(s string) Role {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleHost, RoleClient:
		return r
	default:
		return RoleViewer
	}
}

// IsPlayer reports whether the role occupies a player slot
func (r Role) IsPlayer() bool { return r == RoleHost || r == RoleClient }

// CloseCode is a websocket close status
type CloseCode int

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	ClosePolicyViolation CloseCode = 1008
)

// Peer is the live side of a connection.
// Send must not block; the registry calls it while holding its lock.
type Peer interface {
	Send(frame []byte) error
	Close(code CloseCode, reason string) error
}

// Entry is one connection's membership record in a room
type Entry struct {
	Token       string
	IP          string
	Port        string // client source port, empty when unknown
	UserAgent   string
	ConnectedAt time.Time

	role Role // guarded by Registry.mu
	peer Peer
}

// NewEntry builds an entry requesting role; the granted role is decided on Join
func NewEntry(peer Peer, token string, role Role, ip, userAgent string) *Entry {
	return &Entry{
		Token:       token,
		IP:          ip,
		UserAgent:   userAgent,
		ConnectedAt: time.Now().UTC(),
		role:        role,
		peer:        peer,
	}
}

// Send delivers one frame to the entry's connection
func (e *Entry) Send(frame []byte) error { return e.peer.Send(frame) }

// Close closes the entry's connection with code
func (e *Entry) Close(code CloseCode, reason string) error { return e.peer.Close(code, reason) }

// EntryInfo is a read-only copy of an entry for moderation views
type EntryInfo struct {
	Token       string    `json:"token"`
	Role        Role      `json:"role"`
	IP          string    `json:"ip"`
	Port        string    `json:"port,omitempty"`
	UserAgent   string    `json:"user_agent"`
	ConnectedAt time.Time `json:"connected_at"`
}

// info must be called with Registry.mu held
func (e *Entry) info() EntryInfo {
	return EntryInfo{
		Token:       e.Token,
		Role:        e.role,
		IP:          e.IP,
		Port:        e.Port,
		UserAgent:   e.UserAgent,
		ConnectedAt: e.ConnectedAt,
	}
}

// NewToken mints an opaque reconnection token (32 hex chars)
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
