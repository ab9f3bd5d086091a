package relay

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Ban denies an ip; a zero Until means permanent
type Ban struct {
	IP        string    `json:"ip"`
	Until     time.Time `json:"until,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

// Permanent reports whether the ban never expires
func (b Ban) Permanent() bool { return b.Until.IsZero() }

func (b Ban) active(now time.Time) bool { return b.Until.IsZero() || now.Before(b.Until) }

// maxSeconds is the largest whole-second count a time.Duration can hold
const maxSeconds = math.MaxInt64 / int64(time.Second)

// Seconds converts a moderation request's seconds field to a duration
func Seconds(n int64) (time.Duration, error) {
	if n < 0 || n > maxSeconds {
		return 0, ErrInvalidDuration
	}
	return time.Duration(n) * time.Second, nil
}

// Lock denies joins to a room until Until
type Lock struct {
	Room  string    `json:"room"`
	Until time.Time `json:"until"`
}

// Moderation holds the ban and room-lock tables. Expired records are
// purged lazily by whichever read notices them.
type Moderation struct {
	mu    sync.Mutex
	bans  map[string]Ban
	locks map[string]time.Time
	now   func() time.Time
}

// NewModeration returns empty tables using the wall clock
func NewModeration() *Moderation {
	return &Moderation{bans: map[string]Ban{}, locks: map[string]time.Time{}, now: time.Now}
}

// SetClock replaces the clock, used by tests
func (m *Moderation) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Ban records a ban on ip for d, or forever when d is 0
func (m *Moderation) Ban(ip string, d time.Duration) Ban {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b := Ban{IP: ip, CreatedAt: now}
	if d > 0 {
		b.Until = now.Add(d)
	}
	m.bans[ip] = b
	return b
}

// Unban removes any ban on ip and reports whether one was active
func (m *Moderation) Unban(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bans[ip]
	delete(m.bans, ip)
	return ok && b.active(m.now())
}

// IsBanned reports whether ip has an active ban
func (m *Moderation) IsBanned(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.bans[ip]
	if !ok {
		return false
	}
	if !b.active(m.now()) {
		delete(m.bans, ip)
		return false
	}
	return true
}

// Bans returns the active bans sorted by ip
func (m *Moderation) Bans() []Ban {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Ban, 0, len(m.bans))
	for ip, b := range m.bans {
		if !b.active(now) {
			delete(m.bans, ip)
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IP < out[j].IP })
	return out
}

// Lock blocks joins to roomID for d and returns the expiry
func (m *Moderation) Lock(roomID string, d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()

	until := m.now().Add(d)
	m.locks[roomID] = until
	return until
}

// IsLocked reports whether roomID has an active lock
func (m *Moderation) IsLocked(roomID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	until, ok := m.locks[roomID]
	if !ok {
		return false
	}
	if !m.now().Before(until) {
		delete(m.locks, roomID)
		return false
	}
	return true
}

// Locks returns the active room locks sorted by room
func (m *Moderation) Locks() []Lock {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	out := make([]Lock, 0, len(m.locks))
	for id, until := range m.locks {
		if !now.Before(until) {
			delete(m.locks, id)
			continue
		}
		out = append(out, Lock{Room: id, Until: until})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// Admit returns ErrRoomLocked or ErrBanned when a join must be refused
func (m *Moderation) Admit(roomID, ip string) error {
	if m.IsLocked(roomID) {
		return ErrRoomLocked
	}
	if m.IsBanned(ip) {
		return ErrBanned
	}
	return nil
}
