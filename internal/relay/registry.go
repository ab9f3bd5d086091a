package relay

import (
	"sort"
	"sync"

	"github.com/0xh7/lua-chess-server/pkg/metrics"
)

// Registry maps room ids to rooms. One mutex covers the map and every
// room's membership, so slot assignment and empty-room deletion are atomic.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Room    // never holds an empty room
	tokens map[string]tokenRef // live token -> its only entry
}

type tokenRef struct {
	room  string
	entry *Entry
}

// NewRegistry returns an empty registry
func NewRegistry() *Registry {
	return &Registry{rooms: map[string]*Room{}, tokens: map[string]tokenRef{}}
}

// getOrCreate returns the room for id, creating it if needed. Caller holds mu.
func (g *Registry) getOrCreate(id string) *Room {
	rm := g.rooms[id]
	if rm == nil {
		rm = newRoom(id)
		g.rooms[id] = rm
		g.observe()
	}
	return rm
}

// Join admits e into roomID. admit runs first under the lock and can veto;
// greet runs after placement but before any other goroutine can see e.
// A token live in another room is moved: the old entry is detached there
// and returned as Replaced, so a token never has two live entries.
func (g *Registry) Join(roomID string, e *Entry, admit func() error, greet func(Admission)) (Admission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if admit != nil {
		if err := admit(); err != nil {
			return Admission{}, err
		}
	}
	var moved *Entry
	if ref, ok := g.tokens[e.Token]; ok && ref.room != roomID {
		if rm := g.rooms[ref.room]; rm != nil && rm.leave(ref.entry) {
			moved = ref.entry
			g.removeIfEmpty(ref.room)
		}
	}
	adm := g.getOrCreate(roomID).join(e)
	if moved != nil {
		adm.Replaced = moved
	}
	if e.Token != "" {
		g.tokens[e.Token] = tokenRef{room: roomID, entry: e}
	}
	if greet != nil {
		greet(adm)
	}
	return adm, nil
}

// Leave removes e from roomID and deletes the room if that emptied it
func (g *Registry) Leave(roomID string, e *Entry) (left, deleted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm := g.rooms[roomID]
	if rm == nil || !rm.leave(e) {
		return false, false
	}
	g.forget(e)
	return true, g.removeIfEmpty(roomID)
}

// RemoveIfEmpty deletes roomID if it has no members
func (g *Registry) RemoveIfEmpty(roomID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removeIfEmpty(roomID)
}

func (g *Registry) removeIfEmpty(roomID string) bool {
	rm := g.rooms[roomID]
	if rm == nil || !rm.empty() {
		return false
	}
	delete(g.rooms, roomID)
	g.observe()
	return true
}

// RoleOf returns e's current role, false if e is no longer in roomID
func (g *Registry) RoleOf(roomID string, e *Entry) (Role, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm := g.rooms[roomID]
	if rm == nil || !rm.has(e) {
		return "", false
	}
	return e.role, true
}

// Others returns every member of roomID except sender
func (g *Registry) Others(roomID string, sender *Entry) []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm := g.rooms[roomID]
	if rm == nil {
		return nil
	}
	out := rm.members()
	for i, e := range out {
		if e == sender {
			return append(out[:i], out[i+1:]...)
		}
	}
	return out
}

// List returns a snapshot of every room, sorted by id
func (g *Registry) List() []RoomSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]RoomSnapshot, 0, len(g.rooms))
	for _, rm := range g.rooms {
		out = append(out, rm.snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot returns a copy of one room
func (g *Registry) Snapshot(roomID string) (RoomSnapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm := g.rooms[roomID]
	if rm == nil {
		return RoomSnapshot{}, false
	}
	return rm.snapshot(), true
}

// Remove deletes roomID and hands back its former members
func (g *Registry) Remove(roomID string) []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	rm := g.rooms[roomID]
	if rm == nil {
		return nil
	}
	delete(g.rooms, roomID)
	g.observe()
	out := rm.members()
	for _, e := range out {
		g.forget(e)
	}
	return out
}

// EvictIP detaches every entry with ip across all rooms and purges emptied rooms
func (g *Registry) EvictIP(ip string) []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*Entry
	for id, rm := range g.rooms {
		for _, e := range rm.dropIP(ip) {
			g.forget(e)
			out = append(out, e)
		}
		if rm.empty() {
			delete(g.rooms, id)
		}
	}
	g.observe()
	return out
}

// IPForToken returns the ip of the live entry holding token
func (g *Registry) IPForToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	ref, ok := g.tokens[token]
	if !ok {
		return "", false
	}
	return ref.entry.IP, true
}

// All returns every entry in every room
func (g *Registry) All() []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*Entry
	for _, rm := range g.rooms {
		out = append(out, rm.members()...)
	}
	return out
}

// Drain empties the registry and returns every former member
func (g *Registry) Drain() []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []*Entry
	for _, rm := range g.rooms {
		out = append(out, rm.members()...)
	}
	g.rooms = map[string]*Room{}
	g.tokens = map[string]tokenRef{}
	g.observe()
	return out
}

// Len returns the number of live rooms
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// forget drops e's token index entry unless a newer entry took the token over
func (g *Registry) forget(e *Entry) {
	if ref, ok := g.tokens[e.Token]; ok && ref.entry == e {
		delete(g.tokens, e.Token)
	}
}

func (g *Registry) observe() { metrics.Rooms.Set(float64(len(g.rooms))) }
