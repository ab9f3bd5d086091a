package relay

// MaxPlayers is the number of host/client slots in a room
const MaxPlayers = 2

// Room holds the players and viewers of one room id.
// All methods expect Registry.mu to be held.
type Room struct {
	id      string
	players []*Entry
	viewers []*Entry
}

func newRoom(id string) *Room { return &Room{id: id} }

// Admission describes how an entry was placed in a room
type Admission struct {
	Room     string
	Role     Role
	Demoted  bool   // asked for a player slot, got viewer
	Replaced *Entry // previous holder of the same token, now detached
}

// join places e, reusing the slot of an existing entry with the same token
func (r *Room) join(e *Entry) Admission {
	adm := Admission{Room: r.id}

	if e.Token != "" {
		if i := indexOfToken(r.players, e.Token); i >= 0 {
			adm.Replaced = r.players[i]
			e.role = adm.Replaced.role
			r.players[i] = e
			adm.Role = e.role
			return adm
		}
		if i := indexOfToken(r.viewers, e.Token); i >= 0 {
			adm.Replaced = r.viewers[i]
			e.role = adm.Replaced.role
			r.viewers[i] = e
			adm.Role = e.role
			return adm
		}
	}

	if e.role.IsPlayer() {
		if len(r.players) < MaxPlayers {
			r.players = append(r.players, e)
			adm.Role = e.role
			return adm
		}
		adm.Demoted = true
	}
	e.role = RoleViewer
	r.viewers = append(r.viewers, e)
	adm.Role = RoleViewer
	return adm
}

// leave removes e by identity and reports whether it was present
func (r *Room) leave(e *Entry) bool {
	var ok bool
	if r.players, ok = without(r.players, e); ok {
		return true
	}
	r.viewers, ok = without(r.viewers, e)
	return ok
}

func (r *Room) has(e *Entry) bool {
	for _, m := range r.players {
		if m == e {
			return true
		}
	}
	for _, m := range r.viewers {
		if m == e {
			return true
		}
	}
	return false
}

func (r *Room) empty() bool { return len(r.players) == 0 && len(r.viewers) == 0 }

// members returns players then viewers in a fresh slice
func (r *Room) members() []*Entry {
	out := make([]*Entry, 0, len(r.players)+len(r.viewers))
	out = append(out, r.players...)
	return append(out, r.viewers...)
}

// dropIP removes every entry with ip and returns them
func (r *Room) dropIP(ip string) []*Entry {
	var out []*Entry
	keep := func(list []*Entry) []*Entry {
		kept := list[:0]
		for _, e := range list {
			if e.IP == ip {
				out = append(out, e)
				continue
			}
			kept = append(kept, e)
		}
		for i := len(kept); i < len(list); i++ {
			list[i] = nil
		}
		return kept
	}
	r.players = keep(r.players)
	r.viewers = keep(r.viewers)
	return out
}

// RoomSnapshot is a copy of a room's membership
type RoomSnapshot struct {
	ID      string      `json:"id"`
	Players []EntryInfo `json:"players"`
	Viewers []EntryInfo `json:"viewers"`
}

func (r *Room) snapshot() RoomSnapshot {
	s := RoomSnapshot{
		ID:      r.id,
		Players: make([]EntryInfo, 0, len(r.players)),
		Viewers: make([]EntryInfo, 0, len(r.viewers)),
	}
	for _, e := range r.players {
		s.Players = append(s.Players, e.info())
	}
	for _, e := range r.viewers {
		s.Viewers = append(s.Viewers, e.info())
	}
	return s
}

func indexOfToken(list []*Entry, token string) int {
	for i, e := range list {
		if e.Token == token {
			return i
		}
	}
	return -1
}

func without(list []*Entry, e *Entry) ([]*Entry, bool) {
	for i, m := range list {
		if m == e {
			copy(list[i:], list[i+1:])
			list[len(list)-1] = nil
			return list[:len(list)-1], true
		}
	}
	return list, false
}
