package relay

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

type mockPeer struct {
	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	code    CloseCode
	sendErr error
}

func (m *mockPeer) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockPeer) Close(code CloseCode, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.code = code
	}
	return nil
}

func (m *mockPeer) frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Frame, 0, len(m.sent))
	for _, b := range m.sent {
		var f Frame
		_ = json.Unmarshal(b, &f)
		out = append(out, f)
	}
	return out
}

func (m *mockPeer) closedWith() (bool, CloseCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, m.code
}

var errSend = errors.New("send failed")

// fakeClock is a settable clock for expiry tests
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// join is a test helper placing a new entry in room
func join(t *testing.T, g *Registry, room, ip string, role Role) (*Entry, *mockPeer, Admission) {
	t.Helper()
	p := &mockPeer{}
	e := NewEntry(p, NewToken(), role, ip, "test-agent")
	adm, err := g.Join(room, e, nil, nil)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	return e, p, adm
}
