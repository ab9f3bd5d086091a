package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xh7/lua-chess-server/pkg/auth"
)

type mockPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func (m *mockPublisher) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, ev := range m.events {
		out = append(out, ev.Action)
	}
	return out
}

func newTestModerator() (*Moderator, *Registry, *Moderation, *fakeClock, *mockPublisher) {
	g := NewRegistry()
	st := NewModeration()
	clock := newFakeClock()
	st.SetClock(clock.Now)
	pub := &mockPublisher{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewModerator(log, g, st, pub), g, st, clock, pub
}

func TestModerator_ListRoomsAndDetails(t *testing.T) {
	mod, g, st, _, _ := newTestModerator()
	join(t, g, "r1", "1.1.1.1", RoleHost)
	join(t, g, "r1", "2.2.2.2", RoleViewer)
	join(t, g, "r2", "3.3.3.3", RoleViewer)
	st.Lock("r2", time.Minute)

	rooms := mod.ListRooms()
	assert.Equal(t, RoomSummary{Players: 1, Viewers: 1}, rooms["r1"])
	assert.Equal(t, RoomSummary{Players: 0, Viewers: 1, Locked: true}, rooms["r2"])

	all, err := mod.RoomDetails("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := mod.RoomDetails("r1")
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, "1.1.1.1", one[0].Players[0].IP)
	assert.Equal(t, "test-agent", one[0].Players[0].UserAgent)
	assert.NotEmpty(t, one[0].Players[0].Token)

	_, err = mod.RoomDetails("missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestModerator_CloseRoom(t *testing.T) {
	mod, g, st, clock, pub := newTestModerator()
	_, p1, _ := join(t, g, "r1", "1.1.1.1", RoleHost)
	_, p2, _ := join(t, g, "r1", "2.2.2.2", RoleViewer)
	_, other, _ := join(t, g, "r2", "3.3.3.3", RoleViewer)

	res, err := mod.CloseRoom(context.Background(), "r1", 60*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Closed)
	assert.False(t, res.LockedUntil.IsZero())

	for _, p := range []*mockPeer{p1, p2} {
		closed, code := p.closedWith()
		assert.True(t, closed)
		assert.Equal(t, CloseGoingAway, code)
		require.NotEmpty(t, p.frames())
		assert.Equal(t, SystemFrame(EventRoomClosed), p.frames()[0])
	}
	closed, _ := other.closedWith()
	assert.False(t, closed)

	_, ok := g.Snapshot("r1")
	assert.False(t, ok)
	assert.ErrorIs(t, st.Admit("r1", "9.9.9.9"), ErrRoomLocked)

	clock.Advance(60 * time.Second)
	assert.NoError(t, st.Admit("r1", "9.9.9.9"))
	assert.Equal(t, []string{"close"}, pub.actions())
}

func TestModerator_CloseMissingRoomStillLocks(t *testing.T) {
	mod, g, st, _, _ := newTestModerator()

	res, err := mod.CloseRoom(context.Background(), "future", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Closed)
	assert.True(t, st.IsLocked("future"))
	assert.Equal(t, 0, g.Len())
}

func TestModerator_CloseRoomValidation(t *testing.T) {
	mod, _, st, _, _ := newTestModerator()

	_, err := mod.CloseRoom(context.Background(), "  ", time.Minute)
	assert.ErrorIs(t, err, ErrRoomRequired)
	_, err = mod.CloseRoom(context.Background(), "r1", -time.Second)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	_, err = mod.CloseRoom(context.Background(), "r1", 0)
	require.NoError(t, err)
	assert.False(t, st.IsLocked("r1"), "no lock without lock seconds")
}

func TestModerator_BanEvictsAcrossRooms(t *testing.T) {
	mod, g, st, _, pub := newTestModerator()
	_, bad1, _ := join(t, g, "r1", "6.6.6.6", RoleHost)
	_, good, _ := join(t, g, "r1", "1.1.1.1", RoleClient)
	_, bad2, _ := join(t, g, "r2", "6.6.6.6", RoleViewer)

	res, err := mod.Ban(context.Background(), BanRequest{IP: "6.6.6.6"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Kicked)
	assert.True(t, res.Ban.Permanent())

	for _, p := range []*mockPeer{bad1, bad2} {
		closed, code := p.closedWith()
		assert.True(t, closed)
		assert.Equal(t, ClosePolicyViolation, code)
		assert.Contains(t, p.frames(), SystemFrame(EventBanned))
	}
	closed, _ := good.closedWith()
	assert.False(t, closed)

	assert.Equal(t, 1, g.Len(), "r2 purged")
	assert.True(t, st.IsBanned("6.6.6.6"))
	assert.Equal(t, []string{"ban"}, pub.actions())
}

func TestModerator_BanByToken(t *testing.T) {
	mod, g, st, clock, _ := newTestModerator()
	target, p, _ := join(t, g, "r1", "5.5.5.5", RoleViewer)

	res, err := mod.Ban(context.Background(), BanRequest{Token: target.Token, Duration: 10 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "5.5.5.5", res.IP)
	assert.Equal(t, 1, res.Kicked)
	closed, _ := p.closedWith()
	assert.True(t, closed)

	clock.Advance(10 * time.Second)
	assert.False(t, st.IsBanned("5.5.5.5"))
}

func TestModerator_BanErrors(t *testing.T) {
	mod, _, _, _, _ := newTestModerator()
	ctx := context.Background()

	_, err := mod.Ban(ctx, BanRequest{})
	assert.ErrorIs(t, err, ErrTargetRequired)
	_, err = mod.Ban(ctx, BanRequest{Token: "ghost"})
	assert.ErrorIs(t, err, ErrUnknownToken)
	_, err = mod.Ban(ctx, BanRequest{IP: "1.1.1.1", Duration: -time.Second})
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestModerator_Unban(t *testing.T) {
	mod, _, st, _, pub := newTestModerator()
	ctx := context.Background()

	_, err := mod.Ban(ctx, BanRequest{IP: "1.1.1.1"})
	require.NoError(t, err)
	assert.True(t, mod.Unban(ctx, "1.1.1.1"))
	assert.False(t, mod.Unban(ctx, "1.1.1.1"))
	assert.False(t, st.IsBanned("1.1.1.1"))
	assert.Equal(t, []string{"ban", "unban"}, pub.actions())
}

func TestModerator_Broadcast(t *testing.T) {
	mod, g, _, _, _ := newTestModerator()
	_, p1, _ := join(t, g, "r1", "1.1.1.1", RoleHost)
	_, p2, _ := join(t, g, "r2", "2.2.2.2", RoleViewer)
	_, broken, _ := join(t, g, "r2", "3.3.3.3", RoleViewer)
	broken.sendErr = errSend

	sent, err := mod.Broadcast(context.Background(), "  maintenance soon  ")
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	want := Frame{Type: TypeChat, Message: "maintenance soon", FromRole: "system"}
	assert.Equal(t, []Frame{want}, p1.frames())
	assert.Equal(t, []Frame{want}, p2.frames())
}

func TestModerator_BroadcastValidation(t *testing.T) {
	mod, _, _, _, _ := newTestModerator()
	ctx := context.Background()

	_, err := mod.Broadcast(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = mod.Broadcast(ctx, strings.Repeat("x", MaxMessageLen+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	sent, err := mod.Broadcast(ctx, strings.Repeat("x", MaxMessageLen))
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestModerator_EventCarriesActor(t *testing.T) {
	mod, _, _, _, pub := newTestModerator()
	pub.err = errors.New("redis down")

	ctx := auth.WithSubject(context.Background(), "ops")
	_, err := mod.CloseRoom(ctx, "r1", time.Minute)
	require.NoError(t, err, "publish failures are logged, not returned")

	require.Len(t, pub.events, 1)
	assert.Equal(t, "ops", pub.events[0].Actor)
	assert.Equal(t, "r1", pub.events[0].Room)
	assert.Equal(t, int64(60), pub.events[0].Seconds)
}
