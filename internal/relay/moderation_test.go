package relay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeration_Bans(t *testing.T) {
	clock := newFakeClock()
	m := NewModeration()
	m.SetClock(clock.Now)

	perm := m.Ban("1.1.1.1", 0)
	assert.True(t, perm.Permanent())
	temp := m.Ban("2.2.2.2", 30*time.Second)
	assert.False(t, temp.Permanent())

	assert.True(t, m.IsBanned("1.1.1.1"))
	assert.True(t, m.IsBanned("2.2.2.2"))
	assert.False(t, m.IsBanned("3.3.3.3"))
	assert.Len(t, m.Bans(), 2)

	clock.Advance(30 * time.Second)
	assert.True(t, m.IsBanned("1.1.1.1"))
	assert.False(t, m.IsBanned("2.2.2.2"), "expires at until")

	clock.Advance(24 * time.Hour)
	bans := m.Bans()
	require.Len(t, bans, 1)
	assert.Equal(t, "1.1.1.1", bans[0].IP)
}

func TestModeration_Unban(t *testing.T) {
	m := NewModeration()
	m.Ban("1.1.1.1", 0)

	assert.True(t, m.Unban("1.1.1.1"))
	assert.False(t, m.Unban("1.1.1.1"), "idempotent")
	assert.False(t, m.IsBanned("1.1.1.1"))
}

func TestModeration_Locks(t *testing.T) {
	clock := newFakeClock()
	m := NewModeration()
	m.SetClock(clock.Now)

	until := m.Lock("r1", time.Minute)
	assert.Equal(t, clock.Now().Add(time.Minute), until)
	assert.True(t, m.IsLocked("r1"))
	assert.False(t, m.IsLocked("r2"))
	assert.ErrorIs(t, m.Admit("r1", "1.1.1.1"), ErrRoomLocked)

	clock.Advance(59 * time.Second)
	assert.Len(t, m.Locks(), 1)

	clock.Advance(time.Second)
	assert.False(t, m.IsLocked("r1"))
	assert.Empty(t, m.Locks())
	assert.NoError(t, m.Admit("r1", "1.1.1.1"))
}

func TestModeration_AdmitChecksLockBeforeBan(t *testing.T) {
	m := NewModeration()
	m.Ban("1.1.1.1", 0)
	assert.ErrorIs(t, m.Admit("open", "1.1.1.1"), ErrBanned)

	m.Lock("r1", time.Minute)
	assert.ErrorIs(t, m.Admit("r1", "1.1.1.1"), ErrRoomLocked)
}

func TestSeconds(t *testing.T) {
	d, err := Seconds(60)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = Seconds(0)
	require.NoError(t, err)
	assert.Zero(t, d)

	_, err = Seconds(-1)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	// 2^64 ns in seconds, would wrap to a sub-second duration
	_, err = Seconds(18446744074)
	assert.ErrorIs(t, err, ErrInvalidDuration)

	d, err = Seconds(math.MaxInt64 / int64(time.Second))
	require.NoError(t, err)
	assert.Positive(t, d)
}
