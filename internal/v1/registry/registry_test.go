package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.Register("u1", "Alice", "room1", RoleHost, "conn1", ColorWhite)

	s, ok := r.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "room1", s.RoomID)
	assert.Equal(t, RoleHost, s.Role)
	assert.True(t, s.IsConnected)
}

func TestLookupMissing(t *testing.T) {
	r := New()
	_, ok := r.Lookup("ghost")
	assert.False(t, ok)
}

func TestMarkDisconnectedThenRebind(t *testing.T) {
	r := New()
	r.Register("u1", "Alice", "room1", RoleOpponent, "conn1", ColorBlack)

	now := time.Now()
	r.MarkDisconnected("u1", now)
	s, _ := r.Lookup("u1")
	assert.False(t, s.IsConnected)
	assert.Equal(t, now, s.DisconnectedAt)

	s, ok := r.Rebind("u1", "conn2")
	require.True(t, ok)
	assert.True(t, s.IsConnected)
	assert.True(t, s.DisconnectedAt.IsZero())
	assert.Equal(t, "conn2", s.ConnectionID)
}

func TestDiscard(t *testing.T) {
	r := New()
	r.Register("u1", "Alice", "room1", RoleSpectator, "conn1", "")
	r.Discard("u1")

	_, ok := r.Lookup("u1")
	assert.False(t, ok)
}

func TestRebindMissing(t *testing.T) {
	r := New()
	_, ok := r.Rebind("ghost", "conn2")
	assert.False(t, ok)
}
