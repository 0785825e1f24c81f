package room

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/chess-room-engine/backend/internal/v1/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestWithOrigin(t *testing.T, origin string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, "/ws", nil)
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func newTestHub() *Hub {
	return NewHub(nil, nil)
}

func envelope(t *testing.T, event wire.Event, payload any) wire.Envelope {
	t.Helper()
	if payload == nil {
		return wire.Envelope{Event: event}
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return wire.Envelope{Event: event, Payload: raw}
}

func TestHub_Dispatch_CreateBindsRoomAndAssignsHost(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	c := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), c, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))

	require.NotNil(t, c.BoundRoom())
	assert.Equal(t, RoleTypeHost, c.GetRole())
	assert.Len(t, h.rooms, 1)
}

func TestHub_Dispatch_CreateRejectsSecondActiveRoom(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	c := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), c, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))
	require.NotNil(t, c.BoundRoom())

	c2 := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), c2, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))
	assert.Nil(t, c2.BoundRoom())
}

func TestHub_Dispatch_JoinUnknownRoom(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	c := newTestClient("opp-1", "", h)
	h.Dispatch(context.Background(), c, envelope(t, wire.EventRoomJoin, joinPayload{RoomID: "nope", DisplayName: "Bob"}))
	assert.Nil(t, c.BoundRoom())
}

func TestHub_Dispatch_JoinAdmitsOpponent(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	host := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), host, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))
	roomID := string(host.BoundRoom().ID())

	opp := newTestClient("opp-1", "", h)
	h.Dispatch(context.Background(), opp, envelope(t, wire.EventRoomJoin, joinPayload{RoomID: roomID, DisplayName: "Bob"}))

	require.NotNil(t, opp.BoundRoom())
	assert.Equal(t, RoleTypeOpponent, opp.GetRole())
}

func TestHub_Dispatch_SpectateAdmitsSpectator(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	host := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), host, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))
	roomID := string(host.BoundRoom().ID())

	spec := newTestClient("spec-1", "", h)
	h.Dispatch(context.Background(), spec, envelope(t, wire.EventRoomSpectate, spectatePayload{RoomID: roomID, DisplayName: "Watcher"}))

	require.NotNil(t, spec.BoundRoom())
	assert.Equal(t, RoleTypeSpectator, spec.GetRole())
}

func TestHub_Dispatch_PingRepliesDirectly(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	c := newTestClient("guest-1", "", h)
	h.Dispatch(context.Background(), c, envelope(t, wire.EventPing, nil))

	select {
	case data := <-c.send:
		var msg wire.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, wire.EventPing, msg.Event)
	default:
		t.Fatal("expected a queued pong reply")
	}
}

func TestHub_Dispatch_UnboundClientGetsNotConnectedError(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	c := newTestClient("guest-1", "", h)
	h.Dispatch(context.Background(), c, envelope(t, wire.EventGameMove, nil))

	select {
	case data := <-c.prioritySend:
		var msg wire.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, wire.EventError, msg.Event)
	default:
		t.Fatal("expected an error reply")
	}
}

func TestHub_Dispatch_ForwardsToBoundRoom(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	host := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), host, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))
	r := host.BoundRoom()

	opp := newTestClient("opp-1", "", h)
	h.Dispatch(context.Background(), opp, envelope(t, wire.EventRoomJoin, joinPayload{RoomID: string(r.ID()), DisplayName: "Bob"}))

	h.Dispatch(context.Background(), host, envelope(t, wire.EventGameMove, map[string]string{"from": "e2", "to": "e4"}))
	assert.Equal(t, 1, len(r.Snapshot().Game.Moves))
}

func TestHub_RemoveRoom_ClosesAndDeletes(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	c := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), c, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))
	id := c.BoundRoom().ID()

	h.removeRoom(id)

	h.mu.Lock()
	_, exists := h.rooms[id]
	h.mu.Unlock()
	assert.False(t, exists)
}

func TestHub_Sweep_RemovesOnlyStaleRooms(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	fresh := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), fresh, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))
	freshID := fresh.BoundRoom().ID()

	stale := newTestClient("host-2", "", h)
	h.Dispatch(context.Background(), stale, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Carl"}))
	staleID := stale.BoundRoom().ID()
	h.mu.Lock()
	h.rooms[staleID].lastActivity = time.Now().Add(-2 * waitingRoomGC)
	h.mu.Unlock()

	h.sweep()

	h.mu.Lock()
	_, freshExists := h.rooms[freshID]
	_, staleExists := h.rooms[staleID]
	h.mu.Unlock()
	assert.True(t, freshExists)
	assert.False(t, staleExists)
}

func TestHub_Listings_ExcludesPrivateRooms(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	pub := newTestClient("host-1", "", h)
	h.Dispatch(context.Background(), pub, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Alice"}))

	priv := newTestClient("host-2", "", h)
	h.Dispatch(context.Background(), priv, envelope(t, wire.EventRoomCreate, createPayload{DisplayName: "Carl", IsPrivate: true}))

	listings := h.Listings()
	assert.Len(t, listings, 1)
}

func TestHub_RoomByID_UnknownReturnsFalse(t *testing.T) {
	h := newTestHub()
	defer h.Stop()

	_, ok := h.RoomByID("missing")
	assert.False(t, ok)
}

func TestValidateOrigin_EmptyOriginAllowed(t *testing.T) {
	req := newRequestWithOrigin(t, "")
	assert.NoError(t, validateOrigin(req, []string{"https://example.com"}))
}

func TestValidateOrigin_MatchingOriginAllowed(t *testing.T) {
	req := newRequestWithOrigin(t, "https://example.com")
	assert.NoError(t, validateOrigin(req, []string{"https://example.com"}))
}

func TestValidateOrigin_MismatchedOriginRejected(t *testing.T) {
	req := newRequestWithOrigin(t, "https://evil.example")
	assert.Error(t, validateOrigin(req, []string{"https://example.com"}))
}
