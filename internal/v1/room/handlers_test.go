package room

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/chess-room-engine/backend/internal/v1/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleLockRoom_LocksWithoutPassword(t *testing.T) {
	r := newTestRoom(Settings{AllowJoin: true})
	host := newTestClient("host-1", RoleTypeHost, r)

	payload, err := json.Marshal(map[string]any{"locked": true})
	require.NoError(t, err)
	r.handleLockRoom(context.Background(), host, payload)

	assert.True(t, r.settings.IsLocked)
	assert.Empty(t, r.settings.PasswordHash)
}

func TestHandleLockRoom_SetsPasswordWhenSupplied(t *testing.T) {
	r := newTestRoom(Settings{AllowJoin: true})
	host := newTestClient("host-1", RoleTypeHost, r)

	payload, err := json.Marshal(map[string]any{"locked": true, "password": "swordfish"})
	require.NoError(t, err)
	r.handleLockRoom(context.Background(), host, payload)

	assert.True(t, r.settings.IsLocked)
	assert.NotEmpty(t, r.settings.PasswordHash)
	assert.True(t, r.checkPassword("swordfish"))
}

func TestHandleLockRoom_RejectsNonHost(t *testing.T) {
	r := newTestRoom(Settings{AllowJoin: true})
	opp := newTestClient("opp-1", RoleTypeOpponent, r)

	payload, err := json.Marshal(map[string]any{"locked": true})
	require.NoError(t, err)
	r.handleLockRoom(context.Background(), opp, payload)

	assert.False(t, r.settings.IsLocked)
	select {
	case data := <-opp.prioritySend:
		var msg wire.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, wire.EventError, msg.Event)
	default:
		t.Fatal("expected a host_only error")
	}
}

func TestHandleChatSend_InvalidChatTypeRejected(t *testing.T) {
	r := newTestRoom(Settings{})
	host := newTestClient("host-1", RoleTypeHost, r)

	payload, err := json.Marshal(map[string]any{"content": "hi", "chatType": "secret"})
	require.NoError(t, err)
	r.handleChatSend(context.Background(), host, payload)

	assert.Equal(t, 0, r.chatHistory.Len())
}

func TestHandleChatSend_PrivateFromSpectatorRejected(t *testing.T) {
	r := newTestRoom(Settings{})
	spec := newTestClient("spec-1", RoleTypeSpectator, r)

	payload, err := json.Marshal(map[string]any{"content": "hi", "chatType": "private"})
	require.NoError(t, err)
	r.handleChatSend(context.Background(), spec, payload)

	assert.Equal(t, 0, r.chatHistory.Len())
	select {
	case data := <-spec.prioritySend:
		var msg wire.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, wire.EventError, msg.Event)
	default:
		t.Fatal("expected a not_a_player error")
	}
}

func TestHandleChatSend_PrivateDeliveredOnlyToPlayers(t *testing.T) {
	r := newTestRoom(Settings{})
	host := attachClient(r, "host-1", RoleTypeHost)
	opp := attachClient(r, "opp-1", RoleTypeOpponent)
	spec := attachClient(r, "spec-1", RoleTypeSpectator)

	payload, err := json.Marshal(map[string]any{"content": "psst", "chatType": "private"})
	require.NoError(t, err)
	r.handleChatSend(context.Background(), host, payload)

	select {
	case <-opp.send:
	default:
		t.Fatal("opponent should receive the private message")
	}
	select {
	case <-spec.send:
		t.Fatal("spectator should not receive a private message")
	default:
	}
}

func TestHandleChatSend_PublicDeliveredToEveryone(t *testing.T) {
	r := newTestRoom(Settings{})
	host := attachClient(r, "host-1", RoleTypeHost)
	spec := attachClient(r, "spec-1", RoleTypeSpectator)

	payload, err := json.Marshal(map[string]any{"content": "hi all", "chatType": "public"})
	require.NoError(t, err)
	r.handleChatSend(context.Background(), host, payload)

	select {
	case <-spec.send:
	default:
		t.Fatal("spectator should receive a public message")
	}
}
