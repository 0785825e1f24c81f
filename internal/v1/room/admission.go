package room

import (
	"context"
	"encoding/json"

	"github.com/chess-room-engine/backend/internal/v1/metrics"
	"github.com/chess-room-engine/backend/internal/v1/registry"
	"github.com/chess-room-engine/backend/internal/v1/wire"
	"github.com/google/uuid"
)

func shortRoomID() RoomIdType {
	return RoomIdType(uuid.NewString()[:8])
}

// activeSessionFor reports whether identity already has a session bound to
// a room that is not finished, enforcing the engine's global uniqueness
// invariant (one live room membership per identity, across the whole hub).
func (h *Hub) activeSessionFor(identity ClientIdType) (*Room, bool) {
	sess, ok := h.registry.Lookup(string(identity))
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	r, ok := h.rooms[RoomIdType(sess.RoomID)]
	h.mu.Unlock()
	if !ok {
		return nil, false
	}
	snap := r.Snapshot()
	if snap.State == StateFinished {
		return nil, false
	}
	return r, true
}

type createPayload struct {
	DisplayName string       `json:"displayName"`
	RoomName    string       `json:"roomName,omitempty"`
	Password    string       `json:"password,omitempty"`
	TimeControl *TimeControl `json:"timeControl,omitempty"`
	IsPrivate   bool         `json:"isPrivate"`
}

func (h *Hub) handleCreate(ctx context.Context, c *Client, payload json.RawMessage) {
	p, ok := assertPayload[createPayload](c, payload)
	if !ok {
		return
	}
	if p.DisplayName != "" && !wire.ValidName(p.DisplayName) {
		h.sendError(c, wire.NewError(wire.ErrValidationFailed, "invalid display name"))
		return
	}
	if p.TimeControl != nil && !wire.ValidTimeControlSeconds(p.TimeControl.InitialSeconds, p.TimeControl.IncrementSeconds) {
		h.sendError(c, wire.NewError(wire.ErrValidationFailed, "invalid time control"))
		return
	}
	if _, active := h.activeSessionFor(c.ID); active {
		h.sendError(c, wire.NewError(wire.ErrAlreadyInRoom, "already in an active room"))
		return
	}

	name := p.DisplayName
	if name == "" {
		name = string(c.DisplayName)
	}

	passwordHash, err := hashPassword(p.Password)
	if err != nil {
		h.sendError(c, wire.NewError(wire.ErrInternal, "failed to secure room password"))
		return
	}

	settings := Settings{
		TimeControl:     p.TimeControl,
		AllowSpectators: true,
		AllowJoin:       true,
		IsPrivate:       p.IsPrivate,
		RoomName:        p.RoomName,
		PasswordHash:    passwordHash,
	}

	id := shortRoomID()
	r := NewRoom(id, c.ID, DisplayNameType(name), settings, h.registry, h.bus, nil)

	h.mu.Lock()
	h.rooms[id] = r
	h.mu.Unlock()
	metrics.ActiveRooms.Inc()

	h.registry.Register(string(c.ID), name, string(id), toRegistryRole(RoleTypeHost), string(c.ID), registry.ColorWhite)
	c.SetRole(RoleTypeHost)
	c.SetColor("white")
	c.DisplayName = DisplayNameType(name)
	c.BindRoom(r)

	r.HandleClientConnect(c)
	c.Send(wire.Message{Event: wire.EventRoomUpdated, Payload: r.Snapshot()})
}

type joinPayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password,omitempty"`
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, payload json.RawMessage) {
	p, ok := assertPayload[joinPayload](c, payload)
	if !ok {
		return
	}
	if p.DisplayName != "" && !wire.ValidName(p.DisplayName) {
		h.sendError(c, wire.NewError(wire.ErrValidationFailed, "invalid display name"))
		return
	}
	if _, active := h.activeSessionFor(c.ID); active {
		h.sendError(c, wire.NewError(wire.ErrAlreadyInRoom, "already in an active room"))
		return
	}

	h.mu.Lock()
	r, ok := h.rooms[RoomIdType(p.RoomID)]
	h.mu.Unlock()
	if !ok {
		h.sendError(c, wire.NewError(wire.ErrNotFound, "room not found"))
		return
	}

	name := p.DisplayName
	if name == "" {
		name = string(c.DisplayName)
	}

	wireErr := r.admitAsOpponent(c, name, p.Password)
	if wireErr != nil {
		h.sendError(c, wireErr)
		return
	}

	h.registry.Register(string(c.ID), name, string(r.id), toRegistryRole(RoleTypeOpponent), string(c.ID), registry.ColorBlack)
	c.BindRoom(r)
	metrics.ActiveGames.Inc()
}

type spectatePayload struct {
	RoomID      string `json:"roomId"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password,omitempty"`
}

func (h *Hub) handleSpectate(ctx context.Context, c *Client, payload json.RawMessage) {
	p, ok := assertPayload[spectatePayload](c, payload)
	if !ok {
		return
	}
	if p.DisplayName != "" && !wire.ValidName(p.DisplayName) {
		h.sendError(c, wire.NewError(wire.ErrValidationFailed, "invalid display name"))
		return
	}
	if _, active := h.activeSessionFor(c.ID); active {
		h.sendError(c, wire.NewError(wire.ErrAlreadyInRoom, "already in an active room"))
		return
	}

	h.mu.Lock()
	r, ok := h.rooms[RoomIdType(p.RoomID)]
	h.mu.Unlock()
	if !ok {
		h.sendError(c, wire.NewError(wire.ErrNotFound, "room not found"))
		return
	}

	name := p.DisplayName
	if name == "" {
		name = string(c.DisplayName)
	}

	wireErr := r.admitAsSpectator(c, name, p.Password)
	if wireErr != nil {
		h.sendError(c, wireErr)
		return
	}

	h.registry.Register(string(c.ID), name, string(r.id), toRegistryRole(RoleTypeSpectator), string(c.ID), "")
	c.BindRoom(r)
}

type restorePayload struct {
	PriorIdentity string `json:"priorIdentity,omitempty"`
}

// handleSessionRestore rebinds a reconnecting identity to its prior role in
// its room, provided the grace period has not yet expired.
func (h *Hub) handleSessionRestore(ctx context.Context, c *Client, payload json.RawMessage) {
	_, _ = assertPayload[restorePayload](c, payload)

	sess, ok := h.registry.Lookup(string(c.ID))
	if !ok {
		h.sendError(c, wire.NewError(wire.ErrNotFound, "no prior session to restore"))
		return
	}

	h.mu.Lock()
	r, ok := h.rooms[RoomIdType(sess.RoomID)]
	h.mu.Unlock()
	if !ok {
		h.registry.Discard(string(c.ID))
		h.sendError(c, wire.NewError(wire.ErrNotFound, "room no longer exists"))
		return
	}
	if r.Snapshot().State == StateFinished {
		h.registry.Discard(string(c.ID))
		h.sendError(c, wire.NewError(wire.ErrNotFound, "room is finished"))
		return
	}

	c.SetRole(toClientRole(sess.Role))
	c.SetColor(string(sess.Color))
	c.DisplayName = DisplayNameType(sess.DisplayName)
	c.BindRoom(r)

	h.registry.Rebind(string(c.ID), string(c.ID))
	r.HandleClientConnect(c)

	r.mu.Lock()
	role := c.GetRole()
	switch role {
	case RoleTypeHost, RoleTypeOpponent:
		r.broadcast(wire.EventPlayerReconnected, fields{"identity": c.ID}, nil)
	}
	snap := r.snapshot()
	r.mu.Unlock()

	c.Send(wire.Message{Event: wire.EventGameSync, Payload: snap})
}

func toClientRole(r registry.Role) RoleType {
	switch r {
	case registry.RoleHost:
		return RoleTypeHost
	case registry.RoleOpponent:
		return RoleTypeOpponent
	default:
		return RoleTypeSpectator
	}
}

func (h *Hub) sendError(c *Client, e *wire.Error) {
	c.Send(wire.Message{Event: wire.EventError, Payload: e})
}
