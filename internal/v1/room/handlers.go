package room

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chess-room-engine/backend/internal/v1/logging"
	"github.com/chess-room-engine/backend/internal/v1/metrics"
	"github.com/chess-room-engine/backend/internal/v1/wire"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

// assertPayload decodes env payload into T, sending a validation error ack to
// c on failure and reporting ok=false so the caller returns immediately.
func assertPayload[T any](c *Client, payload json.RawMessage) (T, bool) {
	var v T
	if len(payload) == 0 {
		c.Send(wire.Message{Event: wire.EventError, Payload: wire.NewError(wire.ErrValidationFailed, "missing payload")})
		return v, false
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		c.Send(wire.Message{Event: wire.EventError, Payload: wire.NewError(wire.ErrValidationFailed, "malformed payload")})
		return v, false
	}
	return v, true
}

func (r *Room) sendError(c *Client, e *wire.Error) {
	c.Send(wire.Message{Event: wire.EventError, Payload: e})
}

// handleLeave removes a connected participant voluntarily. Hosts/opponents
// leaving mid-game end it in the other side's favor; spectators just drop.
func (r *Room) handleLeave(ctx context.Context, c *Client) {
	switch c.GetRole() {
	case RoleTypeSpectator:
		delete(r.spectators, c.ID)
		delete(r.clients, c.ID)
		r.registry.Discard(string(c.ID))
		r.broadcast(wire.EventSpectatorLeft, fields{"spectatorId": c.ID}, nil)
	case RoleTypeHost, RoleTypeOpponent:
		delete(r.clients, c.ID)
		r.registry.Discard(string(c.ID))
		r.endAsAbandoned(c.ID, "left")
		r.broadcast(wire.EventPlayerLeft, fields{"identity": c.ID}, nil)
	}
}

// handleKickSpectator removes a spectator by host request. Players can
// never be kicked per the engine's admission rules.
type kickPayload struct {
	TargetID string `json:"targetId"`
}

func (r *Room) handleKickSpectator(ctx context.Context, c *Client, payload json.RawMessage) {
	if c.GetRole() != RoleTypeHost {
		r.sendError(c, wire.NewError(wire.ErrHostOnly, "only the host can kick"))
		return
	}
	p, ok := assertPayload[kickPayload](c, payload)
	if !ok {
		return
	}
	target := ClientIdType(p.TargetID)
	if target == r.hostID || target == r.opponentID {
		r.sendError(c, wire.NewError(wire.ErrCannotKickPlayer, "cannot kick a player"))
		return
	}
	targetConn, ok := r.clients[target]
	if !ok {
		r.sendError(c, wire.NewError(wire.ErrNotFound, "spectator not found"))
		return
	}
	delete(r.spectators, target)
	delete(r.clients, target)
	r.registry.Discard(string(target))
	targetConn.Send(wire.Message{Event: wire.EventRoomKicked, Payload: fields{"reason": "kicked"}})
	targetConn.Disconnect()
	r.broadcast(wire.EventSpectatorLeft, fields{"spectatorId": target}, nil)
}

func (r *Room) handleLockRoom(ctx context.Context, c *Client, payload json.RawMessage) {
	if c.GetRole() != RoleTypeHost {
		r.sendError(c, wire.NewError(wire.ErrHostOnly, "only the host can lock the room"))
		return
	}
	p, ok := assertPayload[struct {
		Locked   bool   `json:"locked"`
		Password string `json:"password,omitempty"`
	}](c, payload)
	if !ok {
		return
	}
	r.settings.IsLocked = p.Locked
	if p.Password != "" {
		hash, err := hashPassword(p.Password)
		if err != nil {
			r.sendError(c, wire.NewError(wire.ErrInternal, "failed to secure room password"))
			return
		}
		r.settings.PasswordHash = hash
	}
	r.touch()
	r.broadcast(wire.EventRoomUpdated, r.snapshot(), nil)
	r.notifyCatalog()
}

func (r *Room) handleUpdateSettings(ctx context.Context, c *Client, payload json.RawMessage) {
	if c.GetRole() != RoleTypeHost {
		r.sendError(c, wire.NewError(wire.ErrHostOnly, "only the host can update settings"))
		return
	}
	patch, ok := assertPayload[SettingsPatch](c, payload)
	if !ok {
		return
	}
	if patch.RoomName != nil && !wire.ValidName(*patch.RoomName) {
		r.sendError(c, wire.NewError(wire.ErrValidationFailed, "invalid room name"))
		return
	}
	r.applySettingsPatch(patch)
	r.broadcast(wire.EventRoomUpdated, r.snapshot(), nil)
	r.notifyCatalog()
}

type movePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

func (r *Room) handleMove(ctx context.Context, c *Client, payload json.RawMessage) {
	p, ok := assertPayload[movePayload](c, payload)
	if !ok {
		return
	}
	if !wire.ValidSquare(p.From) || !wire.ValidSquare(p.To) || !wire.ValidPromotion(p.Promotion) {
		r.sendError(c, wire.NewError(wire.ErrValidationFailed, "invalid move payload"))
		return
	}
	if wireErr := r.applyMove(c.ID, p.From, p.To, p.Promotion); wireErr != nil {
		metrics.MovesProcessed.WithLabelValues("rejected").Inc()
		r.sendError(c, wireErr)
		return
	}
	metrics.MovesProcessed.WithLabelValues("accepted").Inc()
	r.touch()
	r.broadcast(wire.EventGameSync, r.snapshot().Game, nil)
	if r.state == StateFinished {
		metrics.ActiveGames.Dec()
		r.broadcast(wire.EventGameEnded, r.snapshot().Game, nil)
		r.notifyCatalog()
	}
}

func (r *Room) handleResign(ctx context.Context, c *Client) {
	if wireErr := r.resign(c.ID); wireErr != nil {
		r.sendError(c, wireErr)
		return
	}
	metrics.ActiveGames.Dec()
	r.broadcast(wire.EventGameEnded, r.snapshot().Game, nil)
	r.notifyCatalog()
}

func (r *Room) handleOfferDraw(ctx context.Context, c *Client) {
	if wireErr := r.offerDraw(c.ID); wireErr != nil {
		r.sendError(c, wireErr)
		return
	}
	metrics.DrawOffers.WithLabelValues("offered").Inc()
	spectatorsAndPlayers := set.New[RoleType](RoleTypeHost, RoleTypeOpponent, RoleTypeSpectator)
	r.broadcast(wire.EventDrawOffered, fields{"offererId": c.ID}, spectatorsAndPlayers)
}

func (r *Room) handleAcceptDraw(ctx context.Context, c *Client) {
	if wireErr := r.acceptDraw(c.ID); wireErr != nil {
		r.sendError(c, wireErr)
		return
	}
	metrics.DrawOffers.WithLabelValues("accepted").Inc()
	metrics.ActiveGames.Dec()
	r.broadcast(wire.EventGameEnded, r.snapshot().Game, nil)
	r.notifyCatalog()
}

func (r *Room) handleDeclineDraw(ctx context.Context, c *Client) {
	if wireErr := r.declineDraw(c.ID); wireErr != nil {
		r.sendError(c, wireErr)
		return
	}
	metrics.DrawOffers.WithLabelValues("declined").Inc()
	r.broadcast(wire.EventDrawDeclined, fields{"declinerId": c.ID}, nil)
}

type chatPayload struct {
	Content  string `json:"content"`
	ChatType string `json:"chatType"`
}

func (r *Room) handleChatSend(ctx context.Context, c *Client, payload json.RawMessage) {
	p, ok := assertPayload[chatPayload](c, payload)
	if !ok {
		return
	}
	if !wire.ValidChatMessage(p.Content) {
		r.sendError(c, wire.NewError(wire.ErrValidationFailed, "chat message too long"))
		return
	}
	if !wire.ValidChatType(p.ChatType) {
		r.sendError(c, wire.NewError(wire.ErrValidationFailed, "invalid chat type"))
		return
	}
	if p.ChatType == "private" && c.GetRole() == RoleTypeSpectator {
		r.sendError(c, wire.NewError(wire.ErrNotAPlayer, "spectators cannot send private chat"))
		return
	}
	info := ChatInfo{
		ChatID:     nextChatID(r.id, r.chatHistory.Len()),
		SenderID:   c.ID,
		SenderName: c.DisplayName,
		Content:    p.Content,
		ChatType:   p.ChatType,
		Timestamp:  time.Now().Unix(),
	}
	r.addChat(info)
	r.touch()
	recipients := set.New[RoleType](RoleTypeHost, RoleTypeOpponent, RoleTypeSpectator)
	if p.ChatType == "private" {
		recipients = set.New[RoleType](RoleTypeHost, RoleTypeOpponent)
	}
	r.broadcast(wire.EventChatMessage, info, recipients)
	logging.Info(ctx, "chat message delivered", zap.String("roomId", string(r.id)), zap.String("senderId", string(c.ID)))
}
