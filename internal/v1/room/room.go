package room

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/chess-room-engine/backend/internal/v1/bus"
	"github.com/chess-room-engine/backend/internal/v1/chess"
	"github.com/chess-room-engine/backend/internal/v1/logging"
	"github.com/chess-room-engine/backend/internal/v1/metrics"
	"github.com/chess-room-engine/backend/internal/v1/registry"
	"github.com/chess-room-engine/backend/internal/v1/wire"
	"go.uber.org/zap"
	"k8s.io/utils/set"
)

const maxChatHistoryLength = 200

// BusService is the distributed pub/sub abstraction a Room publishes
// through for cross-process broadcast. nil means single-process mode.
type BusService interface {
	Publish(ctx context.Context, roomID string, event string, payload any, senderID string, roles []string) error
	Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(bus.PubSubPayload))
}

// Room is the authoritative per-room critical section: it owns the room
// and embedded game state, the set of connected clients, and the draw-offer
// slot, and serializes every mutation behind a single mutex per the
// engine's concurrency model (§5 sanctions a per-room mutex as an
// acceptable mechanism for the required serialization).
type Room struct {
	id RoomIdType
	mu sync.Mutex

	hostID       ClientIdType
	hostName     DisplayNameType
	opponentID   ClientIdType
	opponentName DisplayNameType
	spectators   map[ClientIdType]DisplayNameType

	state        RoomState
	createdAt    time.Time
	lastActivity time.Time
	game         *Game
	settings     Settings
	drawOfferer  ClientIdType

	clients     map[ClientIdType]*Client
	chatHistory *list.List

	graceTimers    map[ClientIdType]*time.Timer
	clockSweepStop chan struct{}

	registry *registry.Registry
	bus      BusService
	onEmpty  func(RoomIdType)

	subCancel context.CancelFunc
}

// NewRoom allocates a room in waiting_for_player state owned by hostID and,
// if bus is non-nil, subscribes it to its cross-pod Redis channel for the
// room's lifetime.
func NewRoom(id RoomIdType, hostID ClientIdType, hostName DisplayNameType, settings Settings, reg *registry.Registry, bus BusService, onEmpty func(RoomIdType)) *Room {
	now := time.Now()
	r := &Room{
		id:           id,
		hostID:       hostID,
		hostName:     hostName,
		spectators:   make(map[ClientIdType]DisplayNameType),
		state:        StateWaitingForPlayer,
		createdAt:    now,
		lastActivity: now,
		settings:     settings,
		clients:      make(map[ClientIdType]*Client),
		chatHistory:  list.New(),
		graceTimers:  make(map[ClientIdType]*time.Timer),
		registry:     reg,
		bus:          bus,
		onEmpty:      onEmpty,
	}
	if bus != nil {
		subCtx, cancel := context.WithCancel(context.Background())
		r.subCancel = cancel
		r.subscribeToRedis(subCtx, nil)
	}
	return r
}

func (r *Room) ID() RoomIdType { return r.id }

// Close stops this room's Redis subscription and clock sweep, if either was
// started. Called by the Hub when a room is removed from the registry.
func (r *Room) Close() {
	if r.subCancel != nil {
		r.subCancel()
	}
	r.mu.Lock()
	r.stopClockSweep()
	r.mu.Unlock()
}

func (r *Room) touch() { r.lastActivity = time.Now() }

// attach binds an already-admitted client (host/opponent/spectator) to this
// room's connection registry so it receives broadcasts. Caller holds r.mu.
func (r *Room) attach(c *Client) {
	r.clients[c.ID] = c
	if timer, ok := r.graceTimers[c.ID]; ok {
		timer.Stop()
		delete(r.graceTimers, c.ID)
	}
}

// Dispatch is the router for in-room operations: every request after
// admission (join/spectate/create happen at the Hub) flows through here
// under the room's lock.
func (r *Room) Dispatch(ctx context.Context, c *Client, env wire.Envelope) {
	start := time.Now()
	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues(string(env.Event)).Observe(time.Since(start).Seconds())
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	switch env.Event {
	case wire.EventRoomLeave:
		r.handleLeave(ctx, c)
	case wire.EventRoomKick:
		r.handleKickSpectator(ctx, c, env.Payload)
	case wire.EventRoomLock:
		r.handleLockRoom(ctx, c, env.Payload)
	case wire.EventRoomUpdateSettings:
		r.handleUpdateSettings(ctx, c, env.Payload)
	case wire.EventGameMove:
		r.handleMove(ctx, c, env.Payload)
	case wire.EventGameResign:
		r.handleResign(ctx, c)
	case wire.EventGameOfferDraw:
		r.handleOfferDraw(ctx, c)
	case wire.EventGameAcceptDraw:
		r.handleAcceptDraw(ctx, c)
	case wire.EventGameDeclineDraw:
		r.handleDeclineDraw(ctx, c)
	case wire.EventChatSend:
		r.handleChatSend(ctx, c, env.Payload)
	case wire.EventPing:
		// heartbeat, no-op
	default:
		logging.Warn(ctx, "room received unknown event", zap.String("event", string(env.Event)))
	}
}

// HandleClientConnect is unused for fresh joins (those go through the Hub's
// join/spectate/create handlers, which attach the client directly); it
// exists to satisfy Roomer for reconnects that rebind an existing role.
func (r *Room) HandleClientConnect(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attach(c)
}

// HandleClientDisconnect processes an involuntary connection loss. Players
// get a grace period (§5: 60s) during which restoreSession can rebind them
// without ending the game; spectators are discarded immediately.
func (r *Room) HandleClientDisconnect(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.clients, c.ID)

	switch c.GetRole() {
	case RoleTypeSpectator:
		delete(r.spectators, c.ID)
		r.registry.Discard(string(c.ID))
		r.broadcast(wire.EventSpectatorLeft, fields{"spectatorId": c.ID}, nil)
	case RoleTypeHost, RoleTypeOpponent:
		r.registry.MarkDisconnected(string(c.ID), time.Now())
		r.broadcast(wire.EventPlayerDisconnected, fields{"identity": c.ID, "gracePeriod": 60}, nil)
		r.scheduleGrace(c.ID)
	}

	metrics.DecConnection()
}

// scheduleGrace starts (or restarts) the 60s grace timer for a disconnected
// player. At firing time it re-checks the session is still disconnected
// before invoking leave-on-timeout semantics, since a reconnect may have
// landed in between (per the engine's grace-period scheduling design note).
func (r *Room) scheduleGrace(identity ClientIdType) {
	if existing, ok := r.graceTimers[identity]; ok {
		existing.Stop()
	}
	r.graceTimers[identity] = time.AfterFunc(60*time.Second, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.graceTimers, identity)

		sess, ok := r.registry.Lookup(string(identity))
		if !ok || sess.IsConnected {
			return // reconnected or session already gone
		}
		r.endAsAbandoned(identity, "disconnected")
	})
}

// endAsAbandoned ends the game with the other side winning because
// identity failed to return from a grace period (or left voluntarily).
func (r *Room) endAsAbandoned(identity ClientIdType, reason string) {
	if r.game == nil || r.game.Status != GameActive {
		return
	}
	winner := chess.Black
	if identity == r.opponentID {
		winner = chess.White
	}
	r.game.Status = GameAbandoned
	r.game.Winner = &winner
	r.drawOfferer = ""
	r.state = StateFinished
	r.stopClockSweep()
	r.touch()

	metrics.ActiveGames.Dec()
	r.broadcast(wire.EventGameEnded, r.snapshot().Game, nil)
	r.broadcast(wire.EventRoomUpdated, r.snapshot(), nil)
	r.notifyCatalog()
}

// broadcast marshals and enqueues an event to every client whose role is in
// roles (nil means everyone), then republishes to the bus for other
// processes unless skipRedis semantics apply (handled by caller via bus
// nil-check). Caller holds r.mu.
func (r *Room) broadcast(event wire.Event, payload any, roles set.Set[RoleType]) {
	msg := wire.Message{Event: event, Payload: payload}
	for id, c := range r.clients {
		if roles != nil && !roles.Has(c.GetRole()) {
			continue
		}
		_ = id
		c.Send(msg)
	}
	if r.bus != nil {
		var roleStrings []string
		if roles != nil {
			for role := range roles {
				roleStrings = append(roleStrings, string(role))
			}
		}
		go func() {
			if err := r.bus.Publish(context.Background(), string(r.id), string(event), payload, "", roleStrings); err != nil {
				logging.Error(context.Background(), "failed to publish room event", zap.Error(err))
			}
		}()
	}
}

// sendTo delivers a message directly to one client, used for room:kicked
// and other single-target deliveries.
func (r *Room) sendTo(identity ClientIdType, event wire.Event, payload any) {
	if c, ok := r.clients[identity]; ok {
		c.Send(wire.Message{Event: event, Payload: payload})
	}
}

// admitAsOpponent seats a second player if the room has room for one and the
// caller clears the join gate (locked/allowJoin/password). Caller must not
// hold r.mu.
func (r *Room) admitAsOpponent(c *Client, name string, password string) *wire.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.opponentID != "" {
		return wire.NewError(wire.ErrRoomFull, "room already has two players")
	}
	if !r.settings.AllowJoin {
		return wire.NewError(wire.ErrJoinNotAllowed, "room is not accepting players")
	}
	if r.settings.IsLocked {
		if r.settings.PasswordHash == "" {
			return wire.NewError(wire.ErrRoomLocked, "room is locked")
		}
		if !r.checkPassword(password) {
			if password == "" {
				return wire.NewError(wire.ErrPasswordRequired, "password required")
			}
			return wire.NewError(wire.ErrPasswordIncorrect, "incorrect password")
		}
	}

	c.SetRole(RoleTypeOpponent)
	c.SetColor("black")
	c.DisplayName = DisplayNameType(name)
	r.admitOpponent(c.ID, DisplayNameType(name))
	r.attach(c)

	r.broadcast(wire.EventPlayerJoined, fields{"identity": c.ID, "displayName": name}, nil)
	r.broadcast(wire.EventGameStarted, r.snapshot(), nil)
	r.notifyCatalog()
	return nil
}

// admitAsSpectator adds a spectator if the room allows them and the caller
// clears the password gate. Caller must not hold r.mu.
func (r *Room) admitAsSpectator(c *Client, name string, password string) *wire.Error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.settings.AllowSpectators {
		return wire.NewError(wire.ErrSpectateNotAllowed, "room does not allow spectators")
	}
	if r.settings.IsLocked {
		if r.settings.PasswordHash == "" {
			return wire.NewError(wire.ErrRoomLocked, "room is locked")
		}
		if !r.checkPassword(password) {
			if password == "" {
				return wire.NewError(wire.ErrPasswordRequired, "password required")
			}
			return wire.NewError(wire.ErrPasswordIncorrect, "incorrect password")
		}
	}

	c.SetRole(RoleTypeSpectator)
	c.SetColor("")
	c.DisplayName = DisplayNameType(name)
	r.spectators[c.ID] = DisplayNameType(name)
	r.attach(c)
	r.touch()

	r.broadcast(wire.EventSpectatorJoined, fields{"identity": c.ID, "displayName": name}, nil)
	return nil
}

func (r *Room) notifyCatalog() {
	r.broadcast(wire.EventRoomListUpdated, nil, nil)
}

// fields is a tiny local alias avoiding an extra import just for map[string]any
// literals used in a handful of ad-hoc event payloads.
type fields = map[string]any
