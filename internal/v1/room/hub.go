// Package room implements the Room Store and Room State Machine: the
// authoritative per-room critical section that owns room/game lifecycle,
// admission, move validation, draw negotiation, and disconnect handling, and
// the Hub that authenticates connections and routes lifecycle requests to
// rooms (the Event Bus's entry point).
package room

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chess-room-engine/backend/internal/v1/auth"
	"github.com/chess-room-engine/backend/internal/v1/identity"
	"github.com/chess-room-engine/backend/internal/v1/logging"
	"github.com/chess-room-engine/backend/internal/v1/metrics"
	"github.com/chess-room-engine/backend/internal/v1/registry"
	"github.com/chess-room-engine/backend/internal/v1/wire"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// TokenValidator authenticates a bearer token into claims.
type TokenValidator interface {
	ValidateToken(tokenString string) (*auth.CustomClaims, error)
}

const (
	waitingRoomGC  = 60 * time.Minute
	finishedRoomGC = 30 * time.Minute
	gcSweepPeriod  = 5 * time.Minute
)

// Hub is the process-wide coordinator: it owns the room registry, the
// shared session registry (identity must be unique across every room, not
// just one — so this table cannot live per-room), and the upgrade/auth path
// for new connections.
type Hub struct {
	mu    sync.Mutex
	rooms map[RoomIdType]*Room

	registry  *registry.Registry
	validator TokenValidator
	bus       BusService

	stopSweep chan struct{}
}

// NewHub wires a Hub ready to accept connections.
func NewHub(validator TokenValidator, busService BusService) *Hub {
	h := &Hub{
		rooms:     make(map[RoomIdType]*Room),
		registry:  registry.New(),
		validator: validator,
		bus:       busService,
		stopSweep: make(chan struct{}),
	}
	go h.sweepLoop()
	return h
}

func (h *Hub) sweepLoop() {
	ticker := time.NewTicker(gcSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.sweep()
		case <-h.stopSweep:
			return
		}
	}
}

// sweep removes rooms that have aged out per §5's waiting/finished GC windows.
func (h *Hub) sweep() {
	now := time.Now()
	h.mu.Lock()
	var stale []RoomIdType
	for id, r := range h.rooms {
		if r.IsFinishedIdleSince(now.Add(-finishedRoomGC)) || r.IsWaitingIdleSince(now.Add(-waitingRoomGC)) {
			stale = append(stale, id)
		}
	}
	h.mu.Unlock()

	for _, id := range stale {
		h.removeRoom(id)
	}
}

func (h *Hub) removeRoom(id RoomIdType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[id]; ok {
		delete(h.rooms, id)
		r.Close()
		metrics.ActiveRooms.Dec()
		logging.Info(context.Background(), "room removed", zap.String("roomId", string(id)))
	}
}

// Stop halts the GC sweep loop.
func (h *Hub) Stop() { close(h.stopSweep) }

// Listings returns the public catalog projection of every non-private,
// joinable room, newest activity first.
func (h *Hub) Listings() []Listing {
	h.mu.Lock()
	rooms := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	listings := make([]Listing, 0, len(rooms))
	for _, r := range rooms {
		if l, ok := r.Public(); ok {
			listings = append(listings, l)
		}
	}
	return listings
}

// RoomByID returns the room's public snapshot for the HTTP detail endpoint.
func (h *Hub) RoomByID(id RoomIdType) (Snapshot, bool) {
	h.mu.Lock()
	r, ok := h.rooms[id]
	h.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return r.Snapshot(), true
}

// ServeWs upgrades the connection and starts its pumps. The connection is
// not yet admitted to any room: the client must send room:create,
// room:join, room:spectate, or session:restore first.
func (h *Hub) ServeWs(c *gin.Context) {
	token := extractToken(c)
	guestID := c.Query("guestId")
	connectionID := uuid.NewString()

	ctx := c.Request.Context()
	ident := identity.Resolve(ctx, h.validator, token, guestID, connectionID)

	allowedOrigins := auth.GetAllowedOriginsFromEnv("ALLOWED_ORIGINS", []string{"http://localhost:3000"})
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, allowedOrigins) == nil
		},
		WriteBufferPool: &sync.Pool{New: func() any { return make([]byte, 4096) }},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(ctx, "websocket upgrade failed", zap.Error(err))
		return
	}

	displayName := ident.DisplayName
	if displayName == "" {
		displayName = c.Query("displayName")
	}

	client := NewClient(conn, h, ClientIdType(ident.ID), DisplayNameType(displayName), "", "")
	metrics.IncConnection()

	go client.writePump()
	go client.readPump()
}

// Dispatch implements Roomer for every freshly-connected client: it handles
// the four lifecycle requests directly and forwards everything else to the
// client's currently bound room, if any.
func (h *Hub) Dispatch(ctx context.Context, c *Client, env wire.Envelope) {
	switch env.Event {
	case wire.EventRoomCreate:
		h.handleCreate(ctx, c, env.Payload)
	case wire.EventRoomJoin:
		h.handleJoin(ctx, c, env.Payload)
	case wire.EventRoomSpectate:
		h.handleSpectate(ctx, c, env.Payload)
	case wire.EventSessionRestore:
		h.handleSessionRestore(ctx, c, env.Payload)
	case wire.EventPing:
		c.Send(wire.Message{Event: wire.EventPing})
	default:
		if r := c.BoundRoom(); r != nil {
			r.Dispatch(ctx, c, env)
			return
		}
		c.Send(wire.Message{Event: wire.EventError, Payload: wire.NewError(wire.ErrNotConnected, "not in a room")})
	}
}

// HandleClientConnect is a no-op for the Hub: admission attaches the client
// to a Room directly, there is no Hub-level connect step.
func (h *Hub) HandleClientConnect(c *Client) {}

// HandleClientDisconnect forwards to the bound room, if the connection ever
// got admitted to one.
func (h *Hub) HandleClientDisconnect(c *Client) {
	if r := c.BoundRoom(); r != nil {
		r.HandleClientDisconnect(c)
	}
}

func extractToken(c *gin.Context) string {
	if header := c.GetHeader("Sec-WebSocket-Protocol"); header != "" {
		for _, part := range strings.Split(header, ",") {
			part = strings.TrimSpace(part)
			if part != "" && part != "access_token" {
				return part
			}
		}
	}
	return c.Query("token")
}

func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return nil
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return err
	}
	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return nil
		}
	}
	return wire.NewError(wire.ErrValidationFailed, "origin not allowed")
}
