package room

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/chess-room-engine/backend/internal/v1/logging"
	"github.com/chess-room-engine/backend/internal/v1/metrics"
	"github.com/chess-room-engine/backend/internal/v1/wire"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConnection is the subset of *websocket.Conn this package depends on,
// narrowed so tests can substitute an in-memory double.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
}

// Roomer is the subset of *Room a Client depends on, so tests can
// substitute a fake room without pulling in the full state machine.
type Roomer interface {
	HandleClientConnect(c *Client)
	HandleClientDisconnect(c *Client)
	Dispatch(ctx context.Context, c *Client, env wire.Envelope)
}

// Client represents one connection bound to a room: a host, opponent, or
// spectator. It implements the dual send-channel discipline described in
// the engine's event bus design — terminal/error events must never queue
// behind chat traffic on a slow connection.
type Client struct {
	conn wsConnection
	room Roomer

	ID          ClientIdType
	DisplayName DisplayNameType

	mu        sync.RWMutex
	role      RoleType
	color     string // "white", "black", or "" for spectators
	boundRoom *Room  // the room this connection is currently admitted to, if any

	closeOnce sync.Once
	closed    bool

	send         chan []byte // regular traffic: chat, draw offers, room:updated
	prioritySend chan []byte // game:move, game:ended, room:kicked, error
}

// NewClient constructs a Client ready to be handed to a Roomer.
func NewClient(conn wsConnection, room Roomer, id ClientIdType, name DisplayNameType, role RoleType, color string) *Client {
	return &Client{
		conn:         conn,
		room:         room,
		ID:           id,
		DisplayName:  name,
		role:         role,
		color:        color,
		send:         make(chan []byte, 256),
		prioritySend: make(chan []byte, 256),
	}
}

func (c *Client) GetRole() RoleType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.role
}

func (c *Client) SetRole(role RoleType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.role = role
}

// BindRoom records which room this connection is currently admitted to, so
// the Hub can forward in-room events without maintaining its own lookup.
func (c *Client) BindRoom(r *Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boundRoom = r
}

func (c *Client) BoundRoom() *Room {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.boundRoom
}

func (c *Client) Color() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.color
}

func (c *Client) SetColor(color string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.color = color
}

// Disconnect forcefully closes the underlying connection, used to deliver a
// kick: the target must actually be dropped, not just notified.
func (c *Client) Disconnect() {
	c.conn.Close()
}

var priorityEvents = map[wire.Event]bool{
	wire.EventGameEnded:    true,
	wire.EventRoomKicked:   true,
	wire.EventRoomClosed:   true,
	wire.EventError:        true,
	wire.EventGameSync:     true,
}

// Send enqueues a message for delivery, routing terminal/error events to the
// priority channel so a backlog of chat never delays them. A full channel
// drops the message rather than blocking the room's critical section.
func (c *Client) Send(msg wire.Message) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	c.mu.RUnlock()

	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal outbound message", zap.Error(err))
		return
	}

	ch := c.send
	if priorityEvents[msg.Event] {
		ch = c.prioritySend
	}

	select {
	case ch <- data:
	default:
		logging.Warn(context.Background(), "client channel full, dropping message",
			zap.String("clientId", string(c.ID)), zap.String("event", string(msg.Event)))
	}
}

// readPump decodes incoming frames and dispatches them to the room. It runs
// until the connection errors or closes, then triggers disconnect cleanup.
func (c *Client) readPump() {
	defer func() {
		c.room.HandleClientDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var env wire.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logging.Warn(context.Background(), "failed to unmarshal envelope", zap.Error(err))
			continue
		}

		c.room.Dispatch(context.Background(), c, env)
	}
}

// writePump drains the priority channel ahead of the regular channel on
// every iteration, then services whichever is ready next.
func (c *Client) writePump() {
	defer c.conn.Close()
	const writeWait = 10 * time.Second

	for {
		select {
		case message, ok := <-c.prioritySend:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}

// Close marks the client closed and closes both send channels exactly once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
		close(c.prioritySend)
	})
}
