package room

import (
	"context"
	"sync"
	"time"

	"github.com/chess-room-engine/backend/internal/v1/bus"
	"github.com/gorilla/websocket"
)

// mockWSConnection implements wsConnection for testing, grounded on the
// teacher's MockWSConnection in internal/v1/session/room_test.go.
type mockWSConnection struct {
	mu            sync.Mutex
	readMessages  [][]byte
	readIndex     int
	writeMessages [][]byte
	closed        bool
}

func (m *mockWSConnection) ReadMessage() (int, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readIndex >= len(m.readMessages) {
		return 0, nil, websocket.ErrCloseSent
	}
	msg := m.readMessages[m.readIndex]
	m.readIndex++
	return websocket.TextMessage, msg, nil
}

func (m *mockWSConnection) WriteMessage(messageType int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeMessages = append(m.writeMessages, data)
	return nil
}

func (m *mockWSConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockWSConnection) SetWriteDeadline(t time.Time) error { return nil }

func (m *mockWSConnection) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// newTestClient builds a Client wired to a mock connection and the given
// room (or nil, when the test drives Room methods directly rather than the
// dispatch path).
func newTestClient(id ClientIdType, role RoleType, room Roomer) *Client {
	c := NewClient(&mockWSConnection{}, room, id, DisplayNameType(id), role, "")
	return c
}

// mockBusService is a no-op BusService double that records publishes.
type mockBusService struct {
	mu        sync.Mutex
	published []string
}

func (m *mockBusService) Publish(ctx context.Context, roomID, event string, payload any, senderID string, roles []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	return nil
}

func (m *mockBusService) Subscribe(ctx context.Context, roomID string, wg *sync.WaitGroup, handler func(bus.PubSubPayload)) {
}
