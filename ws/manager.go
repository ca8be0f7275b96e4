package ws

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when no socket is registered for a test.
var ErrNotConnected = errors.New("device test not connected")

const writeWait = 10 * time.Second

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	since   time.Time
}

// Manager keeps one telemetry socket per device test.
type Manager struct {
	mu          sync.RWMutex
	connections map[string]*conn // deviceTestID -> conn
}

func NewManager() *Manager {
	return &Manager{connections: make(map[string]*conn)}
}

// Register registers a connection, replacing and closing any existing one.
func (m *Manager) Register(deviceTestID string, ws *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.connections[deviceTestID]; ok && old.ws != ws {
		_ = old.ws.Close()
	}
	m.connections[deviceTestID] = &conn{ws: ws, since: time.Now().UTC()}
}

// Unregister removes the connection if it is still the registered one.
// A socket that was replaced by a newer one leaves the newer one alone.
func (m *Manager) Unregister(deviceTestID string, ws *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.connections[deviceTestID]; ok && c.ws == ws {
		_ = c.ws.Close()
		delete(m.connections, deviceTestID)
	}
}

// SendToDevice sends a text message to a device test if connected.
func (m *Manager) SendToDevice(deviceTestID string, payload []byte) error {
	m.mu.RLock()
	c, ok := m.connections[deviceTestID]
	m.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (m *Manager) IsConnected(deviceTestID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.connections[deviceTestID]
	return ok
}

// Connection describes one live socket.
type Connection struct {
	DeviceTestID string    `json:"device_test_id"`
	Since        time.Time `json:"since"`
}

// List returns the live connections sorted by device test id.
func (m *Manager) List() []Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Connection, 0, len(m.connections))
	for id, c := range m.connections {
		out = append(out, Connection{DeviceTestID: id, Since: c.since})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceTestID < out[j].DeviceTestID })
	return out
}
