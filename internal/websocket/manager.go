package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"coderoom/internal/models"
	"coderoom/internal/registry"
	"coderoom/internal/services"
	"coderoom/pkg/logger"

	"github.com/tidwall/gjson"
)

// Manager owns the hub of every active room and dispatches inbound
// frames. Requests that need no room state (room info, password checks)
// are answered directly; everything else is queued on the room's hub.
type Manager struct {
	hubs     map[string]*Hub
	joining  map[string]string
	mutex    sync.Mutex
	deps     Deps
	stop     chan struct{}
	stopOnce sync.Once
}

func NewManager(deps Deps) *Manager {
	manager := &Manager{
		hubs:    make(map[string]*Hub),
		joining: make(map[string]string),
		deps:    deps,
		stop:    make(chan struct{}),
	}

	go manager.cleanupUnusedHubs(deps.Config.Room.CleanupInterval)
	return manager
}

func (m *Manager) GetHubForRoom(roomID string) *Hub {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.hubLocked(roomID)
}

func (m *Manager) hubLocked(roomID string) *Hub {
	hub, exists := m.hubs[roomID]
	if !exists {
		hub = NewHub(roomID, m.deps)
		m.hubs[roomID] = hub
		go hub.Run()
		logger.Debug("Started hub for room %s", roomID)
	}
	return hub
}

func (m *Manager) HubCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.hubs)
}

// Connect registers a freshly upgraded connection. It stays unassociated
// until a join succeeds.
func (m *Manager) Connect(conn registry.Conn) error {
	if err := m.deps.Registry.Register(conn); err != nil {
		return err
	}
	logger.Debug("Connection %s registered", conn.ID())
	return nil
}

// HandleMessage decodes one frame from connID and dispatches it.
func (m *Manager) HandleMessage(connID string, data []byte) {
	entry, ok := m.deps.Registry.Lookup(connID)
	if !ok {
		return
	}
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
		logger.Warn("Malformed frame from connection %s", connID)
		m.sendError(connID, "Malformed message")
		return
	}
	ev := models.Event{Type: env.Event, Payload: env.Payload, ConnID: connID, ReceivedAt: time.Now()}

	switch ev.Type {
	case models.EventJoinRequest:
		m.handleJoinRequest(entry, ev)
	case models.EventRoomInfoRequest:
		m.handleRoomInfo(ev)
	case models.EventCheckPassword:
		m.handleCheckPassword(ev)
	case eventDisconnect:
		logger.Warn("Connection %s sent reserved event %q", connID, ev.Type)
	default:
		if !entry.Associated() {
			logger.Warn("Dropping %s from connection %s: not in a room", ev.Type, connID)
			return
		}
		m.submit(entry.RoomID, ev)
	}
}

// Disconnect forgets connID and starts the grace period of any member it
// was bound to.
func (m *Manager) Disconnect(connID string) {
	entry, ok := m.deps.Registry.Lookup(connID)
	m.mutex.Lock()
	joiningRoom := m.joining[connID]
	delete(m.joining, connID)
	m.mutex.Unlock()
	m.deps.Registry.Remove(connID)

	ev := models.Event{Type: eventDisconnect, ConnID: connID, ReceivedAt: time.Now()}
	if ok && entry.Associated() {
		m.submit(entry.RoomID, ev)
	}
	// A join may still be queued on a hub the registry does not know about yet.
	if joiningRoom != "" && (!ok || joiningRoom != entry.RoomID) {
		m.submit(joiningRoom, ev)
	}
	logger.Debug("Connection %s closed", connID)
}

func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mutex.Lock()
		defer m.mutex.Unlock()
		for roomID, hub := range m.hubs {
			hub.ShutdownHub()
			delete(m.hubs, roomID)
		}
	})
}

func (m *Manager) submit(roomID string, ev models.Event) {
	m.mutex.Lock()
	hub := m.hubLocked(roomID)
	hub.pending.Add(1)
	m.mutex.Unlock()
	if !hub.enqueue(hubMessage{event: ev}) {
		logger.Warn("Hub for room %s stopped, %s from %s dropped", roomID, ev.Type, ev.ConnID)
	}
}

func (m *Manager) handleJoinRequest(entry registry.Entry, ev models.Event) {
	roomID := gjson.GetBytes(ev.Payload, "roomId").String()
	if err := services.ValidateRoomID(roomID); err != nil {
		m.sendError(ev.ConnID, err.Error())
		return
	}
	if err := services.ValidateUsername(gjson.GetBytes(ev.Payload, "username").String()); err != nil {
		m.sendError(ev.ConnID, err.Error())
		return
	}

	if entry.Associated() && entry.RoomID != roomID {
		m.submit(entry.RoomID, models.Event{Type: models.EventLeaveRoom, ConnID: ev.ConnID, ReceivedAt: ev.ReceivedAt})
	}
	m.mutex.Lock()
	m.joining[ev.ConnID] = roomID
	m.mutex.Unlock()
	m.submit(roomID, ev)
}

func (m *Manager) handleRoomInfo(ev models.Event) {
	roomID := gjson.GetBytes(ev.Payload, "roomId").String()
	info, err := m.deps.Rooms.RoomInfo(context.Background(), roomID)
	if err != nil {
		m.sendError(ev.ConnID, "Room not found")
		return
	}
	m.send(ev.ConnID, models.EventRoomInfoResponse, models.RoomInfoPayload{RoomInfo: info})
}

func (m *Manager) handleCheckPassword(ev models.Event) {
	var p models.CheckPasswordPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		m.sendError(ev.ConnID, "Invalid password check")
		return
	}
	ctx := context.Background()
	if _, ok := m.deps.Rooms.Get(ctx, p.RoomID); !ok {
		m.sendError(ev.ConnID, "Room not found")
		return
	}
	if limit := m.deps.Config.Room.MaxPasswordAttempts; limit > 0 && m.deps.Registry.FailedPasswords(ev.ConnID, p.RoomID) >= limit {
		m.sendError(ev.ConnID, "too many password attempts")
		return
	}
	if !m.deps.Rooms.VerifyPassword(ctx, p.RoomID, p.Password) {
		attempts := m.deps.Registry.RecordFailedPassword(ev.ConnID, p.RoomID)
		logger.Warn("Incorrect password check for room %s from connection %s (attempt %d)", p.RoomID, ev.ConnID, attempts)
		m.send(ev.ConnID, models.EventPasswordIncorrect, models.RoomIDPayload{RoomID: p.RoomID})
		return
	}
	m.send(ev.ConnID, models.EventPasswordValid, models.RoomIDPayload{RoomID: p.RoomID})
}

func (m *Manager) send(connID string, event models.EventType, payload interface{}) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		logger.Error("Error encoding %s: %v", event, err)
		return
	}
	if conn, ok := m.deps.Registry.Conn(connID); ok && !conn.Send(data) {
		logger.Warn("Send queue full for connection %s, %s dropped", connID, event)
	}
}

func (m *Manager) sendError(connID, message string) {
	m.send(connID, models.EventError, models.ErrorPayload{Message: message})
}

func (m *Manager) cleanupUnusedHubs(interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cleanupIdle()
		}
	}
}

// cleanupIdle stops hubs of rooms with no members and nothing queued. The
// rooms themselves stay in the store.
func (m *Manager) cleanupIdle() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	stopped := 0
	for roomID, hub := range m.hubs {
		if hub.idle() {
			hub.ShutdownHub()
			delete(m.hubs, roomID)
			stopped++
			logger.Debug("Cleaned up unused hub for room %s", roomID)
		}
	}
	return stopped
}
