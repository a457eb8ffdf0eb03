package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"coderoom/internal/auth"
	"coderoom/internal/config"
	"coderoom/internal/models"
	"coderoom/internal/registry"
	"coderoom/internal/services"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// fakeConn records every frame routed to it.
type fakeConn struct {
	id     string
	addr   string
	mu     sync.Mutex
	frames []models.Envelope
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) bool {
	var env models.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return false
	}
	c.mu.Lock()
	c.frames = append(c.frames, env)
	c.mu.Unlock()
	return true
}

func (c *fakeConn) Close() {}

func (c *fakeConn) RemoteAddr() string { return c.addr }

func (c *fakeConn) received(event models.EventType) []models.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Envelope
	for _, f := range c.frames {
		if f.Event == event {
			out = append(out, f)
		}
	}
	return out
}

func (c *fakeConn) count(event models.EventType) int {
	return len(c.received(event))
}

// last decodes the payload of the most recent frame of the given event.
func (c *fakeConn) last(t *testing.T, event models.EventType, into interface{}) {
	t.Helper()
	frames := c.received(event)
	require.NotEmpty(t, frames, "connection %s received no %s", c.id, event)
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Payload, into))
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

type testEnv struct {
	t        *testing.T
	cfg      *config.Config
	registry *registry.Registry
	rooms    *services.RoomService
	manager  *Manager
}

func newTestEnv(t *testing.T, configure func(cfg *config.Config)) *testEnv {
	t.Helper()
	cfg := &config.Config{
		JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour},
		Room: config.RoomConfig{
			GracePeriod:         time.Minute,
			HistoryLimit:        500,
			MaxPasswordAttempts: 5,
			CleanupInterval:     time.Hour,
		},
		Audio: config.AudioConfig{Mode: config.AudioModeWebRTC, MaxBlobBytes: 1024},
	}
	if configure != nil {
		configure(cfg)
	}

	authService := auth.NewService(cfg).WithCost(bcrypt.MinCost)
	reg := registry.New()
	rooms := services.NewRoomService(authService, nil, cfg.Room.HistoryLimit, time.Second)
	manager := NewManager(Deps{
		Registry: reg,
		Rooms:    rooms,
		History:  services.NewHistoryService(nil, cfg.Room.HistoryLimit, time.Second),
		Auth:     authService,
		Config:   cfg,
	})
	t.Cleanup(manager.Shutdown)

	return &testEnv{t: t, cfg: cfg, registry: reg, rooms: rooms, manager: manager}
}

func (e *testEnv) connect(id string) *fakeConn {
	return e.connectFrom(id, "")
}

func (e *testEnv) connectFrom(id, addr string) *fakeConn {
	e.t.Helper()
	conn := &fakeConn{id: id, addr: addr}
	require.NoError(e.t, e.manager.Connect(conn))
	return conn
}

func (e *testEnv) send(conn *fakeConn, event models.EventType, payload interface{}) {
	e.t.Helper()
	env := models.Envelope{Event: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(e.t, err)
		env.Payload = raw
	}
	data, err := json.Marshal(env)
	require.NoError(e.t, err)
	e.manager.HandleMessage(conn.id, data)
}

func (e *testEnv) flush(roomID string) {
	e.manager.GetHubForRoom(roomID).Flush()
}

func (e *testEnv) join(conn *fakeConn, roomID, username, password string) {
	e.t.Helper()
	e.send(conn, models.EventJoinRequest, models.JoinRequest{RoomID: roomID, Username: username, Password: password})
	e.flush(roomID)
}

// joined connects and joins in one step, failing the test if the join is
// not accepted.
func (e *testEnv) joined(connID, roomID, username, password string) *fakeConn {
	e.t.Helper()
	conn := e.connect(connID)
	e.join(conn, roomID, username, password)
	require.Equal(e.t, 1, conn.count(models.EventJoinAccepted), "%s was not accepted into %s", username, roomID)
	return conn
}
