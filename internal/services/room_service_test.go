package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"coderoom/internal/auth"
	"coderoom/internal/config"
	"coderoom/internal/database"
	"coderoom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuth() *auth.Service {
	cfg := &config.Config{JWT: config.JWTConfig{Secret: []byte("test-secret"), ExpiresIn: time.Hour}}
	return auth.NewService(cfg).WithCost(bcrypt.MinCost)
}

func newTestRoomService(db database.Database) *RoomService {
	return NewRoomService(newTestAuth(), db, 500, time.Second)
}

func TestGetOrCreateIsIdempotentUnderContention(t *testing.T) {
	s := newTestRoomService(nil)
	ctx := context.Background()

	const callers = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		rooms   = make(map[*Room]bool)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			room, c, err := s.GetOrCreate(ctx, "room1", "Room One", "", "alice")
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			rooms[room] = true
			if c {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, rooms, 1)
	assert.Equal(t, 1, s.Count())
}

func TestGetOrCreateKeepsFirstWriter(t *testing.T) {
	s := newTestRoomService(nil)
	ctx := context.Background()

	first, created, err := s.GetOrCreate(ctx, "room1", "First", "secret", "alice")
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := s.GetOrCreate(ctx, "room1", "Second", "", "bob")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, first, second)
	assert.Equal(t, "First", second.Name())
	assert.Equal(t, "alice", second.Owner())
	assert.True(t, second.HasPassword())
}

func TestGetOrCreateValidatesRoomID(t *testing.T) {
	s := newTestRoomService(nil)

	_, _, err := s.GetOrCreate(context.Background(), "abcd", "", "", "alice")
	assert.ErrorIs(t, err, ErrInvalidRoomID)

	assert.NoError(t, ValidateRoomID("abcde"))
	assert.ErrorIs(t, ValidateUsername("al"), ErrInvalidUsername)
	assert.NoError(t, ValidateUsername("ali"))
}

func TestVerifyPassword(t *testing.T) {
	s := newTestRoomService(nil)
	ctx := context.Background()

	_, _, err := s.GetOrCreate(ctx, "locked", "Locked", "x", "alice")
	require.NoError(t, err)
	_, _, err = s.GetOrCreate(ctx, "open-room", "Open", "", "alice")
	require.NoError(t, err)

	assert.True(t, s.VerifyPassword(ctx, "locked", "x"))
	assert.False(t, s.VerifyPassword(ctx, "locked", "y"))
	assert.False(t, s.VerifyPassword(ctx, "locked", ""))
	assert.True(t, s.VerifyPassword(ctx, "open-room", "anything"))
	assert.False(t, s.VerifyPassword(ctx, "missing", "x"))
}

func TestRoomInfo(t *testing.T) {
	s := newTestRoomService(nil)
	ctx := context.Background()

	_, err := s.RoomInfo(ctx, "missing")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	room, _, err := s.GetOrCreate(ctx, "room1", "Room One", "x", "alice")
	require.NoError(t, err)
	room.AddMember(&models.Member{Username: "alice", Status: models.StatusOnline})

	info, err := s.RoomInfo(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, "room1", info.RoomID)
	assert.Equal(t, "Room One", info.RoomName)
	assert.True(t, info.HasPassword)
	assert.Equal(t, 1, info.UserCount)
	assert.False(t, info.CreatedAt.IsZero())
}

func TestUpdateName(t *testing.T) {
	db := newMemDB()
	s := newTestRoomService(db)
	ctx := context.Background()

	room, _, err := s.GetOrCreate(ctx, "room1", "Old", "", "alice")
	require.NoError(t, err)

	assert.ErrorIs(t, s.UpdateName(ctx, room, "  "), ErrInvalidRoomName)
	require.NoError(t, s.UpdateName(ctx, room, "New"))
	assert.Equal(t, "New", room.Name())

	rec, err := db.GetRoom(ctx, "room1")
	require.NoError(t, err)
	assert.Equal(t, "New", rec.Name)
}

func TestRoomsSurviveRestart(t *testing.T) {
	db := newMemDB()
	ctx := context.Background()
	history := NewHistoryService(db, 500, time.Second)

	s := newTestRoomService(db)
	room, _, err := s.GetOrCreate(ctx, "room1", "Room One", "x", "alice")
	require.NoError(t, err)
	_, err = history.AppendMessage(ctx, room, "alice", "hello")
	require.NoError(t, err)

	restarted := newTestRoomService(db)
	loaded, ok := restarted.Get(ctx, "room1")
	require.True(t, ok)
	assert.Equal(t, "Room One", loaded.Name())
	assert.Equal(t, "alice", loaded.Owner())
	assert.True(t, restarted.VerifyPassword(ctx, "room1", "x"))

	msgs := history.ChatHistory(loaded)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Message)

	_, ok = restarted.Get(ctx, "room2")
	assert.False(t, ok)
}

func TestMemberBookkeeping(t *testing.T) {
	room := newRoom("room1", "Room One", "", "alice", time.Now())

	assert.True(t, room.AddMember(&models.Member{ConnID: "c1", Username: "alice"}))
	assert.True(t, room.AddMember(&models.Member{ConnID: "c2", Username: "bob"}))
	assert.False(t, room.AddMember(&models.Member{ConnID: "c3", Username: "bob"}))

	m, ok := room.MemberByConn("c2")
	require.True(t, ok)
	assert.Equal(t, "bob", m.Username)

	updated, ok := room.UpdateMember("bob", func(m *models.Member) { m.Status = models.StatusOffline })
	require.True(t, ok)
	assert.Equal(t, models.StatusOffline, updated.Status)

	members := room.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Username)
	members[0].Username = "mallory"
	_, ok = room.Member("alice")
	assert.True(t, ok)

	_, ok = room.RemoveMember("alice")
	assert.True(t, ok)
	assert.Equal(t, 1, room.MemberCount())

	room.Ban("alice")
	assert.True(t, room.IsBanned("alice"))
	assert.True(t, room.IsOwner("alice"))
	assert.False(t, room.IsOwner("bob"))
}
