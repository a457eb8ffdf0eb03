package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"coderoom/internal/auth"
	"coderoom/internal/database"
	"coderoom/internal/models"
	"coderoom/pkg/logger"
)

const (
	MinRoomIDLength   = 5
	MinUsernameLength = 3
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrInvalidRoomID   = fmt.Errorf("room id must be at least %d characters", MinRoomIDLength)
	ErrInvalidUsername = fmt.Errorf("username must be at least %d characters", MinUsernameLength)
	ErrInvalidRoomName = errors.New("room name is required")
)

func ValidateRoomID(roomID string) error {
	if len(strings.TrimSpace(roomID)) < MinRoomIDLength {
		return ErrInvalidRoomID
	}
	return nil
}

func ValidateUsername(username string) error {
	if len(strings.TrimSpace(username)) < MinUsernameLength {
		return ErrInvalidUsername
	}
	return nil
}

// RoomService is the authoritative store of rooms. Lookups hit memory
// first; when a database is configured, misses fall through to it and new
// rooms are written back.
type RoomService struct {
	mu             sync.Mutex
	rooms          map[string]*Room
	auth           *auth.Service
	db             database.Database
	historyLimit   int
	persistTimeout time.Duration
}

// NewRoomService builds the store. db may be nil for a memory-only
// deployment.
func NewRoomService(authService *auth.Service, db database.Database, historyLimit int, persistTimeout time.Duration) *RoomService {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &RoomService{
		rooms:          make(map[string]*Room),
		auth:           authService,
		db:             db,
		historyLimit:   historyLimit,
		persistTimeout: persistTimeout,
	}
}

// GetOrCreate returns the room with the given id, creating it when absent.
// Concurrent callers racing on the same id all receive the same *Room and
// exactly one of them sees created == true. The name, password and owner
// of later callers are ignored.
func (s *RoomService) GetOrCreate(ctx context.Context, roomID, name, password, owner string) (*Room, bool, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, false, err
	}
	if room, ok := s.Get(ctx, roomID); ok {
		return room, false, nil
	}

	var hash string
	if password != "" {
		var err error
		hash, err = s.auth.HashPassword(password)
		if err != nil {
			return nil, false, fmt.Errorf("failed to hash room password: %w", err)
		}
	}
	if strings.TrimSpace(name) == "" {
		name = roomID
	}

	s.mu.Lock()
	if existing, ok := s.rooms[roomID]; ok {
		s.mu.Unlock()
		return existing, false, nil
	}
	room := newRoom(roomID, name, hash, owner, time.Now().UTC())
	s.rooms[roomID] = room
	s.mu.Unlock()

	logger.Info("Room %s created by %s (password: %t)", roomID, owner, hash != "")
	s.persistRoom(ctx, room)
	return room, true, nil
}

// Get returns the room, loading it from the database on a memory miss.
func (s *RoomService) Get(ctx context.Context, roomID string) (*Room, bool) {
	s.mu.Lock()
	room, ok := s.rooms[roomID]
	s.mu.Unlock()
	if ok {
		return room, true
	}
	if s.db == nil {
		return nil, false
	}

	loaded, err := s.load(ctx, roomID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.Error("Error loading room %s: %v", roomID, err)
		}
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.rooms[roomID]; ok {
		return existing, true
	}
	s.rooms[roomID] = loaded
	logger.Debug("Room %s restored from database", roomID)
	return loaded, true
}

// VerifyPassword reports whether candidate opens the room. Rooms without a
// password accept anything; unknown rooms accept nothing.
func (s *RoomService) VerifyPassword(ctx context.Context, roomID, candidate string) bool {
	room, ok := s.Get(ctx, roomID)
	if !ok {
		return false
	}
	if !room.HasPassword() {
		return true
	}
	return s.auth.ComparePassword(room.passwordHash, candidate)
}

func (s *RoomService) RoomInfo(ctx context.Context, roomID string) (models.RoomInfo, error) {
	room, ok := s.Get(ctx, roomID)
	if !ok {
		return models.RoomInfo{}, ErrRoomNotFound
	}
	return room.Info(), nil
}

// UpdateName renames the room. The password cannot be changed after
// creation.
func (s *RoomService) UpdateName(ctx context.Context, room *Room, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidRoomName
	}
	room.setName(name)
	if s.db == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	if err := s.db.UpdateRoomName(ctx, room.ID(), name); err != nil {
		logger.Error("Error persisting name of room %s: %v", room.ID(), err)
	}
	return nil
}

func (s *RoomService) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *RoomService) load(ctx context.Context, roomID string) (*Room, error) {
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()

	rec, err := s.db.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	var messages []models.ChatMessage
	if s.historyLimit > 0 {
		messages, err = s.db.LoadRecentMessages(ctx, roomID, s.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to load chat history: %w", err)
		}
	}
	return roomFromRecord(rec, messages), nil
}

func (s *RoomService) persistRoom(ctx context.Context, room *Room) {
	if s.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.persistTimeout)
	defer cancel()
	if err := s.db.SaveRoom(ctx, room.record()); err != nil {
		logger.Error("Error persisting room %s: %v", room.ID(), err)
	}
}
