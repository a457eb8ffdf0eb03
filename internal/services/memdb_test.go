package services

import (
	"context"
	"encoding/json"
	"sync"

	"coderoom/internal/database"
	"coderoom/internal/models"
)

// memDB is an in-memory database.Database for tests.
type memDB struct {
	mu       sync.Mutex
	rooms    map[string]*models.RoomRecord
	messages map[string][]models.ChatMessage
}

func newMemDB() *memDB {
	return &memDB{
		rooms:    make(map[string]*models.RoomRecord),
		messages: make(map[string][]models.ChatMessage),
	}
}

func (d *memDB) SaveRoom(_ context.Context, room *models.RoomRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.rooms[room.ID]; !ok {
		cp := *room
		d.rooms[room.ID] = &cp
	}
	return nil
}

func (d *memDB) GetRoom(_ context.Context, id string) (*models.RoomRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.rooms[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (d *memDB) UpdateRoomName(_ context.Context, id, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.rooms[id]
	if !ok {
		return database.ErrNotFound
	}
	rec.Name = name
	return nil
}

func (d *memDB) SaveMessage(_ context.Context, roomID string, msg models.ChatMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages[roomID] = append(d.messages[roomID], msg)
	return nil
}

func (d *memDB) LoadRecentMessages(_ context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msgs := d.messages[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]models.ChatMessage(nil), msgs...), nil
}

func (d *memDB) SaveFileTree(_ context.Context, roomID string, tree *models.FileNode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.rooms[roomID]; ok {
		rec.FileTree = tree
	}
	return nil
}

func (d *memDB) SaveDrawing(_ context.Context, roomID string, drawing json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if rec, ok := d.rooms[roomID]; ok {
		rec.Drawing = drawing
	}
	return nil
}

func (d *memDB) Close() error { return nil }
