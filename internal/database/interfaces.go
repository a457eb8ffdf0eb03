package database

import (
	"context"
	"encoding/json"
	"errors"

	"coderoom/internal/models"
)

var ErrNotFound = errors.New("record not found")

type RoomRepository interface {
	// SaveRoom inserts the room unless a row with the same id exists.
	SaveRoom(ctx context.Context, room *models.RoomRecord) error
	GetRoom(ctx context.Context, id string) (*models.RoomRecord, error)
	UpdateRoomName(ctx context.Context, id, name string) error
}

type MessageRepository interface {
	SaveMessage(ctx context.Context, roomID string, msg models.ChatMessage) error
	LoadRecentMessages(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error)
}

type SnapshotRepository interface {
	SaveFileTree(ctx context.Context, roomID string, tree *models.FileNode) error
	SaveDrawing(ctx context.Context, roomID string, drawing json.RawMessage) error
}

type Database interface {
	RoomRepository
	MessageRepository
	SnapshotRepository
	Close() error
}
