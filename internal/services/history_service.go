package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"coderoom/internal/database"
	"coderoom/internal/models"
	"coderoom/pkg/logger"

	"github.com/google/uuid"
)

var ErrEmptyMessage = errors.New("message is empty")

// HistoryService owns the per-room artifacts that late joiners pull: chat
// history, the file tree and the drawing snapshot. Mutations are applied
// in memory first and mirrored to the database when one is configured.
type HistoryService struct {
	db             database.Database
	limit          int
	persistTimeout time.Duration
}

func NewHistoryService(db database.Database, limit int, persistTimeout time.Duration) *HistoryService {
	if persistTimeout <= 0 {
		persistTimeout = 5 * time.Second
	}
	return &HistoryService{db: db, limit: limit, persistTimeout: persistTimeout}
}

// ChatHistory returns the stored messages oldest first.
func (h *HistoryService) ChatHistory(room *Room) []models.ChatMessage {
	room.mu.RLock()
	defer room.mu.RUnlock()
	out := make([]models.ChatMessage, len(room.messages))
	copy(out, room.messages)
	return out
}

// AppendMessage stamps a server id and timestamp on the message, stores it
// and returns the stored form.
func (h *HistoryService) AppendMessage(ctx context.Context, room *Room, username, body string) (models.ChatMessage, error) {
	if strings.TrimSpace(body) == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Username:  username,
		Message:   body,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	room.mu.Lock()
	room.messages = append(room.messages, msg)
	if h.limit > 0 && len(room.messages) > h.limit {
		room.messages = append([]models.ChatMessage(nil), room.messages[len(room.messages)-h.limit:]...)
	}
	room.mu.Unlock()

	if h.db != nil {
		ctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
		defer cancel()
		if err := h.db.SaveMessage(ctx, room.ID(), msg); err != nil {
			logger.Error("Error saving message in room %s: %v", room.ID(), err)
		}
	}
	return msg, nil
}

// FileTree returns a deep copy of the room's file tree.
func (h *HistoryService) FileTree(room *Room) *models.FileNode {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return cloneNode(room.fileTree)
}

func (h *HistoryService) FileContent(room *Room, fileID string) (string, bool) {
	room.mu.RLock()
	defer room.mu.RUnlock()
	node := findNode(room.fileTree, fileID)
	if node == nil || node.Type != models.FileTypeFile {
		return "", false
	}
	return node.Content, true
}

// UpdateFileTree applies one create, update, rename or delete. Mutations
// are last-write-wins in the order the room's hub applies them.
func (h *HistoryService) UpdateFileTree(ctx context.Context, room *Room, m FileMutation) error {
	room.mu.Lock()
	if room.fileTree == nil {
		room.fileTree = newRootDirectory()
	}
	err := applyMutation(room.fileTree, m)
	var snapshot *models.FileNode
	if err == nil {
		snapshot = cloneNode(room.fileTree)
	}
	room.mu.Unlock()
	if err != nil {
		return err
	}
	h.persistFileTree(ctx, room.ID(), snapshot)
	return nil
}

// ReplaceFileTree swaps in a whole tree, as sent by a member syncing a
// late joiner.
func (h *HistoryService) ReplaceFileTree(ctx context.Context, room *Room, tree *models.FileNode) error {
	if tree == nil || tree.Type != models.FileTypeDirectory {
		return ErrInvalidNode
	}
	snapshot := cloneNode(tree)
	room.mu.Lock()
	room.fileTree = cloneNode(tree)
	room.mu.Unlock()
	h.persistFileTree(ctx, room.ID(), snapshot)
	return nil
}

func (h *HistoryService) Drawing(room *Room) json.RawMessage {
	room.mu.RLock()
	defer room.mu.RUnlock()
	return room.drawing
}

// SetDrawing replaces the drawing snapshot. Empty or null snapshots are
// ignored.
func (h *HistoryService) SetDrawing(ctx context.Context, room *Room, snapshot json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(snapshot))
	if trimmed == "" || trimmed == "null" {
		return false
	}
	stored := append(json.RawMessage(nil), snapshot...)
	room.mu.Lock()
	room.drawing = stored
	room.mu.Unlock()

	if h.db != nil {
		ctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
		defer cancel()
		if err := h.db.SaveDrawing(ctx, room.ID(), stored); err != nil {
			logger.Error("Error saving drawing of room %s: %v", room.ID(), err)
		}
	}
	return true
}

func (h *HistoryService) persistFileTree(ctx context.Context, roomID string, tree *models.FileNode) {
	if h.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, h.persistTimeout)
	defer cancel()
	if err := h.db.SaveFileTree(ctx, roomID, tree); err != nil {
		logger.Error("Error saving file tree of room %s: %v", roomID, err)
	}
}
