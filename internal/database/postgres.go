package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"coderoom/internal/models"
	"coderoom/pkg/logger"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL DEFAULT '',
	owner         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	file_tree     JSONB,
	drawing       JSONB
);

CREATE TABLE IF NOT EXISTS messages (
	id         TEXT PRIMARY KEY,
	room_id    TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	username   TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	seq        BIGSERIAL
);

CREATE INDEX IF NOT EXISTS messages_room_seq_idx ON messages (room_id, seq);
`

type PostgresDB struct {
	pool *pgxpool.Pool
}

func NewPostgresDB(ctx context.Context, databaseURL string) (*PostgresDB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logger.Info("Connected to database successfully")
	return &PostgresDB{pool: pool}, nil
}

func (db *PostgresDB) Close() error {
	db.pool.Close()
	return nil
}

// Room Repository Implementation
func (db *PostgresDB) SaveRoom(ctx context.Context, room *models.RoomRecord) error {
	tree, err := marshalNullable(room.FileTree)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO rooms (id, name, password_hash, owner, created_at, file_tree, drawing)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err = db.pool.Exec(ctx, query,
		room.ID, room.Name, room.PasswordHash, room.Owner, room.CreatedAt, tree, nullableRaw(room.Drawing),
	)
	if err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

func (db *PostgresDB) GetRoom(ctx context.Context, id string) (*models.RoomRecord, error) {
	query := `SELECT id, name, password_hash, owner, created_at, file_tree, drawing FROM rooms WHERE id = $1`

	room := &models.RoomRecord{}
	var tree, drawing []byte
	err := db.pool.QueryRow(ctx, query, id).Scan(
		&room.ID, &room.Name, &room.PasswordHash, &room.Owner, &room.CreatedAt, &tree, &drawing,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}

	if len(tree) > 0 {
		room.FileTree = &models.FileNode{}
		if err := json.Unmarshal(tree, room.FileTree); err != nil {
			return nil, fmt.Errorf("failed to decode file tree: %w", err)
		}
	}
	if len(drawing) > 0 {
		room.Drawing = json.RawMessage(drawing)
	}
	return room, nil
}

func (db *PostgresDB) UpdateRoomName(ctx context.Context, id, name string) error {
	_, err := db.pool.Exec(ctx, `UPDATE rooms SET name = $2 WHERE id = $1`, id, name)
	return err
}

// Message Repository Implementation
func (db *PostgresDB) SaveMessage(ctx context.Context, roomID string, msg models.ChatMessage) error {
	createdAt, err := time.Parse(time.RFC3339Nano, msg.Timestamp)
	if err != nil {
		createdAt = time.Now()
	}

	query := `INSERT INTO messages (id, room_id, username, content, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err = db.pool.Exec(ctx, query, msg.ID, roomID, msg.Username, msg.Message, createdAt)
	return err
}

func (db *PostgresDB) LoadRecentMessages(ctx context.Context, roomID string, limit int) ([]models.ChatMessage, error) {
	query := `
		SELECT id, username, content, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY seq DESC
		LIMIT $2`

	rows, err := db.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.ChatMessage
	for rows.Next() {
		var msg models.ChatMessage
		var createdAt time.Time
		if err := rows.Scan(&msg.ID, &msg.Username, &msg.Message, &createdAt); err != nil {
			return nil, err
		}
		msg.Timestamp = createdAt.UTC().Format(time.RFC3339Nano)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to show oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Snapshot Repository Implementation
func (db *PostgresDB) SaveFileTree(ctx context.Context, roomID string, tree *models.FileNode) error {
	data, err := marshalNullable(tree)
	if err != nil {
		return err
	}
	_, err = db.pool.Exec(ctx, `UPDATE rooms SET file_tree = $2 WHERE id = $1`, roomID, data)
	return err
}

func (db *PostgresDB) SaveDrawing(ctx context.Context, roomID string, drawing json.RawMessage) error {
	_, err := db.pool.Exec(ctx, `UPDATE rooms SET drawing = $2 WHERE id = $1`, roomID, nullableRaw(drawing))
	return err
}

func marshalNullable(tree *models.FileNode) ([]byte, error) {
	if tree == nil {
		return nil, nil
	}
	data, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file tree: %w", err)
	}
	return data, nil
}

func nullableRaw(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
