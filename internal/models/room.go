package models

import (
	"encoding/json"
	"time"
)

type FileType string

const (
	FileTypeFile      FileType = "file"
	FileTypeDirectory FileType = "directory"
)

// FileNode is one entry of a room's file tree. Directories carry Children,
// files carry Content.
type FileNode struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Type     FileType    `json:"type"`
	Content  string      `json:"content,omitempty"`
	Children []*FileNode `json:"children,omitempty"`
}

type ChatMessage struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

type Member struct {
	ConnID         string     `json:"socketId"`
	Username       string     `json:"username"`
	RoomID         string     `json:"roomId"`
	Status         UserStatus `json:"status"`
	Photo          string     `json:"photo,omitempty"`
	Typing         bool       `json:"typing"`
	Activity       string     `json:"activity,omitempty"`
	CurrentFile    string     `json:"currentFile,omitempty"`
	CursorPosition int        `json:"cursorPosition"`
	SelectionStart *int       `json:"selectionStart,omitempty"`
	SelectionEnd   *int       `json:"selectionEnd,omitempty"`
	AudioEnabled   bool       `json:"isAudioEnabled"`
	JoinedAt       time.Time  `json:"joinedAt"`
}

type RoomInfo struct {
	RoomID      string    `json:"room_id"`
	RoomName    string    `json:"room_name"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
	UserCount   int       `json:"user_count"`
}

// RoomRecord is the persisted form of a room.
type RoomRecord struct {
	ID           string
	Name         string
	PasswordHash string
	Owner        string
	CreatedAt    time.Time
	FileTree     *FileNode
	Drawing      json.RawMessage
}

type JoinRequest struct {
	RoomID       string `json:"roomId"`
	Username     string `json:"username"`
	Password     string `json:"password,omitempty"`
	RoomName     string `json:"roomName,omitempty"`
	SessionToken string `json:"sessionToken,omitempty"`
}

type JoinResult string

const (
	JoinAccepted          JoinResult = "accepted"
	JoinRoomCreated       JoinResult = "room_created"
	JoinPasswordRequired  JoinResult = "password_required"
	JoinPasswordIncorrect JoinResult = "password_incorrect"
	JoinUsernameTaken     JoinResult = "username_taken"
	JoinRejected          JoinResult = "error"
)
