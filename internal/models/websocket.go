package models

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	EventJoinRequest       EventType = "join-request"
	EventJoinAccepted      EventType = "join-accepted"
	EventRoomCreated       EventType = "room-created"
	EventUsernameExists    EventType = "username-exists"
	EventPasswordRequired  EventType = "password-required"
	EventPasswordIncorrect EventType = "password-incorrect"
	EventRoomInfoRequest   EventType = "room-info-request"
	EventRoomInfoResponse  EventType = "room-info-response"
	EventCheckPassword     EventType = "check-room-password"
	EventPasswordValid     EventType = "password-valid"
	EventUserJoined        EventType = "user-joined"
	EventUserDisconnected  EventType = "user-disconnected"
	EventUserOnline        EventType = "online"
	EventUserLeft          EventType = "user-left"
	EventLeaveRoom         EventType = "leave-room"
	EventKickUser          EventType = "kick-user"
	EventUserBanned        EventType = "USER_BANNED_STATUS"
	EventError             EventType = "error"

	EventSyncFileStructure   EventType = "sync-file-structure"
	EventLoadFileStructure   EventType = "load-file-structure"
	EventFileStructureLoaded EventType = "file-structure-loaded"
	EventLoadFileContent     EventType = "load-file-content"
	EventFileContentLoaded   EventType = "file-content-loaded"
	EventDirectoryCreated    EventType = "directory-created"
	EventDirectoryUpdated    EventType = "directory-updated"
	EventDirectoryRenamed    EventType = "directory-renamed"
	EventDirectoryDeleted    EventType = "directory-deleted"
	EventFileCreated         EventType = "file-created"
	EventFileUpdated         EventType = "file-updated"
	EventFileRenamed         EventType = "file-renamed"
	EventFileDeleted         EventType = "file-deleted"

	EventSendMessage       EventType = "send-message"
	EventReceiveMessage    EventType = "receive-message"
	EventLoadChatHistory   EventType = "load_chat_history"
	EventChatHistoryLoaded EventType = "chat_history_loaded"

	EventTypingStart EventType = "typing-start"
	EventTypingPause EventType = "typing-pause"
	EventCursorMove  EventType = "cursor-move"

	EventRequestDrawing EventType = "request-drawing"
	EventSyncDrawing    EventType = "sync-drawing"
	EventDrawingUpdate  EventType = "drawing-update"

	EventEditRoomRequest   EventType = "EDIT_ROOM_REQUEST"
	EventEditRoomResponse  EventType = "EDIT_ROOM_RESPONSE"
	EventRoomOwnerCheck    EventType = "ROOM_OWNER_CHECK"
	EventRoomOwnerResponse EventType = "ROOM_OWNER_RESPONSE"
	EventRoomUpdated       EventType = "ROOM_UPDATED"
	EventGetRoomUsers      EventType = "GET_ROOM_USERS"
	EventRoomUsersList     EventType = "ROOM_USERS_LIST"
	EventUpdateUserStatus  EventType = "UPDATE_USER_STATUS"
	EventUserStatusUpdated EventType = "USER_STATUS_UPDATED"
	EventUserPhotoUpdated  EventType = "USER_PHOTO_UPDATED"

	EventWebRTCOffer            EventType = "WEBRTC_OFFER"
	EventWebRTCAnswer           EventType = "WEBRTC_ANSWER"
	EventWebRTCIceCandidate     EventType = "WEBRTC_ICE_CANDIDATE"
	EventRemoteAudioStreamAdded EventType = "REMOTE_AUDIO_STREAM_ADDED"
	EventAudioBlob              EventType = "AUDIO_BLOB"
	EventUserAudioToggled       EventType = "USER_AUDIO_TOGGLED"
	// EventAudioJoinRoom is sent by audio clients after they join. Room
	// membership is already settled by join-request.
	EventAudioJoinRoom          EventType = "JOIN_ROOM"
)

// Envelope is the wire frame exchanged with clients in both directions.
type Envelope struct {
	Event   EventType       `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Event is an inbound envelope tagged with the connection it arrived on.
type Event struct {
	Type       EventType
	Payload    json.RawMessage
	ConnID     string
	ReceivedAt time.Time
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type JoinAcceptedPayload struct {
	User         *Member   `json:"user"`
	Users        []*Member `json:"users"`
	RoomInfo     RoomInfo  `json:"roomInfo"`
	IsOwner      bool      `json:"isOwner"`
	Reconnected  bool      `json:"reconnected"`
	SessionToken string    `json:"sessionToken,omitempty"`
}

type UserPayload struct {
	User *Member `json:"user"`
}

type UsersPayload struct {
	Users []*Member `json:"users"`
}

type RoomIDPayload struct {
	RoomID string `json:"roomId"`
}

type SocketIDPayload struct {
	SocketID string `json:"socketId"`
}

type RoomInfoPayload struct {
	RoomInfo RoomInfo `json:"roomInfo"`
}

type CheckPasswordPayload struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password"`
}

type KickUserPayload struct {
	Username string `json:"username"`
}

type BannedPayload struct {
	RoomID string `json:"roomId"`
	Banned bool   `json:"banned"`
	Reason string `json:"reason,omitempty"`
}

// MessagePayload is received as {body} and broadcast as {message}. The
// nested {message: {message}} form of older clients is still read.
type MessagePayload struct {
	Body    string      `json:"body,omitempty"`
	Message ChatMessage `json:"message"`
}

// Text returns the message body in whichever form the client sent it.
func (p MessagePayload) Text() string {
	if p.Body != "" {
		return p.Body
	}
	return p.Message.Message
}

type ChatHistoryPayload struct {
	Messages []ChatMessage `json:"messages"`
}

type ActivityPayload struct {
	Status string `json:"status"`
}

type CursorPayload struct {
	CursorPosition int    `json:"cursorPosition"`
	SelectionStart *int   `json:"selectionStart,omitempty"`
	SelectionEnd   *int   `json:"selectionEnd,omitempty"`
	FileID         string `json:"fileId,omitempty"`
}

type FileStructurePayload struct {
	FileStructure *FileNode       `json:"fileStructure"`
	OpenFiles     json.RawMessage `json:"openFiles,omitempty"`
	ActiveFile    json.RawMessage `json:"activeFile,omitempty"`
	SocketID      string          `json:"socketId,omitempty"`
}

type FileIDPayload struct {
	FileID string `json:"fileId"`
}

type FileContentPayload struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

type FileCreatedPayload struct {
	ParentDirID string    `json:"parentDirId"`
	NewFile     *FileNode `json:"newFile"`
}

type FileUpdatedPayload struct {
	FileID     string `json:"fileId"`
	NewContent string `json:"newContent"`
}

type FileRenamedPayload struct {
	FileID  string `json:"fileId"`
	NewName string `json:"newName"`
}

type DirectoryCreatedPayload struct {
	ParentDirID  string    `json:"parentDirId"`
	NewDirectory *FileNode `json:"newDirectory"`
}

type DirectoryUpdatedPayload struct {
	DirID    string      `json:"dirId"`
	Children []*FileNode `json:"children"`
}

type DirectoryRenamedPayload struct {
	DirID   string `json:"dirId"`
	NewName string `json:"newName"`
}

type DirectoryIDPayload struct {
	DirID string `json:"dirId"`
}

type DrawingPayload struct {
	Snapshot json.RawMessage `json:"snapshot,omitempty"`
}

type SyncDrawingPayload struct {
	DrawingData json.RawMessage `json:"drawingData"`
	SocketID    string          `json:"socketId,omitempty"`
}

type EditRoomPayload struct {
	RoomName string `json:"roomName"`
}

type EditRoomResponsePayload struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	RoomInfo RoomInfo `json:"roomInfo"`
}

type OwnerResponsePayload struct {
	IsOwner bool   `json:"isOwner"`
	Owner   string `json:"owner"`
}

type UserStatusPayload struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}

type UserPhotoPayload struct {
	Username string `json:"username"`
	Photo    string `json:"photo,omitempty"`
}

type AudioTogglePayload struct {
	RoomID         string `json:"roomId"`
	Username       string `json:"username"`
	IsAudioEnabled bool   `json:"isAudioEnabled"`
}

type AudioBlobPayload struct {
	From string          `json:"from"`
	Blob json.RawMessage `json:"blob"`
}
