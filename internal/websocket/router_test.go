package websocket

import (
	"encoding/json"
	"fmt"
	"testing"

	"coderoom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOutStaysInsideRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room-a", "alice", "")
	bob := env.joined("c2", "room-a", "bob", "")
	carol := env.joined("c3", "room-b", "carol", "")

	env.send(alice, models.EventSendMessage, models.MessagePayload{Message: models.ChatMessage{Message: "hello a"}})
	env.flush("room-a")
	env.flush("room-b")

	assert.Equal(t, 1, alice.count(models.EventReceiveMessage))
	assert.Equal(t, 1, bob.count(models.EventReceiveMessage))
	assert.Equal(t, 0, carol.count(models.EventReceiveMessage))
}

func TestSingleTargetOutsideRoomIsDropped(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room-a", "alice", "")
	carol := env.joined("c3", "room-b", "carol", "")

	env.send(alice, models.EventSyncDrawing, models.SyncDrawingPayload{
		DrawingData: json.RawMessage(`{"shapes":[]}`),
		SocketID:    "c3",
	})
	env.flush("room-a")

	assert.Equal(t, 0, carol.count(models.EventSyncDrawing))
}

func TestChatHistoryPull(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	env.send(alice, models.EventSendMessage, models.MessagePayload{Message: models.ChatMessage{Message: "hi"}})
	env.flush("room1")

	bob := env.joined("c2", "room1", "bob", "")
	env.send(bob, models.EventLoadChatHistory, nil)
	env.flush("room1")

	var history models.ChatHistoryPayload
	bob.last(t, models.EventChatHistoryLoaded, &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "alice", history.Messages[0].Username)
	assert.Equal(t, "hi", history.Messages[0].Message)
	assert.NotEmpty(t, history.Messages[0].ID)
	assert.NotEmpty(t, history.Messages[0].Timestamp)
}

func TestPerSenderOrderingIsPreserved(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	bob := env.joined("c2", "room1", "bob", "")

	for i := 0; i < 50; i++ {
		env.send(alice, models.EventSendMessage, models.MessagePayload{Message: models.ChatMessage{Message: fmt.Sprintf("m%d", i)}})
	}
	env.flush("room1")

	frames := bob.received(models.EventReceiveMessage)
	require.Len(t, frames, 50)
	for i, f := range frames {
		var p models.MessagePayload
		require.NoError(t, json.Unmarshal(f.Payload, &p))
		assert.Equal(t, fmt.Sprintf("m%d", i), p.Message.Message)
	}
}

func TestCursorUpdates(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	bob := env.joined("c2", "room1", "bob", "")

	start, end := 2, 6
	env.send(alice, models.EventTypingStart, models.CursorPayload{CursorPosition: 4, SelectionStart: &start, SelectionEnd: &end})
	env.flush("room1")

	var got models.UserPayload
	bob.last(t, models.EventTypingStart, &got)
	assert.Equal(t, "alice", got.User.Username)
	assert.True(t, got.User.Typing)
	assert.Equal(t, 4, got.User.CursorPosition)
	assert.Equal(t, 0, alice.count(models.EventTypingStart))

	env.send(alice, models.EventTypingPause, nil)
	env.flush("room1")
	bob.last(t, models.EventTypingPause, &got)
	assert.False(t, got.User.Typing)
	assert.Equal(t, 4, got.User.CursorPosition)

	// Selection end before start is invalid.
	env.send(alice, models.EventCursorMove, models.CursorPayload{CursorPosition: 1, SelectionStart: &end, SelectionEnd: &start})
	env.send(alice, models.EventCursorMove, models.CursorPayload{CursorPosition: -1})
	env.flush("room1")
	assert.Equal(t, 0, bob.count(models.EventCursorMove))
}

func TestFileEventsUpdateSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	bob := env.joined("c2", "room1", "bob", "")

	env.send(alice, models.EventFileCreated, models.FileCreatedPayload{
		ParentDirID: "root",
		NewFile:     &models.FileNode{ID: "f1", Name: "main.go", Type: models.FileTypeFile},
	})
	env.send(alice, models.EventFileUpdated, models.FileUpdatedPayload{FileID: "f1", NewContent: "package main"})
	env.flush("room1")

	assert.Equal(t, 1, bob.count(models.EventFileCreated))
	var update models.FileUpdatedPayload
	bob.last(t, models.EventFileUpdated, &update)
	assert.Equal(t, "package main", update.NewContent)

	carol := env.joined("c3", "room1", "carol", "")
	env.send(carol, models.EventLoadFileContent, models.FileIDPayload{FileID: "f1"})
	env.send(carol, models.EventLoadFileStructure, nil)
	env.flush("room1")

	var content models.FileContentPayload
	carol.last(t, models.EventFileContentLoaded, &content)
	assert.Equal(t, "package main", content.Content)

	var structure models.FileStructurePayload
	carol.last(t, models.EventFileStructureLoaded, &structure)
	require.NotNil(t, structure.FileStructure)
	require.Len(t, structure.FileStructure.Children, 1)
	assert.Equal(t, "main.go", structure.FileStructure.Children[0].Name)

	env.send(carol, models.EventLoadFileContent, models.FileIDPayload{FileID: "nope"})
	env.flush("room1")
	var errPayload models.ErrorPayload
	carol.last(t, models.EventError, &errPayload)
	assert.Equal(t, "File not found", errPayload.Message)
}

func TestSyncFileStructureTargetsOneMember(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	bob := env.joined("c2", "room1", "bob", "")
	carol := env.joined("c3", "room1", "carol", "")

	env.send(alice, models.EventSyncFileStructure, models.FileStructurePayload{
		FileStructure: &models.FileNode{ID: "root", Name: "root", Type: models.FileTypeDirectory},
		SocketID:      "c3",
	})
	env.flush("room1")

	assert.Equal(t, 1, carol.count(models.EventSyncFileStructure))
	assert.Equal(t, 0, bob.count(models.EventSyncFileStructure))
}

func TestDrawingSync(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	bob := env.joined("c2", "room1", "bob", "")

	// No snapshot yet: the request goes to the peers.
	env.send(bob, models.EventRequestDrawing, nil)
	env.flush("room1")
	var req models.SocketIDPayload
	alice.last(t, models.EventRequestDrawing, &req)
	assert.Equal(t, "c2", req.SocketID)

	env.send(alice, models.EventSyncDrawing, models.SyncDrawingPayload{
		DrawingData: json.RawMessage(`{"shapes":[1]}`),
		SocketID:    req.SocketID,
	})
	env.flush("room1")
	var synced models.SyncDrawingPayload
	bob.last(t, models.EventSyncDrawing, &synced)
	assert.JSONEq(t, `{"shapes":[1]}`, string(synced.DrawingData))

	env.send(alice, models.EventDrawingUpdate, models.DrawingPayload{Snapshot: json.RawMessage(`{"shapes":[1,2]}`)})
	env.flush("room1")
	assert.Equal(t, 1, bob.count(models.EventDrawingUpdate))

	// Late joiner is answered from the stored snapshot.
	carol := env.joined("c3", "room1", "carol", "")
	env.send(carol, models.EventRequestDrawing, nil)
	env.flush("room1")
	carol.last(t, models.EventSyncDrawing, &synced)
	assert.JSONEq(t, `{"shapes":[1,2]}`, string(synced.DrawingData))
	assert.Equal(t, 1, alice.count(models.EventRequestDrawing))
}

func TestRoomEditIsOwnerOnly(t *testing.T) {
	env := newTestEnv(t, nil)
	owner := env.joined("c1", "room1", "alice", "")
	bob := env.joined("c2", "room1", "bob", "")

	env.send(bob, models.EventEditRoomRequest, models.EditRoomPayload{RoomName: "Hijacked"})
	env.flush("room1")
	var resp models.EditRoomResponsePayload
	bob.last(t, models.EventEditRoomResponse, &resp)
	assert.False(t, resp.Success)

	env.send(owner, models.EventEditRoomRequest, models.EditRoomPayload{RoomName: "Renamed"})
	env.flush("room1")
	owner.last(t, models.EventEditRoomResponse, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "Renamed", resp.RoomInfo.RoomName)

	var updated models.RoomInfoPayload
	bob.last(t, models.EventRoomUpdated, &updated)
	assert.Equal(t, "Renamed", updated.RoomInfo.RoomName)

	env.send(bob, models.EventRoomOwnerCheck, nil)
	env.flush("room1")
	var ownerResp models.OwnerResponsePayload
	bob.last(t, models.EventRoomOwnerResponse, &ownerResp)
	assert.False(t, ownerResp.IsOwner)
	assert.Equal(t, "alice", ownerResp.Owner)
}

func TestPresenceEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	bob := env.joined("c2", "room1", "bob", "")

	env.send(bob, models.EventUpdateUserStatus, models.ActivityPayload{Status: "drawing"})
	env.send(bob, models.EventUserPhotoUpdated, models.UserPhotoPayload{Username: "bob", Photo: "https://example.com/b.png"})
	env.send(bob, models.EventUserPhotoUpdated, models.UserPhotoPayload{Username: "alice", Photo: "x"})
	env.send(alice, models.EventGetRoomUsers, nil)
	env.flush("room1")

	var status models.UserStatusPayload
	alice.last(t, models.EventUserStatusUpdated, &status)
	assert.Equal(t, "bob", status.Username)
	assert.Equal(t, "drawing", status.Status)
	assert.Equal(t, 1, alice.count(models.EventUserPhotoUpdated))

	var users models.UsersPayload
	alice.last(t, models.EventRoomUsersList, &users)
	require.Len(t, users.Users, 2)
	assert.Equal(t, "https://example.com/b.png", users.Users[1].Photo)
	assert.Equal(t, "drawing", users.Users[1].Activity)
}

func TestUnknownEventIsReported(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")

	env.send(alice, models.EventType("no-such-event"), nil)
	env.manager.HandleMessage("c1", []byte("not json"))
	env.flush("room1")

	assert.Equal(t, 2, alice.count(models.EventError))
}

func TestRouteRejectsSenderOutsideRoom(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	env.joined("c2", "room2", "bob", "")

	hub := env.manager.GetHubForRoom("room1")
	delivered := -1
	hub.Do(func() {
		delivered = hub.Route(models.EventReceiveMessage, models.ErrorPayload{Message: "x"}, "c2", ToRoom())
	})
	assert.Equal(t, 0, delivered)
	assert.Equal(t, 0, alice.count(models.EventReceiveMessage))
}

func TestSendMessageWithBody(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.joined("c1", "room1", "alice", "")
	bob := env.joined("c2", "room1", "bob", "")

	env.send(alice, models.EventSendMessage, map[string]string{"body": "hi"})
	env.flush("room1")

	var got models.MessagePayload
	bob.last(t, models.EventReceiveMessage, &got)
	assert.Equal(t, "alice", got.Message.Username)
	assert.Equal(t, "hi", got.Message.Message)

	env.send(bob, models.EventLoadChatHistory, nil)
	env.flush("room1")
	var history models.ChatHistoryPayload
	bob.last(t, models.EventChatHistoryLoaded, &history)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "hi", history.Messages[0].Message)

	env.send(alice, models.EventSendMessage, map[string]string{"body": "  "})
	env.flush("room1")
	var errPayload models.ErrorPayload
	alice.last(t, models.EventError, &errPayload)
	assert.Equal(t, "Message body is empty", errPayload.Message)
	assert.Equal(t, 1, bob.count(models.EventReceiveMessage))
}
