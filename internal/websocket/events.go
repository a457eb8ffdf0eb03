package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"coderoom/internal/models"
	"coderoom/internal/services"
	"coderoom/pkg/logger"

	"github.com/tidwall/gjson"
)

var errMalformedPayload = errors.New("malformed payload")

func (h *Hub) handleCursor(sender models.Member, ev models.Event) {
	var p models.CursorPayload
	hasCursor := gjson.GetBytes(ev.Payload, "cursorPosition").Exists()
	if hasCursor {
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logger.Warn("Malformed %s from %s: %v", ev.Type, sender.Username, err)
			return
		}
		if !validCursor(p) {
			logger.Warn("Invalid cursor from %s in room %s dropped", sender.Username, h.roomID)
			return
		}
	}

	updated, _ := h.room.UpdateMember(sender.Username, func(m *models.Member) {
		switch ev.Type {
		case models.EventTypingStart:
			m.Typing = true
		case models.EventTypingPause:
			m.Typing = false
		}
		if hasCursor {
			m.CursorPosition = p.CursorPosition
			m.SelectionStart = p.SelectionStart
			m.SelectionEnd = p.SelectionEnd
			if p.FileID != "" {
				m.CurrentFile = p.FileID
			}
		}
	})
	h.Route(ev.Type, models.UserPayload{User: &updated}, sender.ConnID, ToOthers())
}

func validCursor(p models.CursorPayload) bool {
	if p.CursorPosition < 0 {
		return false
	}
	if p.SelectionStart != nil && *p.SelectionStart < 0 {
		return false
	}
	if p.SelectionEnd != nil && *p.SelectionEnd < 0 {
		return false
	}
	if p.SelectionStart != nil && p.SelectionEnd != nil && *p.SelectionEnd < *p.SelectionStart {
		return false
	}
	return true
}

// handleFileEvent mirrors a file or directory change into the room's
// snapshot and forwards the original payload to the other members. Peers
// hold their own copy of the tree, so a change the snapshot cannot apply
// is still forwarded.
func (h *Hub) handleFileEvent(sender models.Member, ev models.Event) {
	mutation, err := decodeFileMutation(ev)
	if err != nil {
		logger.Warn("Malformed %s from %s in room %s: %v", ev.Type, sender.Username, h.roomID, err)
		return
	}
	if err := h.deps.History.UpdateFileTree(context.Background(), h.room, mutation); err != nil {
		logger.Debug("File tree of room %s not updated by %s: %v", h.roomID, ev.Type, err)
	}
	h.Route(ev.Type, ev.Payload, sender.ConnID, ToOthers())
}

func decodeFileMutation(ev models.Event) (services.FileMutation, error) {
	switch ev.Type {
	case models.EventFileCreated:
		var p models.FileCreatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.NewFile == nil {
			return services.FileMutation{}, errMalformedPayload
		}
		if p.NewFile.Type == "" {
			p.NewFile.Type = models.FileTypeFile
		}
		return services.FileMutation{Kind: services.MutationCreate, ID: p.ParentDirID, Node: p.NewFile}, nil

	case models.EventDirectoryCreated:
		var p models.DirectoryCreatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.NewDirectory == nil {
			return services.FileMutation{}, errMalformedPayload
		}
		if p.NewDirectory.Type == "" {
			p.NewDirectory.Type = models.FileTypeDirectory
		}
		return services.FileMutation{Kind: services.MutationCreate, ID: p.ParentDirID, Node: p.NewDirectory}, nil

	case models.EventFileUpdated:
		var p models.FileUpdatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.FileID == "" {
			return services.FileMutation{}, errMalformedPayload
		}
		return services.FileMutation{
			Kind: services.MutationUpdate, NodeType: models.FileTypeFile, ID: p.FileID, Content: p.NewContent,
		}, nil

	case models.EventDirectoryUpdated:
		var p models.DirectoryUpdatedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.DirID == "" {
			return services.FileMutation{}, errMalformedPayload
		}
		return services.FileMutation{
			Kind: services.MutationUpdate, NodeType: models.FileTypeDirectory, ID: p.DirID, Children: p.Children,
		}, nil

	case models.EventFileRenamed:
		var p models.FileRenamedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.FileID == "" {
			return services.FileMutation{}, errMalformedPayload
		}
		return services.FileMutation{
			Kind: services.MutationRename, NodeType: models.FileTypeFile, ID: p.FileID, Name: p.NewName,
		}, nil

	case models.EventDirectoryRenamed:
		var p models.DirectoryRenamedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.DirID == "" {
			return services.FileMutation{}, errMalformedPayload
		}
		return services.FileMutation{
			Kind: services.MutationRename, NodeType: models.FileTypeDirectory, ID: p.DirID, Name: p.NewName,
		}, nil

	case models.EventFileDeleted:
		var p models.FileIDPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.FileID == "" {
			return services.FileMutation{}, errMalformedPayload
		}
		return services.FileMutation{Kind: services.MutationDelete, NodeType: models.FileTypeFile, ID: p.FileID}, nil

	case models.EventDirectoryDeleted:
		var p models.DirectoryIDPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil || p.DirID == "" {
			return services.FileMutation{}, errMalformedPayload
		}
		return services.FileMutation{Kind: services.MutationDelete, NodeType: models.FileTypeDirectory, ID: p.DirID}, nil
	}
	return services.FileMutation{}, errMalformedPayload
}

func (h *Hub) handleSyncFileStructure(sender models.Member, ev models.Event) {
	var p models.FileStructurePayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		logger.Warn("Malformed %s from %s: %v", ev.Type, sender.Username, err)
		return
	}
	if p.FileStructure != nil {
		if err := h.deps.History.ReplaceFileTree(context.Background(), h.room, p.FileStructure); err != nil {
			logger.Warn("File structure from %s in room %s rejected: %v", sender.Username, h.roomID, err)
		}
	}
	target := ToOthers()
	if p.SocketID != "" {
		target = ToConn(p.SocketID)
	}
	h.Route(ev.Type, ev.Payload, sender.ConnID, target)
}

func (h *Hub) handleLoadFileContent(sender models.Member, ev models.Event) {
	var p models.FileIDPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.FileID == "" {
		h.sendError(sender.ConnID, "Invalid file request")
		return
	}
	content, ok := h.deps.History.FileContent(h.room, p.FileID)
	if !ok {
		h.sendError(sender.ConnID, "File not found")
		return
	}
	h.sendTo(sender.ConnID, models.EventFileContentLoaded, models.FileContentPayload{FileID: p.FileID, Content: content})
}

func (h *Hub) handleSendMessage(sender models.Member, ev models.Event) {
	var p models.MessagePayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		logger.Warn("Malformed message from %s in room %s: %v", sender.Username, h.roomID, err)
		return
	}
	msg, err := h.deps.History.AppendMessage(context.Background(), h.room, sender.Username, p.Text())
	if err != nil {
		logger.Warn("Message from %s in room %s dropped: %v", sender.Username, h.roomID, err)
		h.sendError(sender.ConnID, "Message body is empty")
		return
	}
	h.Route(models.EventReceiveMessage, models.MessagePayload{Message: msg}, sender.ConnID, ToRoom())
}

// handleRequestDrawing answers from the stored snapshot. Without one it
// asks the other members, who reply with sync-drawing addressed to the
// requester.
func (h *Hub) handleRequestDrawing(sender models.Member) {
	if snapshot := h.deps.History.Drawing(h.room); snapshot != nil {
		h.sendTo(sender.ConnID, models.EventSyncDrawing, models.SyncDrawingPayload{DrawingData: snapshot})
		return
	}
	h.Route(models.EventRequestDrawing, models.SocketIDPayload{SocketID: sender.ConnID}, sender.ConnID, ToOthers())
}

func (h *Hub) handleSyncDrawing(sender models.Member, ev models.Event) {
	var p models.SyncDrawingPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		logger.Warn("Malformed %s from %s: %v", ev.Type, sender.Username, err)
		return
	}
	h.deps.History.SetDrawing(context.Background(), h.room, p.DrawingData)
	target := ToOthers()
	if p.SocketID != "" {
		target = ToConn(p.SocketID)
	}
	h.Route(models.EventSyncDrawing, models.SyncDrawingPayload{DrawingData: p.DrawingData}, sender.ConnID, target)
}

func (h *Hub) handleDrawingUpdate(sender models.Member, ev models.Event) {
	var p models.DrawingPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		logger.Warn("Malformed %s from %s: %v", ev.Type, sender.Username, err)
		return
	}
	h.deps.History.SetDrawing(context.Background(), h.room, p.Snapshot)
	h.Route(ev.Type, ev.Payload, sender.ConnID, ToOthers())
}

func (h *Hub) handleEditRoom(sender models.Member, ev models.Event) {
	if !h.room.IsOwner(sender.Username) {
		h.sendTo(sender.ConnID, models.EventEditRoomResponse, models.EditRoomResponsePayload{
			Message:  "Only the room owner can edit the room",
			RoomInfo: h.room.Info(),
		})
		return
	}
	var p models.EditRoomPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		h.sendError(sender.ConnID, "Invalid room update")
		return
	}
	if err := h.deps.Rooms.UpdateName(context.Background(), h.room, p.RoomName); err != nil {
		h.sendTo(sender.ConnID, models.EventEditRoomResponse, models.EditRoomResponsePayload{
			Message:  err.Error(),
			RoomInfo: h.room.Info(),
		})
		return
	}
	info := h.room.Info()
	h.sendTo(sender.ConnID, models.EventEditRoomResponse, models.EditRoomResponsePayload{Success: true, RoomInfo: info})
	h.Route(models.EventRoomUpdated, models.RoomInfoPayload{RoomInfo: info}, sender.ConnID, ToRoom())
	logger.Info("Room %s renamed to %q by %s", h.roomID, info.RoomName, sender.Username)
}

func (h *Hub) handleUserStatus(sender models.Member, ev models.Event) {
	var p models.ActivityPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		logger.Warn("Malformed %s from %s: %v", ev.Type, sender.Username, err)
		return
	}
	status := strings.TrimSpace(p.Status)
	h.room.UpdateMember(sender.Username, func(m *models.Member) { m.Activity = status })
	h.Route(models.EventUserStatusUpdated, models.UserStatusPayload{Username: sender.Username, Status: status}, sender.ConnID, ToRoom())
}

func (h *Hub) handleUserPhoto(sender models.Member, ev models.Event) {
	var p models.UserPhotoPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		logger.Warn("Malformed %s from %s: %v", ev.Type, sender.Username, err)
		return
	}
	if p.Username != "" && p.Username != sender.Username {
		logger.Warn("%s tried to change the photo of %s in room %s", sender.Username, p.Username, h.roomID)
		return
	}
	h.room.UpdateMember(sender.Username, func(m *models.Member) { m.Photo = p.Photo })
	h.Route(models.EventUserPhotoUpdated, models.UserPhotoPayload{Username: sender.Username, Photo: p.Photo}, sender.ConnID, ToRoom())
}
