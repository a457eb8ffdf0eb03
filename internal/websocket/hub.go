package websocket

import (
	"sync"
	"sync/atomic"

	"coderoom/internal/auth"
	"coderoom/internal/config"
	"coderoom/internal/models"
	"coderoom/internal/registry"
	"coderoom/internal/services"
	"coderoom/pkg/logger"
)

// eventDisconnect is queued by the manager when a connection closes. It is
// never accepted from the wire.
const eventDisconnect models.EventType = "disconnect"

const inboundBuffer = 256

// Deps are the collaborators shared by every hub.
type Deps struct {
	Registry *registry.Registry
	Rooms    *services.RoomService
	History  *services.HistoryService
	Auth     *auth.Service
	Config   *config.Config
}

type hubMessage struct {
	event  models.Event
	expiry *graceExpiry
	fn     func()
}

// Hub serializes every state change of one room. Events are applied one at
// a time in arrival order by Run, so handlers never lock against each
// other.
type Hub struct {
	roomID string
	deps   Deps
	room   *services.Room

	inbound  chan hubMessage
	shutdown chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	pending atomic.Int64
	members atomic.Int64

	timers      map[string]*graceTimer
	graceGen    uint64
	pendingAuth map[string]string
	removed     map[string]bool
}

func NewHub(roomID string, deps Deps) *Hub {
	return &Hub{
		roomID:      roomID,
		deps:        deps,
		inbound:     make(chan hubMessage, inboundBuffer),
		shutdown:    make(chan struct{}),
		done:        make(chan struct{}),
		timers:      make(map[string]*graceTimer),
		pendingAuth: make(map[string]string),
		removed:     make(map[string]bool),
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.shutdown:
			h.stopTimers()
			logger.Debug("Hub for room %s stopped", h.roomID)
			return

		case msg := <-h.inbound:
			h.process(msg)
			if h.room != nil {
				h.members.Store(int64(h.room.MemberCount()))
			}
			h.pending.Add(-1)
		}
	}
}

func (h *Hub) process(msg hubMessage) {
	switch {
	case msg.fn != nil:
		msg.fn()
	case msg.expiry != nil:
		h.handleGraceExpired(*msg.expiry)
	default:
		h.handleEvent(msg.event)
	}
}

// enqueue blocks while the queue is full and reports false once the hub
// has stopped. The caller must already have counted msg in pending.
func (h *Hub) enqueue(msg hubMessage) bool {
	select {
	case h.inbound <- msg:
		return true
	case <-h.done:
		h.pending.Add(-1)
		return false
	}
}

// Do runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) Do(fn func()) bool {
	finished := make(chan struct{})
	h.pending.Add(1)
	if !h.enqueue(hubMessage{fn: func() { fn(); close(finished) }}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-h.done:
		return false
	}
}

// Flush waits until every event queued before the call has been applied.
func (h *Hub) Flush() {
	h.Do(func() {})
}

func (h *Hub) ShutdownHub() {
	h.stopOnce.Do(func() { close(h.shutdown) })
}

func (h *Hub) idle() bool {
	return h.pending.Load() == 0 && h.members.Load() == 0
}

func (h *Hub) handleEvent(ev models.Event) {
	switch ev.Type {
	case models.EventJoinRequest:
		result := h.handleJoin(ev)
		logger.Debug("Join of connection %s to room %s: %s", ev.ConnID, h.roomID, result)
		return
	case eventDisconnect:
		h.handleDisconnect(ev.ConnID)
		return
	}

	sender, ok := h.joinedMember(ev.ConnID)
	if !ok {
		logger.Warn("Dropping %s from connection %s: not joined to room %s", ev.Type, ev.ConnID, h.roomID)
		return
	}

	switch ev.Type {
	case models.EventLeaveRoom:
		h.removeMember(sender.Username, "left")
	case models.EventKickUser:
		h.handleKick(sender, ev)

	case models.EventTypingStart, models.EventTypingPause, models.EventCursorMove:
		h.handleCursor(sender, ev)

	case models.EventFileCreated, models.EventFileUpdated, models.EventFileRenamed, models.EventFileDeleted,
		models.EventDirectoryCreated, models.EventDirectoryUpdated, models.EventDirectoryRenamed, models.EventDirectoryDeleted:
		h.handleFileEvent(sender, ev)
	case models.EventSyncFileStructure:
		h.handleSyncFileStructure(sender, ev)
	case models.EventLoadFileStructure:
		h.sendTo(sender.ConnID, models.EventFileStructureLoaded, models.FileStructurePayload{
			FileStructure: h.deps.History.FileTree(h.room),
		})
	case models.EventLoadFileContent:
		h.handleLoadFileContent(sender, ev)

	case models.EventSendMessage:
		h.handleSendMessage(sender, ev)
	case models.EventLoadChatHistory:
		h.sendTo(sender.ConnID, models.EventChatHistoryLoaded, models.ChatHistoryPayload{
			Messages: h.deps.History.ChatHistory(h.room),
		})

	case models.EventRequestDrawing:
		h.handleRequestDrawing(sender)
	case models.EventSyncDrawing:
		h.handleSyncDrawing(sender, ev)
	case models.EventDrawingUpdate:
		h.handleDrawingUpdate(sender, ev)

	case models.EventEditRoomRequest:
		h.handleEditRoom(sender, ev)
	case models.EventRoomOwnerCheck:
		h.sendTo(sender.ConnID, models.EventRoomOwnerResponse, models.OwnerResponsePayload{
			IsOwner: h.room.IsOwner(sender.Username),
			Owner:   h.room.Owner(),
		})
	case models.EventGetRoomUsers:
		h.sendTo(sender.ConnID, models.EventRoomUsersList, models.UsersPayload{Users: h.room.Members()})
	case models.EventUpdateUserStatus:
		h.handleUserStatus(sender, ev)
	case models.EventUserPhotoUpdated:
		h.handleUserPhoto(sender, ev)

	case models.EventWebRTCOffer, models.EventWebRTCAnswer, models.EventWebRTCIceCandidate:
		h.relayWebRTC(sender, ev)
	case models.EventRemoteAudioStreamAdded:
		h.relayStreamAdded(sender, ev)
	case models.EventAudioBlob:
		h.relayAudioBlob(sender, ev)
	case models.EventUserAudioToggled:
		h.handleAudioToggle(sender, ev)
	case models.EventAudioJoinRoom:
		logger.Debug("%s announced audio in room %s", sender.Username, h.roomID)

	default:
		logger.Warn("Unknown event %q from %s in room %s", ev.Type, sender.Username, h.roomID)
		h.sendError(ev.ConnID, "Unknown event "+string(ev.Type))
	}
}

// joinedMember returns the member bound to connID if it is currently
// online in this room.
func (h *Hub) joinedMember(connID string) (models.Member, bool) {
	if h.room == nil || connID == "" {
		return models.Member{}, false
	}
	m, ok := h.room.MemberByConn(connID)
	if !ok || m.Status != models.StatusOnline {
		return models.Member{}, false
	}
	return m, true
}
