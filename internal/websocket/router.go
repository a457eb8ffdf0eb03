package websocket

import (
	"encoding/json"
	"fmt"

	"coderoom/internal/models"
	"coderoom/pkg/logger"
)

type TargetKind int

const (
	// TargetRoom delivers to every joined member, the sender included.
	TargetRoom TargetKind = iota
	// TargetOthers delivers to every joined member except the sender.
	TargetOthers
	// TargetSingle delivers to one member, addressed by username or
	// connection id.
	TargetSingle
)

type Target struct {
	Kind     TargetKind
	Username string
	ConnID   string
}

func ToRoom() Target { return Target{Kind: TargetRoom} }

func ToOthers() Target { return Target{Kind: TargetOthers} }

func ToUser(username string) Target { return Target{Kind: TargetSingle, Username: username} }

func ToConn(connID string) Target { return Target{Kind: TargetSingle, ConnID: connID} }

// Route encodes payload once and queues it on every recipient selected by
// target. An empty senderConnID marks a server-originated event; any other
// sender must be joined to the room. Recipients are always members of this
// room, and a single target that is not one is dropped silently. Route
// returns the number of recipients the frame was queued for.
func (h *Hub) Route(event models.EventType, payload interface{}, senderConnID string, target Target) int {
	if h.room == nil {
		return 0
	}
	if senderConnID != "" {
		if _, ok := h.joinedMember(senderConnID); !ok {
			logger.Warn("Rejected %s from %s: sender is not joined to room %s", event, senderConnID, h.roomID)
			return 0
		}
	}

	data, err := encodeFrame(event, payload)
	if err != nil {
		logger.Error("Error encoding %s for room %s: %v", event, h.roomID, err)
		return 0
	}

	delivered := 0
	for _, m := range h.room.Members() {
		if m.Status != models.StatusOnline || !target.matches(m, senderConnID) {
			continue
		}
		if h.deliver(m.ConnID, data) {
			delivered++
		}
	}
	if delivered == 0 && target.Kind == TargetSingle {
		logger.Debug("No recipient for %s in room %s (user %q conn %q)", event, h.roomID, target.Username, target.ConnID)
	}
	return delivered
}

func (t Target) matches(m *models.Member, senderConnID string) bool {
	switch t.Kind {
	case TargetRoom:
		return true
	case TargetOthers:
		return m.ConnID != senderConnID
	case TargetSingle:
		if t.ConnID != "" {
			return m.ConnID == t.ConnID
		}
		return m.Username == t.Username
	}
	return false
}

// sendTo unicasts to a connection whether or not it has joined, for
// responses and errors.
func (h *Hub) sendTo(connID string, event models.EventType, payload interface{}) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		logger.Error("Error encoding %s: %v", event, err)
		return
	}
	h.deliver(connID, data)
}

func (h *Hub) sendError(connID, message string) {
	h.sendTo(connID, models.EventError, models.ErrorPayload{Message: message})
}

func (h *Hub) deliver(connID string, data []byte) bool {
	conn, ok := h.deps.Registry.Conn(connID)
	if !ok {
		return false
	}
	if !conn.Send(data) {
		logger.Warn("Send queue full for connection %s in room %s, frame dropped", connID, h.roomID)
		return false
	}
	return true
}

func encodeFrame(event models.EventType, payload interface{}) ([]byte, error) {
	env := models.Envelope{Event: event}
	switch p := payload.(type) {
	case nil:
	case json.RawMessage:
		env.Payload = p
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}
