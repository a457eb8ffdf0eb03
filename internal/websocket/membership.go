package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"coderoom/internal/models"
	"coderoom/internal/services"
	"coderoom/pkg/logger"
)

// MemberState is where a username stands in a room's membership
// lifecycle.
type MemberState int

const (
	StateUnjoined MemberState = iota
	StatePendingPassword
	StateJoined
	StateDisconnected
	StateRemoved
)

func (s MemberState) String() string {
	switch s {
	case StatePendingPassword:
		return "pending-password"
	case StateJoined:
		return "joined"
	case StateDisconnected:
		return "disconnected"
	case StateRemoved:
		return "removed"
	}
	return "unjoined"
}

type graceTimer struct {
	timer      *time.Timer
	generation uint64
}

type graceExpiry struct {
	username   string
	generation uint64
}

// MemberState reports the state of username in this room.
func (h *Hub) MemberState(username string) MemberState {
	state := StateUnjoined
	h.Do(func() { state = h.stateOf(username) })
	return state
}

func (h *Hub) stateOf(username string) MemberState {
	if h.room != nil {
		if m, ok := h.room.Member(username); ok {
			if m.Status == models.StatusOnline {
				return StateJoined
			}
			return StateDisconnected
		}
	}
	for _, pending := range h.pendingAuth {
		if pending == username {
			return StatePendingPassword
		}
	}
	if h.removed[username] {
		return StateRemoved
	}
	return StateUnjoined
}

func (h *Hub) handleJoin(ev models.Event) models.JoinResult {
	var req models.JoinRequest
	if err := json.Unmarshal(ev.Payload, &req); err != nil {
		h.sendError(ev.ConnID, "Invalid join request")
		return models.JoinRejected
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := services.ValidateUsername(req.Username); err != nil {
		h.sendError(ev.ConnID, err.Error())
		return models.JoinRejected
	}
	if _, ok := h.deps.Registry.Lookup(ev.ConnID); !ok {
		logger.Debug("Join for room %s from closed connection %s ignored", h.roomID, ev.ConnID)
		return models.JoinRejected
	}

	if strings.TrimSpace(req.RoomName) == "" {
		req.RoomName = req.Username + "'s Room"
	}
	ctx := context.Background()
	room, created, err := h.deps.Rooms.GetOrCreate(ctx, h.roomID, req.RoomName, req.Password, req.Username)
	if err != nil {
		logger.Error("Error opening room %s: %v", h.roomID, err)
		h.sendError(ev.ConnID, err.Error())
		return models.JoinRejected
	}
	h.room = room

	if room.IsBanned(req.Username) {
		h.sendTo(ev.ConnID, models.EventUserBanned, models.BannedPayload{
			RoomID: h.roomID,
			Banned: true,
			Reason: "You have been removed from this room",
		})
		return models.JoinRejected
	}

	existing, exists := room.Member(req.Username)
	if exists && existing.Status == models.StatusOnline {
		if existing.ConnID == ev.ConnID {
			h.acknowledgeJoin(ev.ConnID, existing, false, false)
			return models.JoinAccepted
		}
		h.sendTo(ev.ConnID, models.EventUsernameExists, models.ErrorPayload{
			Message: "Username is already taken in this room",
		})
		return models.JoinUsernameTaken
	}

	if !created && room.HasPassword() && !h.resumeTokenValid(req) {
		if limit := h.deps.Config.Room.MaxPasswordAttempts; limit > 0 && h.deps.Registry.FailedPasswords(ev.ConnID, h.roomID) >= limit {
			h.sendError(ev.ConnID, "too many password attempts")
			return models.JoinRejected
		}
		if req.Password == "" {
			h.pendingAuth[ev.ConnID] = req.Username
			h.sendTo(ev.ConnID, models.EventPasswordRequired, models.RoomIDPayload{RoomID: h.roomID})
			return models.JoinPasswordRequired
		}
		if !h.deps.Rooms.VerifyPassword(ctx, h.roomID, req.Password) {
			attempts := h.deps.Registry.RecordFailedPassword(ev.ConnID, h.roomID)
			h.pendingAuth[ev.ConnID] = req.Username
			logger.Warn("Incorrect password for room %s from %s (attempt %d)", h.roomID, req.Username, attempts)
			h.sendTo(ev.ConnID, models.EventPasswordIncorrect, models.RoomIDPayload{RoomID: h.roomID})
			return models.JoinPasswordIncorrect
		}
	}
	h.deps.Registry.ResetFailedPasswords(ev.ConnID, h.roomID)
	delete(h.pendingAuth, ev.ConnID)

	// A connection renaming itself inside the room drops its old identity.
	if previous, ok := room.MemberByConn(ev.ConnID); ok && previous.Username != req.Username && previous.Status == models.StatusOnline {
		h.removeMember(previous.Username, "rejoined as "+req.Username)
	}

	var member models.Member
	if exists {
		h.cancelGrace(req.Username)
		member, _ = room.UpdateMember(req.Username, func(m *models.Member) {
			m.ConnID = ev.ConnID
			m.Status = models.StatusOnline
		})
	} else {
		member = models.Member{
			ConnID:   ev.ConnID,
			Username: req.Username,
			RoomID:   h.roomID,
			Status:   models.StatusOnline,
			JoinedAt: time.Now().UTC(),
		}
		room.AddMember(&member)
		delete(h.removed, req.Username)
	}

	if err := h.deps.Registry.Associate(ev.ConnID, h.roomID, req.Username); err != nil {
		logger.Warn("Connection %s closed while joining room %s: %v", ev.ConnID, h.roomID, err)
		h.handleDisconnect(ev.ConnID)
		return models.JoinRejected
	}

	if exists {
		h.Route(models.EventUserOnline, models.UserPayload{User: &member}, ev.ConnID, ToOthers())
		logger.Info("User %s reconnected to room %s", req.Username, h.roomID)
	} else {
		h.Route(models.EventUserJoined, models.UserPayload{User: &member}, ev.ConnID, ToOthers())
		logger.Info("User %s joined room %s", req.Username, h.roomID)
	}
	h.acknowledgeJoin(ev.ConnID, member, created, exists)
	if created {
		return models.JoinRoomCreated
	}
	return models.JoinAccepted
}

func (h *Hub) acknowledgeJoin(connID string, member models.Member, created, reconnected bool) {
	token, err := h.deps.Auth.IssueResumeToken(h.roomID, member.Username)
	if err != nil {
		logger.Error("Error issuing resume token for %s in room %s: %v", member.Username, h.roomID, err)
	}
	ack := models.JoinAcceptedPayload{
		User:         &member,
		Users:        h.room.Members(),
		RoomInfo:     h.room.Info(),
		IsOwner:      h.room.IsOwner(member.Username),
		Reconnected:  reconnected,
		SessionToken: token,
	}
	if created {
		h.sendTo(connID, models.EventRoomCreated, ack)
	}
	h.sendTo(connID, models.EventJoinAccepted, ack)
}

func (h *Hub) resumeTokenValid(req models.JoinRequest) bool {
	if req.SessionToken == "" {
		return false
	}
	if err := h.deps.Auth.ValidateResumeToken(req.SessionToken, h.roomID, req.Username); err != nil {
		logger.Debug("Resume token for %s in room %s rejected: %v", req.Username, h.roomID, err)
		return false
	}
	return true
}

func (h *Hub) handleDisconnect(connID string) {
	delete(h.pendingAuth, connID)
	if h.room == nil {
		return
	}
	member, ok := h.room.MemberByConn(connID)
	if !ok || member.Status != models.StatusOnline {
		return
	}
	updated, _ := h.room.UpdateMember(member.Username, func(m *models.Member) {
		m.Status = models.StatusOffline
		m.Typing = false
		m.AudioEnabled = false
	})

	h.Route(models.EventUserDisconnected, models.UserPayload{User: &updated}, "", ToRoom())
	if member.AudioEnabled {
		h.Route(models.EventUserAudioToggled, models.AudioTogglePayload{
			RoomID:   h.roomID,
			Username: member.Username,
		}, "", ToRoom())
	}
	h.startGrace(member.Username)
	logger.Info("User %s disconnected from room %s", member.Username, h.roomID)
}

func (h *Hub) startGrace(username string) {
	h.cancelGrace(username)
	h.graceGen++
	generation := h.graceGen
	timer := time.AfterFunc(h.deps.Config.Room.GracePeriod, func() {
		h.pending.Add(1)
		h.enqueue(hubMessage{expiry: &graceExpiry{username: username, generation: generation}})
	})
	h.timers[username] = &graceTimer{timer: timer, generation: generation}
}

func (h *Hub) cancelGrace(username string) {
	if gt, ok := h.timers[username]; ok {
		gt.timer.Stop()
		delete(h.timers, username)
	}
}

func (h *Hub) stopTimers() {
	for username, gt := range h.timers {
		gt.timer.Stop()
		delete(h.timers, username)
	}
}

func (h *Hub) handleGraceExpired(exp graceExpiry) {
	gt, ok := h.timers[exp.username]
	if !ok || gt.generation != exp.generation {
		return
	}
	delete(h.timers, exp.username)
	if m, ok := h.room.Member(exp.username); ok && m.Status == models.StatusOffline {
		h.removeMember(exp.username, "grace period expired")
	}
}

// removeMember drops username from the room and tells the remaining
// members.
func (h *Hub) removeMember(username, reason string) (models.Member, bool) {
	h.cancelGrace(username)
	removed, ok := h.room.RemoveMember(username)
	if !ok {
		return models.Member{}, false
	}
	h.removed[username] = true
	if entry, ok := h.deps.Registry.Lookup(removed.ConnID); ok && entry.RoomID == h.roomID && entry.Username == username {
		h.deps.Registry.Dissociate(removed.ConnID)
	}
	h.Route(models.EventUserLeft, models.UserPayload{User: &removed}, "", ToRoom())
	logger.Info("User %s removed from room %s: %s", username, h.roomID, reason)
	return removed, true
}

func (h *Hub) handleKick(sender models.Member, ev models.Event) {
	if !h.room.IsOwner(sender.Username) {
		h.sendError(sender.ConnID, "Only the room owner can remove users")
		return
	}
	var p models.KickUserPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil || p.Username == "" {
		h.sendError(sender.ConnID, "Invalid kick request")
		return
	}
	if p.Username == sender.Username {
		h.sendError(sender.ConnID, "You cannot remove yourself")
		return
	}
	target, ok := h.room.Member(p.Username)
	if !ok {
		h.sendError(sender.ConnID, "User not found in this room")
		return
	}

	h.room.Ban(target.Username)
	if target.Status == models.StatusOnline {
		h.sendTo(target.ConnID, models.EventUserBanned, models.BannedPayload{
			RoomID: h.roomID,
			Banned: true,
			Reason: "Removed by the room owner",
		})
	}
	h.removeMember(target.Username, "kicked by "+sender.Username)
}
