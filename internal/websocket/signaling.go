package websocket

import (
	"encoding/json"

	"coderoom/internal/config"
	"coderoom/internal/models"
	"coderoom/pkg/logger"

	"github.com/tidwall/gjson"
)

// targetAll addresses every other member in a WebRTC signaling message.
// Browsers also send their own username as the target of ICE candidates,
// which is treated the same way.
const targetAll = "all"

// Signaling payloads are relayed without being decoded. Only the routing
// fields are peeked at.

func (h *Hub) relayWebRTC(sender models.Member, ev models.Event) {
	if h.deps.Config.Audio.Mode != config.AudioModeWebRTC {
		logger.Debug("Dropping %s from %s: audio mode is %s", ev.Type, sender.Username, h.deps.Config.Audio.Mode)
		return
	}
	if !h.sameRoom(ev.Payload) {
		logger.Warn("Dropping %s from %s: payload names another room", ev.Type, sender.Username)
		return
	}

	stamped, err := stampSender(ev.Payload, sender.Username)
	if err != nil {
		logger.Warn("Malformed %s from %s in room %s: %v", ev.Type, sender.Username, h.roomID, err)
		return
	}

	target := gjson.GetBytes(ev.Payload, "targetUser").String()
	switch target {
	case "", targetAll, sender.Username:
		h.Route(ev.Type, stamped, sender.ConnID, ToOthers())
	default:
		h.Route(ev.Type, stamped, sender.ConnID, ToUser(target))
	}
}

func (h *Hub) relayStreamAdded(sender models.Member, ev models.Event) {
	if h.deps.Config.Audio.Mode != config.AudioModeWebRTC {
		return
	}
	stamped, err := stampSender(ev.Payload, sender.Username)
	if err != nil {
		logger.Warn("Malformed %s from %s in room %s: %v", ev.Type, sender.Username, h.roomID, err)
		return
	}
	h.Route(ev.Type, stamped, sender.ConnID, ToOthers())
}

// relayAudioBlob fans a recorded audio chunk out to the other members as
// {from, blob}. Blobs that are oversized, that claim another sender or
// another room are dropped.
func (h *Hub) relayAudioBlob(sender models.Member, ev models.Event) {
	if h.deps.Config.Audio.Mode != config.AudioModeBlob {
		logger.Debug("Dropping %s from %s: audio mode is %s", ev.Type, sender.Username, h.deps.Config.Audio.Mode)
		return
	}
	blob := gjson.GetBytes(ev.Payload, "blob")
	if !blob.Exists() {
		logger.Warn("Dropping %s from %s: no blob", ev.Type, sender.Username)
		return
	}
	if limit := h.deps.Config.Audio.MaxBlobBytes; limit > 0 && len(blob.Raw) > limit {
		logger.Warn("Dropping %s from %s: %d bytes exceeds %d", ev.Type, sender.Username, len(blob.Raw), limit)
		return
	}
	if claimed := gjson.GetBytes(ev.Payload, "username"); claimed.Exists() && claimed.String() != sender.Username {
		logger.Warn("Dropping %s from %s: claims to be %s", ev.Type, sender.Username, claimed.String())
		return
	}
	if !h.sameRoom(ev.Payload) {
		logger.Warn("Dropping %s from %s: payload names another room", ev.Type, sender.Username)
		return
	}

	h.Route(models.EventAudioBlob, models.AudioBlobPayload{
		From: sender.Username,
		Blob: json.RawMessage(blob.Raw),
	}, sender.ConnID, ToOthers())
}

func (h *Hub) handleAudioToggle(sender models.Member, ev models.Event) {
	enabled := gjson.GetBytes(ev.Payload, "isAudioEnabled").Bool()
	h.room.UpdateMember(sender.Username, func(m *models.Member) { m.AudioEnabled = enabled })
	h.Route(models.EventUserAudioToggled, models.AudioTogglePayload{
		RoomID:         h.roomID,
		Username:       sender.Username,
		IsAudioEnabled: enabled,
	}, sender.ConnID, ToRoom())
}

func (h *Hub) sameRoom(payload json.RawMessage) bool {
	roomID := gjson.GetBytes(payload, "roomId")
	return !roomID.Exists() || roomID.String() == h.roomID
}

// stampSender sets fromUser on an opaque JSON object so the recipient can
// address its reply.
func stampSender(payload json.RawMessage, username string) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, err
		}
	}
	if fields == nil {
		fields = make(map[string]json.RawMessage, 1)
	}
	from, err := json.Marshal(username)
	if err != nil {
		return nil, err
	}
	fields["fromUser"] = from
	return json.Marshal(fields)
}
