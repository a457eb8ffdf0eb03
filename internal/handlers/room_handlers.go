package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"coderoom/internal/services"
	"coderoom/internal/turn"
	"coderoom/pkg/logger"
)

type RoomHandlers struct {
	roomService *services.RoomService
	iceServers  []turn.ICEServer
}

func NewRoomHandlers(roomService *services.RoomService, iceServers []turn.ICEServer) *RoomHandlers {
	return &RoomHandlers{
		roomService: roomService,
		iceServers:  iceServers,
	}
}

// GetRoom serves GET /rooms/{id}.
func (h *RoomHandlers) GetRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	roomID, err := getRoomIDFromPath(r)
	if err != nil {
		http.Error(w, "invalid room ID", http.StatusBadRequest)
		return
	}

	info, err := h.roomService.RoomInfo(r.Context(), roomID)
	if errors.Is(err, services.ErrRoomNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Get room error: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// ICEServers serves the STUN/TURN list clients feed to RTCPeerConnection.
func (h *RoomHandlers) ICEServers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"iceServers": h.iceServers})
}

func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func getRoomIDFromPath(r *http.Request) (string, error) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || parts[0] != "rooms" {
		return "", errors.New("invalid path")
	}
	if err := services.ValidateRoomID(parts[1]); err != nil {
		return "", err
	}
	return parts[1], nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error writing response: %v", err)
	}
}
