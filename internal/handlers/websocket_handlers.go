package handlers

import (
	"net/http"
	"strings"

	"coderoom/internal/config"
	ws "coderoom/internal/websocket"
	"coderoom/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	hubManager *ws.Manager
	cfg        *config.Config
	upgrader   websocket.Upgrader
}

func NewWebSocketHandlers(hubManager *ws.Manager, cfg *config.Config) *WebSocketHandlers {
	return &WebSocketHandlers{
		hubManager: hubManager,
		cfg:        cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.Server.AllowedOrigins),
		},
	}
}

// originChecker accepts requests without an Origin header and those whose
// origin is listed. A "*" entry accepts everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return func(r *http.Request) bool {
		if origins["*"] {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if origins[origin] {
			return true
		}
		logger.Warn("Rejected websocket from origin %s", origin)
		return false
	}
}

// HandleWebSocket upgrades the request and registers the connection. Room
// membership is negotiated afterwards with join-request frames.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	client := ws.NewClient(h.hubManager, conn, h.cfg.Server.MaxMessageBytes)
	if err := h.hubManager.Connect(client); err != nil {
		logger.Error("Error registering connection: %v", err)
		conn.Close()
		return
	}

	// Start client pumps
	go client.WritePump()
	go client.ReadPump()
}
