package handlers

import "net/http"

// NewRouter wires every HTTP endpoint behind the CORS middleware.
func NewRouter(roomHandlers *RoomHandlers, wsHandlers *WebSocketHandlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/rooms/", roomHandlers.GetRoom)
	mux.HandleFunc("/ice-servers", roomHandlers.ICEServers)
	mux.HandleFunc("/healthz", Health)

	// WebSocket route
	mux.HandleFunc("/ws", wsHandlers.HandleWebSocket)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
