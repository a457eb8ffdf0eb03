package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coderoom/internal/auth"
	"coderoom/internal/config"
	"coderoom/internal/database"
	"coderoom/internal/handlers"
	"coderoom/internal/registry"
	"coderoom/internal/services"
	"coderoom/internal/turn"
	"coderoom/internal/websocket"
	"coderoom/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	// Persistence is optional; without DATABASE_URL rooms live in memory only.
	var db database.Database
	if cfg.Database.URL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := database.NewPostgresDB(ctx, cfg.Database.URL)
		cancel()
		if err != nil {
			logger.Fatal("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		db = pg
		logger.Info("Persisting rooms to PostgreSQL")
	} else {
		logger.Warn("DATABASE_URL not set, rooms are kept in memory only")
	}

	// Initialize services
	authService := auth.NewService(cfg)
	roomService := services.NewRoomService(authService, db, cfg.Room.HistoryLimit, cfg.Database.PersistTimeout)
	historyService := services.NewHistoryService(db, cfg.Room.HistoryLimit, cfg.Database.PersistTimeout)

	// Initialize WebSocket hub manager
	hubManager := websocket.NewManager(websocket.Deps{
		Registry: registry.New(),
		Rooms:    roomService,
		History:  historyService,
		Auth:     authService,
		Config:   cfg,
	})

	if cfg.TURN.Enabled {
		turnServer, err := turn.Start(cfg)
		if err != nil {
			logger.Fatal("Failed to start TURN relay: %v", err)
		}
		defer turnServer.Close()
	}

	// Initialize handlers
	roomHandlers := handlers.NewRoomHandlers(roomService, turn.ICEServers(cfg))
	wsHandlers := handlers.NewWebSocketHandlers(hubManager, cfg)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handlers.NewRouter(roomHandlers, wsHandlers),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	logger.Info("Server started on http://localhost%s (audio mode: %s)", cfg.Server.Port, cfg.Audio.Mode)
	logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
	printAPIEndpoints()

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Error during shutdown: %v", err)
	}
	hubManager.Shutdown()
}

func printAPIEndpoints() {
	logger.Info("API endpoints:")
	logger.Info("   GET  /ws")
	logger.Info("   GET  /rooms/{id}")
	logger.Info("   GET  /ice-servers")
	logger.Info("   GET  /healthz")
}
