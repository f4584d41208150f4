// cmd/server/main.go
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/consistency-app/consistency-server/config"
	"github.com/consistency-app/consistency-server/internal/api"
	"github.com/consistency-app/consistency-server/internal/auth"
	"github.com/consistency-app/consistency-server/internal/database"
	"github.com/consistency-app/consistency-server/internal/logger"
	"github.com/consistency-app/consistency-server/internal/services"
	"github.com/consistency-app/consistency-server/internal/state"
	"github.com/consistency-app/consistency-server/internal/websocket"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	// Initialize database
	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.WithError(err).Error("failed to initialize database")
		os.Exit(1)
	}
	defer db.Close()

	// Redis is optional: without it the leaderboard falls back to SQL.
	var rdb *redis.Client
	if cfg.Redis.Host != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// Initialize services
	store := state.NewStore()
	userService := services.NewUserService(db)
	achievementService := services.NewAchievementService(db)
	leaderboardService := services.NewLeaderboardService(db, rdb)

	habitService := services.NewHabitService(db, store, achievementService).
		WithLeaderboard(leaderboardService)
	socialService := services.NewSocialService(db, store, achievementService)
	messageService := services.NewMessageService(db)
	syncService := services.NewSyncService(db, store, userService,
		habitService, socialService, messageService)

	auth.Init(userService, syncService)

	if rdb != nil {
		if err := leaderboardService.Rebuild(); err != nil {
			log.WithError(err).Warn("leaderboard rebuild failed, rankings may lag")
		}
	}

	r := mux.NewRouter()

	// Public routes (no authentication required)
	publicRouter := r.PathPrefix("/").Subrouter()
	publicRouter.HandleFunc("/api/v1/auth/register", auth.RegisterHandler).Methods("POST")
	publicRouter.HandleFunc("/api/v1/auth/login", auth.LoginHandler).Methods("POST")
	publicRouter.HandleFunc("/api/v1/auth/logout", auth.LogoutHandler).Methods("POST")

	// Authenticated routes
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(auth.AuthMiddleware)

	// WebSocket routes
	hub := websocket.RegisterRoutes(authRouter)
	habitService.WithBroadcaster(hub)
	messageService.WithBroadcaster(hub)

	// API routes
	apiRouter := authRouter.PathPrefix("/api/v1").Subrouter()
	handler := api.NewHandler(userService, habitService, socialService,
		messageService, leaderboardService, achievementService, syncService, store)
	api.RegisterRoutes(apiRouter, handler)

	// Invite resolution is public: visitors are not signed in yet.
	publicRouter.HandleFunc("/api/v1/invite/{ref}", handler.ResolveInvite).Methods("GET")

	// CORS setup for the web client
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("consistency server starting on %s", addr)
	log.Infof("database: %s", cfg.Database.Path)

	if err := http.ListenAndServe(addr, c.Handler(r)); err != nil {
		log.WithError(err).Error("server exited")
		os.Exit(1)
	}
}
