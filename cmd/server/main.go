package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"watch_party/internal/config"
	"watch_party/internal/gateway"
	"watch_party/internal/handler"
	"watch_party/internal/middleware"
	"watch_party/internal/repository"
	"watch_party/internal/service"
	"watch_party/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)

	if cfg.Database.MigrateOnStart {
		if err := repository.Migrate(cfg.Database.DSN, appLogger); err != nil {
			appLogger.Fatal("Failed to run migrations", "error", err)
		}
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to parse database DSN", "error", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	gw := gateway.New(gateway.NewRegistry(), appLogger)
	defer gw.Close()

	repos := repository.NewRepositories(dbPool, rdb, appLogger)
	services := service.NewServices(repos, cfg, gw, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	handlers := handler.NewHandlers(services, gw, cfg, appLogger)

	router := setupRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, appLogger)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		appLogger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", "error", err)
	}

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	authMiddleware *middleware.AuthMiddleware,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	appLogger logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(appLogger))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", handlers.Health.Check)

	// The realtime channel authenticates itself via token parameter.
	router.GET("/ws", handlers.WebSocket.Serve)

	v1 := router.Group("/api/v1")
	v1.Use(rateLimitMiddleware.Limit())

	auth := v1.Group("/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/refresh", handlers.Auth.RefreshToken)
		auth.POST("/logout", handlers.Auth.Logout)
	}

	authed := v1.Group("")
	authed.Use(authMiddleware.RequireAuth())
	{
		authed.GET("/users/me", handlers.User.GetMe)
		authed.PATCH("/users/me", handlers.User.UpdateMe)

		authed.POST("/matches", handlers.Match.Create)
		authed.GET("/matches", handlers.Match.List)
		authed.GET("/matches/:id", handlers.Match.GetByID)
		authed.GET("/matches/:id/rooms", handlers.Match.ListRooms)
		authed.PATCH("/matches/:id/status", handlers.Match.UpdateStatus)

		authed.POST("/rooms", handlers.Room.Create)
		authed.GET("/rooms/:id", handlers.Room.GetByID)
		authed.PATCH("/rooms/:id", handlers.Room.Update)
		authed.DELETE("/rooms/:id", handlers.Room.Delete)

		authed.POST("/rooms/:id/join", handlers.Membership.RequestEntry)
		authed.DELETE("/rooms/:id/join", handlers.Membership.Cancel)
		authed.POST("/rooms/:id/leave", handlers.Membership.Leave)
		authed.GET("/rooms/:id/pending", handlers.Membership.ListPending)
		authed.POST("/rooms/:id/approve", handlers.Membership.Approve)
		authed.POST("/rooms/:id/reject", handlers.Membership.Reject)
		authed.POST("/rooms/:id/kick", handlers.Membership.Kick)

		authed.GET("/rooms/:id/messages", handlers.Chat.History)
		authed.POST("/rooms/:id/messages", handlers.Chat.Send)
		authed.POST("/rooms/:id/read", handlers.Membership.MarkRead)
		authed.GET("/rooms/:id/unread", handlers.Membership.UnreadCount)
	}

	return router
}
