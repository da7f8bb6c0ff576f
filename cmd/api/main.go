package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harbor-chat/internal/config"
	"harbor-chat/internal/handler"
	"harbor-chat/internal/middleware"
	"harbor-chat/internal/redis"
	"harbor-chat/internal/registry"
	"harbor-chat/internal/repository"
	"harbor-chat/internal/services"
	"harbor-chat/internal/websocket"
	"harbor-chat/pkg/database"
	"harbor-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	l := logger.New(cfg.Server.Environment)
	logger.SetGlobalLogger(l)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		l.Errorf("database: %v", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	presence := redis.NewPresenceStore(redisClient, 0)
	publisher := redis.NewPublisher(redisClient)
	subscriber := redis.NewSubscriber(redisClient)
	limiter := redis.NewRateLimiter(redisClient, redis.DefaultRateLimitConfig())

	hub := websocket.NewHub()
	hub.OnFirstConnect(func(userID string) {
		if err := presence.SetOnline(context.Background(), userID); err != nil {
			l.Warnf("presence online %s: %v", userID, err)
		}
	})
	hub.OnLastDisconnect(func(userID string) {
		if err := presence.SetOffline(context.Background(), userID); err != nil {
			l.Warnf("presence offline %s: %v", userID, err)
		}
	})

	// Refresh heartbeats for locally connected users and reap entries
	// from nodes that died without cleaning up.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, userID := range hub.ConnectedUserIDs() {
					if err := presence.Heartbeat(ctx, userID); err != nil {
						l.Warnf("presence heartbeat %s: %v", userID, err)
					}
				}
				if reaped, err := presence.ReapStale(ctx); err != nil {
					l.Warnf("presence reap: %v", err)
				} else if reaped > 0 {
					l.Infof("presence: reaped %d stale entries", reaped)
				}
			}
		}
	}()

	reg := registry.NewHubRegistry(hub, presence, publisher, l)
	bridge := registry.NewBridge(reg.NodeID(), hub, subscriber, l)
	go func() {
		if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			l.Errorf("delivery bridge stopped: %v", err)
		}
	}()

	convRepo := repository.NewConversationRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	userRepo := repository.NewUserRepository(pool)

	messaging := services.NewMessagingService(convRepo, msgRepo, userRepo, reg, services.MessagingPolicy{
		BroadcastEligibleRoles: cfg.Messaging.BroadcastEligibleRoles,
	}, l)

	authorizer := websocket.NewAuthorizer(cfg.Auth.JWTSecret)
	wsHandler := websocket.NewHandler(hub, authorizer, l)
	convHandler := handler.NewConversationHandler(messaging)
	msgHandler := handler.NewMessageHandler(messaging)
	callHandler := handler.NewCallHandler(reg, cfg.Call.StunServers, l)

	if cfg.Server.Environment == logger.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware(l))
	r.Use(middleware.ErrorHandler(l))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/ws", wsHandler.Serve)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authorizer))
	{
		v1.POST("/conversations/direct", convHandler.CreateDirect)
		v1.POST("/conversations/group", convHandler.CreateGroup)
		v1.POST("/conversations/broadcast", convHandler.CreateBroadcast)
		v1.GET("/conversations", convHandler.List)
		v1.POST("/conversations/:id/participants", convHandler.AddParticipants)
		v1.POST("/conversations/:id/read", convHandler.MarkRead)
		v1.GET("/conversations/:id/messages", msgHandler.List)
		v1.POST("/conversations/:id/messages", middleware.MessageRateLimitMiddleware(limiter), msgHandler.Send)
		v1.POST("/messages/:id/reactions", msgHandler.ToggleReaction)
		v1.POST("/call/signal", middleware.SignalRateLimitMiddleware(limiter), callHandler.Signal)
		v1.GET("/call/connected", callHandler.Connected)
		v1.GET("/call/config", callHandler.Config)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		l.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Errorf("server: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	l.Infof("shutting down, %d websocket clients connected", hub.ClientCount())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Errorf("shutdown: %v", err)
	}
}
