package main

import (
	"context"
	"log"
	"time"

	"habita-chat/config"
	"habita-chat/internal/events"
	"habita-chat/internal/handler"
	"habita-chat/internal/proxy"
	"habita-chat/internal/realtime"
	"habita-chat/internal/redis"
	"habita-chat/internal/repository"
	"habita-chat/internal/server"
	"habita-chat/internal/services"
	"habita-chat/internal/session"
	"habita-chat/internal/ws"
	"habita-chat/pkg/database"
	"habita-chat/pkg/logger"

	"github.com/google/uuid"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(l)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	if err := database.RunFullMigration(db, "migrations"); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	redisClient := redis.NewClient(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})

	// Repositories
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	leadRepo := repository.NewLeadRepository(db)
	listingRepo := repository.NewListingRepository(db)
	userRepo := repository.NewUserRepository(db)

	access := proxy.NewAccessControl(convRepo)

	// Realtime plumbing
	publisher := redis.NewPublisher(redisClient)
	subscriber := redis.NewSubscriber(redisClient)
	presence := redis.NewPresenceStore(redisClient, time.Duration(cfg.PresenceTTLSec)*time.Second)
	bus := events.NewBus(publisher, l)
	channels := realtime.NewManager(redisClient, publisher, presence, access, l)

	limiterCfg := redis.DefaultRateLimitConfig()
	limiterCfg.MessageLimit = cfg.MessageRateLimit
	limiter := redis.NewRateLimiter(redisClient, limiterCfg)

	// Services
	authService := services.NewAuthService(cfg.JWTSecret, cfg.JWTExpiryMin)
	convService := services.NewConversationService(convRepo, listingRepo, msgRepo, access, bus, l)
	msgService := services.NewMessageService(db, msgRepo, convRepo, access, bus, l)
	leadService := services.NewLeadService(leadRepo, listingRepo, userRepo, convService, msgService, l)

	// WebSocket surface
	hub := ws.NewHub()
	sessionFactory := func(userID uuid.UUID, listener session.Listener) *session.Session {
		opener := func(conversationID, uid uuid.UUID) session.Channel {
			return channels.Open(conversationID, uid)
		}
		return session.New(userID, convService, msgService, opener, listener, l)
	}
	wsHandler := ws.NewHandler(authService, hub, sessionFactory, limiter, l)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)
	bridge := ws.NewBridge(subscriber, hub)
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			l.Errorf("user-channel bridge stopped: %v", err)
		}
	}()

	srv := server.New(cfg, l, db)
	srv.SetupRoutes(&server.Handlers{
		Conversations: handler.NewConversationHandler(convService),
		Messages:      handler.NewMessageHandler(msgService),
		Leads:         handler.NewLeadHandler(leadService),
		WS:            wsHandler,
	}, authService, limiter)

	if err := srv.Start(); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
