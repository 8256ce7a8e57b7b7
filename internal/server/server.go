package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"habita-chat/config"
	"habita-chat/internal/handler"
	"habita-chat/internal/middleware"
	"habita-chat/internal/redis"
	"habita-chat/internal/services"
	"habita-chat/internal/transport/httpdto"
	"habita-chat/internal/ws"
	"habita-chat/pkg/database"
	"habita-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
	db         *gorm.DB
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

// Handlers groups everything SetupRoutes mounts.
type Handlers struct {
	Conversations *handler.ConversationHandler
	Messages      *handler.MessageHandler
	Leads         *handler.LeadHandler
	WS            *ws.Handler
}

func New(cfg *config.Config, l *logger.Logger, db *gorm.DB) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
		db:     db,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter *redis.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(s.db); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	v1 := s.engine.Group("/api/v1")

	conversations := v1.Group("/conversations", middleware.AuthMiddleware(authService))
	{
		conversations.GET("", handlers.Conversations.List)
		conversations.POST("", handlers.Conversations.Create)
		conversations.POST("/resolve", handlers.Conversations.Resolve)
		conversations.GET("/:id", handlers.Conversations.GetByID)
		conversations.PATCH("/:id/visibility", handlers.Conversations.SetVisibility)
		conversations.POST("/:id/finish", handlers.Conversations.Finish)
		conversations.GET("/:id/messages", handlers.Messages.List)
		conversations.POST("/:id/messages", middleware.MessageRateLimitMiddleware(limiter), handlers.Messages.Send)
	}

	listings := v1.Group("/listings", middleware.AuthMiddleware(authService))
	{
		listings.GET("/:id/leads", handlers.Leads.ListByListing)
	}

	v1.POST("/leads",
		middleware.OptionalAuthMiddleware(authService),
		middleware.LeadRateLimitMiddleware(limiter),
		handlers.Leads.Submit,
	)

	s.engine.GET("/ws", handlers.WS.Connect)
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	<-quit

	if s.logger != nil {
		s.logger.Infof("Shutdown signal received, draining connections")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Errorf("graceful shutdown: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}
	return nil
}
