package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"teleraid/internal/config"
	"teleraid/internal/handler"
	"teleraid/internal/message_store"
	"teleraid/internal/middleware"
	"teleraid/internal/models"
	"teleraid/internal/queue"
	"teleraid/internal/raid_store"
	"teleraid/internal/service"
)

type Server struct {
	router   *gin.Engine
	cfg      *config.Config
	events   *queue.Queue[models.Envelope]
	raids    *raid_store.Store
	messages *message_store.Store
	logger   *zap.Logger
}

func NewServer(
	cfg *config.Config,
	events *queue.Queue[models.Envelope],
	raids *raid_store.Store,
	messages *message_store.Store,
	logger *zap.Logger,
) *Server {
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger))

	s := &Server{
		router:   router,
		cfg:      cfg,
		events:   events,
		raids:    raids,
		messages: messages,
		logger:   logger,
	}

	s.setupRoutes()

	return s
}

func (s *Server) setupRoutes() {
	webhookHandler := handler.NewWebhookHandler(s.events, s.logger)

	// Ping route for health check
	s.router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.POST("/", webhookHandler.Receive)

	if !s.cfg.Admin.Enabled {
		return
	}

	authService := service.NewAuthService(s.cfg, s.logger)
	authHandler := handler.NewAuthHandler(authService, s.logger)
	statusHandler := handler.NewStatusHandler(s.raids, s.messages)

	s.router.POST("/api/auth/login", authHandler.Login)

	authRequired := s.router.Group("/api")
	authRequired.Use(middleware.AuthMiddleware(authService, s.logger))
	{
		authRequired.GET("/raids", statusHandler.ListRaids)
		authRequired.GET("/messages", statusHandler.ListMessages)
	}
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("Server shutting down...")
	return srv.Shutdown(shutdownCtx)
}
