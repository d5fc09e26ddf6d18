package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"kanbansync/docs"
	"kanbansync/internal/config"
	"kanbansync/internal/handler"
	"kanbansync/internal/middleware"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	Engine *gin.Engine
	Config *config.RelayConfig
	logger log.FieldLogger
}

func Init(cfg *config.RelayConfig, hub handler.Hub, logger log.FieldLogger) *Server {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger))

	relayHandler := handler.NewRelayHandler(hub, logger)

	r.GET("/ws", relayHandler.ServeWS)
	r.GET("/health", relayHandler.Health)
	r.GET("/connections", relayHandler.Connections)
	r.GET("/notifications/target", relayHandler.GetNotificationTarget)
	r.PUT("/notifications/target", relayHandler.SetNotificationTarget)

	docs.SwaggerInfo.Host = "localhost:" + cfg.Port
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return &Server{Engine: r, Config: cfg, logger: logger}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    ":" + s.Config.Port,
		Handler: s.Engine,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("🚀 Relay running on port %s", s.Config.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("❌ failed to listen: %w", err)
	case <-ctx.Done():
	}
	s.logger.Info("🛑 Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("❌ server forced to shutdown: %w", err)
	}

	s.logger.Info("✅ Server exited properly")
	return nil
}
