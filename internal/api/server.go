package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/api/handlers"
	"espcam-worker-go/internal/config"
)

type Server struct {
	config *config.Config
	router *gin.Engine
	server *http.Server

	healthHandler   *handlers.HealthHandler
	pipelineHandler *handlers.PipelineHandler
	cameraHandler   *handlers.CameraHandler
	systemHandler   *handlers.SystemHandler
}

func NewServer(cfg *config.Config, pipeline handlers.Pipeline, streamer handlers.Streamer) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		config:          cfg,
		router:          gin.New(),
		healthHandler:   handlers.NewHealthHandler(cfg, pipeline),
		pipelineHandler: handlers.NewPipelineHandler(pipeline, streamer),
		cameraHandler:   handlers.NewCameraHandler(pipeline),
		systemHandler:   handlers.NewSystemHandler(cfg.WorkerID),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.router,
	}
	return s
}

// Start blocks serving HTTP; it returns nil after Shutdown
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Str("docs", "/docs/index.html").Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}
