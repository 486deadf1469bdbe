package api

import (
	"espcam-worker-go/internal/api/middleware"
)

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	pipeline := s.router.Group("/pipeline")
	{
		pipeline.POST("/start", s.pipelineHandler.Start)
		pipeline.POST("/stop", s.pipelineHandler.Stop)
		pipeline.GET("/status", s.pipelineHandler.Status)
		pipeline.PATCH("/config", s.pipelineHandler.UpdateConfig)
		pipeline.GET("/detections", s.pipelineHandler.Detections)
		pipeline.GET("/frame", s.pipelineHandler.Frame)
		pipeline.GET("/stream", s.pipelineHandler.Stream)
	}

	cameras := s.router.Group("/cameras")
	{
		cameras.POST("/probe", s.cameraHandler.Probe)
	}

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
	}
}
