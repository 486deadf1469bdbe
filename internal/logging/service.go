package logging

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/config"
)

// NewServiceLogger tags every line with the worker id and the service name
func NewServiceLogger(cfg *config.Config, service string) zerolog.Logger {
	return log.With().Str("worker_id", cfg.WorkerID).Str("service", service).Logger()
}

// WithCamera adds the camera target to a service logger
func WithCamera(base zerolog.Logger, target string) zerolog.Logger {
	return base.With().Str("camera", target).Logger()
}
