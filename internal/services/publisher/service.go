package publisher

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"espcam-worker-go/internal/config"
	"espcam-worker-go/internal/models"
	"espcam-worker-go/internal/services/publisher/mjpeg"
)

// Service is the network presentation side of the pipeline: the latest
// annotated frame as JPEG and the MJPEG stream.
type Service struct {
	cfg            *config.Config
	mjpegPublisher *mjpeg.Publisher
}

func NewService(cfg *config.Config, logger *zerolog.Logger) *Service {
	return &Service{
		cfg:            cfg,
		mjpegPublisher: mjpeg.NewPublisher(cfg.PublishQuality, logger),
	}
}

// Present encodes the annotated frame for HTTP clients
func (s *Service) Present(frame models.Frame, result models.DetectionResult, stats models.CycleStats) error {
	return s.mjpegPublisher.Present(frame, result, stats)
}

func (s *Service) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request) {
	s.mjpegPublisher.StreamMJPEGHTTP(w, r)
}

// LatestJPEG returns the last annotated frame as JPEG
func (s *Service) LatestJPEG() ([]byte, bool) {
	jpeg, _, ok := s.mjpegPublisher.LatestJPEG()
	return jpeg, ok
}

// Viewers is the number of connected MJPEG clients
func (s *Service) Viewers() int {
	return s.mjpegPublisher.Viewers()
}

// Clear forgets the last frame when a session ends
func (s *Service) Clear() {
	s.mjpegPublisher.Clear()
}

func (s *Service) Shutdown(_ context.Context) error {
	s.mjpegPublisher.Shutdown()
	return nil
}
