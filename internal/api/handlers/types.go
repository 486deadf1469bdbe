package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"espcam-worker-go/internal/models"
	"espcam-worker-go/internal/services/detection"
	"espcam-worker-go/internal/services/source"
	"espcam-worker-go/internal/worker"
)

// Pipeline is the worker surface the handlers drive
type Pipeline interface {
	Start(ctx context.Context, req worker.StartRequest) (worker.Status, error)
	Stop() error
	Status() worker.Status
	UpdateConfig(patch models.PipelineConfigPatch) (models.PipelineConfig, error)
	LatestResult() (models.DetectionResult, bool)
	LatestJPEG() ([]byte, bool)
	Probe(ctx context.Context, target string) source.ProbeReport
}

// Streamer serves the live MJPEG stream
type Streamer interface {
	StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request)
}

type ErrorResponse struct {
	Error string `json:"error" example:"camera unreachable"`
	Kind  string `json:"kind,omitempty" example:"unreachable"`
}

type SuccessResponse struct {
	Message string `json:"message" example:"Pipeline stopped"`
}

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, worker.ErrNoTarget):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, worker.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, worker.ErrNotRunning):
		return http.StatusConflict, "not_running"
	case errors.Is(err, source.ErrUnreachable):
		return http.StatusBadGateway, "unreachable"
	case errors.Is(err, source.ErrStreamUnavailable):
		return http.StatusBadGateway, "stream_unavailable"
	case errors.Is(err, detection.ErrModelUnavailable):
		return http.StatusServiceUnavailable, "model_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(c *gin.Context, err error) {
	code, kind := statusFor(err)
	c.JSON(code, ErrorResponse{Error: err.Error(), Kind: kind})
}
