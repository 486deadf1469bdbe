package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"espcam-worker-go/internal/config"
	"espcam-worker-go/internal/models"
)

type HealthHandler struct {
	cfg      *config.Config
	pipeline Pipeline
}

func NewHealthHandler(cfg *config.Config, pipeline Pipeline) *HealthHandler {
	return &HealthHandler{cfg: cfg, pipeline: pipeline}
}

type HealthResponse struct {
	Status   string               `json:"status" example:"healthy"`
	WorkerID string               `json:"worker_id" example:"espcam-1"`
	Pipeline models.PipelineState `json:"pipeline" example:"running"`
}

type WorkerInfoResponse struct {
	WorkerID     string   `json:"worker_id" example:"espcam-1"`
	Version      string   `json:"version" example:"1.0.0"`
	Environment  string   `json:"environment" example:"development"`
	Model        string   `json:"model" example:"onnx:yolov8n"`
	Capabilities []string `json:"capabilities"`
	Docs         string   `json:"docs" example:"/docs/index.html"`
}

// @Summary Health check
// @Description Check if the worker is healthy and responsive
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "healthy",
		WorkerID: h.cfg.WorkerID,
		Pipeline: h.pipeline.Status().State,
	})
}

// @Summary Worker information
// @Description Get basic worker information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID:    h.cfg.WorkerID,
		Version:     h.cfg.Version,
		Environment: h.cfg.Environment,
		Model:       h.pipeline.Status().Model,
		Capabilities: []string{
			"esp32_mjpeg_capture",
			"webcam_capture",
			"object_detection",
			"mjpeg_streaming",
		},
		Docs: "/docs/index.html",
	})
}
