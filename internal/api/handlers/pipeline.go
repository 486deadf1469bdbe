package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"espcam-worker-go/internal/logging"
	"espcam-worker-go/internal/models"
	"espcam-worker-go/internal/worker"
)

type PipelineHandler struct {
	pipeline Pipeline
	streamer Streamer
}

func NewPipelineHandler(pipeline Pipeline, streamer Streamer) *PipelineHandler {
	return &PipelineHandler{pipeline: pipeline, streamer: streamer}
}

// Start opens a camera and starts detection
// @Summary Start the pipeline
// @Description Connect to a camera (ESP32 base URL, stream URL or webcam index) and start detection
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body worker.StartRequest true "Camera target"
// @Success 200 {object} worker.Status
// @Failure 400 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /pipeline/start [post]
func (h *PipelineHandler) Start(c *gin.Context) {
	var req worker.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logging.Warn(c).Err(err).Msg("Invalid start request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}

	status, err := h.pipeline.Start(c.Request.Context(), req)
	if err != nil {
		logging.Error(c).Err(err).Str("target", req.Target).Msg("Failed to start pipeline")
		respondError(c, err)
		return
	}

	logging.Info(c).Str("target", req.Target).Str("session_id", status.SessionID).Msg("Pipeline started")
	c.JSON(http.StatusOK, status)
}

// Stop ends the running session
// @Summary Stop the pipeline
// @Tags pipeline
// @Produce json
// @Success 200 {object} SuccessResponse
// @Failure 409 {object} ErrorResponse
// @Router /pipeline/stop [post]
func (h *PipelineHandler) Stop(c *gin.Context) {
	if err := h.pipeline.Stop(); err != nil {
		respondError(c, err)
		return
	}
	logging.Info(c).Msg("Pipeline stopped")
	c.JSON(http.StatusOK, SuccessResponse{Message: "Pipeline stopped"})
}

// Status reports the session state and counters
// @Summary Pipeline status
// @Tags pipeline
// @Produce json
// @Success 200 {object} worker.Status
// @Router /pipeline/status [get]
func (h *PipelineHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.pipeline.Status())
}

// UpdateConfig patches the live settings
// @Summary Update pipeline settings
// @Description Partial update; takes effect on the next cycle
// @Tags pipeline
// @Accept json
// @Produce json
// @Param request body models.PipelineConfigPatch true "Settings to change"
// @Success 200 {object} models.PipelineConfig
// @Failure 400 {object} ErrorResponse
// @Router /pipeline/config [patch]
func (h *PipelineHandler) UpdateConfig(c *gin.Context) {
	var patch models.PipelineConfigPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}
	cfg, err := h.pipeline.UpdateConfig(patch)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "invalid_config"})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Detections returns the last detection result
// @Summary Latest detections
// @Tags pipeline
// @Produce json
// @Success 200 {object} models.DetectionResult
// @Failure 404 {object} ErrorResponse
// @Router /pipeline/detections [get]
func (h *PipelineHandler) Detections(c *gin.Context) {
	result, ok := h.pipeline.LatestResult()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no detections yet", Kind: "not_found"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Frame returns the last annotated frame
// @Summary Latest annotated frame
// @Tags pipeline
// @Produce image/jpeg
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /pipeline/frame [get]
func (h *PipelineHandler) Frame(c *gin.Context) {
	jpeg, ok := h.pipeline.LatestJPEG()
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no frame available", Kind: "not_found"})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}

// Stream serves the annotated frames as MJPEG
// @Summary Live MJPEG stream
// @Tags pipeline
// @Produce multipart/x-mixed-replace
// @Success 200 {file} binary
// @Router /pipeline/stream [get]
func (h *PipelineHandler) Stream(c *gin.Context) {
	h.streamer.StreamMJPEGHTTP(c.Writer, c.Request)
}
