package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"espcam-worker-go/internal/logging"
)

type CameraHandler struct {
	pipeline Pipeline
}

func NewCameraHandler(pipeline Pipeline) *CameraHandler {
	return &CameraHandler{pipeline: pipeline}
}

type ProbeRequest struct {
	Target string `json:"target" binding:"required" example:"192.168.1.50"`
}

// Probe checks whether a camera answers and grabs a thumbnail
// @Summary Probe a camera
// @Description Run the liveness probe, open the stream and read one frame
// @Tags cameras
// @Accept json
// @Produce json
// @Param request body ProbeRequest true "Camera target"
// @Success 200 {object} source.ProbeReport
// @Failure 400 {object} ErrorResponse
// @Router /cameras/probe [post]
func (h *CameraHandler) Probe(c *gin.Context) {
	var req ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Kind: "bad_request"})
		return
	}

	report := h.pipeline.Probe(c.Request.Context(), req.Target)
	logging.Info(c).
		Str("target", req.Target).
		Bool("valid", report.Valid).
		Str("error_kind", report.ErrorKind).
		Msg("Camera probed")

	// Probe failures are a result, not a request error
	c.JSON(http.StatusOK, report)
}
