package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	WorkerID  string
	startedAt time.Time
}

func NewSystemHandler(workerID string) *SystemHandler {
	return &SystemHandler{
		WorkerID:  workerID,
		startedAt: time.Now(),
	}
}

type SystemStats struct {
	WorkerID      string  `json:"worker_id" example:"espcam-1"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	MemoryMB      uint64  `json:"memory_mb"`
	CPUCores      int     `json:"cpu_cores"`
	Goroutines    int     `json:"goroutines"`
	GoVersion     string  `json:"go_version"`
}

// @Summary Get system stats
// @Description Process memory, goroutines and uptime
// @Tags system
// @Produce json
// @Success 200 {object} SystemStats
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, SystemStats{
		WorkerID:      h.WorkerID,
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		MemoryMB:      m.Alloc / 1024 / 1024,
		CPUCores:      runtime.NumCPU(),
		Goroutines:    runtime.NumGoroutine(),
		GoVersion:     runtime.Version(),
	})
}
