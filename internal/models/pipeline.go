package models

import (
	"fmt"
	"time"
)

// PipelineConfig holds the settings read by the driver on every cycle
type PipelineConfig struct {
	ConfidenceThreshold float32 `json:"confidence_threshold"`
	TargetFPS           float64 `json:"target_fps"`
	InferenceWidth      int     `json:"inference_width"`
	InferenceHeight     int     `json:"inference_height"`
	Mirror              bool    `json:"mirror"`
	ShowStats           bool    `json:"show_stats"`
}

// Validate checks the config ranges
func (c PipelineConfig) Validate() error {
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %.3f out of range [0,1]", c.ConfidenceThreshold)
	}
	if c.TargetFPS <= 0 {
		return fmt.Errorf("target fps must be positive, got %.2f", c.TargetFPS)
	}
	if c.InferenceWidth <= 0 || c.InferenceHeight <= 0 {
		return fmt.Errorf("inference size must be positive, got %dx%d", c.InferenceWidth, c.InferenceHeight)
	}
	return nil
}

// Interval returns the cadence implied by TargetFPS
func (c PipelineConfig) Interval() time.Duration {
	if c.TargetFPS <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / c.TargetFPS)
}

// PipelineConfigPatch carries a partial config update; nil fields are left unchanged
type PipelineConfigPatch struct {
	ConfidenceThreshold *float32 `json:"confidence_threshold,omitempty"`
	TargetFPS           *float64 `json:"target_fps,omitempty"`
	InferenceWidth      *int     `json:"inference_width,omitempty"`
	InferenceHeight     *int     `json:"inference_height,omitempty"`
	Mirror              *bool    `json:"mirror,omitempty"`
	ShowStats           *bool    `json:"show_stats,omitempty"`
}

// Apply returns c with the patch applied
func (p PipelineConfigPatch) Apply(c PipelineConfig) PipelineConfig {
	if p.ConfidenceThreshold != nil {
		c.ConfidenceThreshold = *p.ConfidenceThreshold
	}
	if p.TargetFPS != nil {
		c.TargetFPS = *p.TargetFPS
	}
	if p.InferenceWidth != nil {
		c.InferenceWidth = *p.InferenceWidth
	}
	if p.InferenceHeight != nil {
		c.InferenceHeight = *p.InferenceHeight
	}
	if p.Mirror != nil {
		c.Mirror = *p.Mirror
	}
	if p.ShowStats != nil {
		c.ShowStats = *p.ShowStats
	}
	return c
}

// CycleStats describes one completed driver cycle
type CycleStats struct {
	FPS              float64       `json:"fps"`
	DetectionCount   int           `json:"detection_count"`
	InferenceLatency time.Duration `json:"inference_latency"`
	CycleLatency     time.Duration `json:"cycle_latency"`
	FrameSeq         uint64        `json:"frame_seq"`
	At               time.Time     `json:"at"`
}

// PipelineState is the coarse state reported by the control surface
type PipelineState string

const (
	PipelineIdle     PipelineState = "idle"
	PipelineStarting PipelineState = "starting"
	PipelineRunning  PipelineState = "running"
	PipelineStopping PipelineState = "stopping"
	PipelineFailed   PipelineState = "failed"
)
