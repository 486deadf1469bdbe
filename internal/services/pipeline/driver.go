// Package pipeline drives the consumer side: take the latest frame, detect,
// annotate and hand the result to the presentation sinks.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/models"
)

// FrameSource yields the most recent captured frame, if any
type FrameSource interface {
	TakeLatest() (models.Frame, bool)
}

// Detector runs inference at the requested input size
type Detector interface {
	InferSized(frame models.Frame, threshold float32, width, height int) (models.DetectionResult, error)
}

// Annotator renders detections and HUD text onto frame copies
type Annotator interface {
	Annotate(frame models.Frame, detections []models.Detection) (models.Frame, error)
	Overlay(frame models.Frame, lines []string) (models.Frame, error)
}

// HUDFormatter turns cycle stats into overlay lines
type HUDFormatter func(stats models.CycleStats) []string

// Driver runs one detection cycle at a time against the latest frame.
type Driver struct {
	frames    FrameSource
	detector  Detector
	annotator Annotator
	sink      Sink
	config    *LiveConfig
	hud       HUDFormatter
	latency   *LatencyWindow
	logger    zerolog.Logger

	mu        sync.Mutex // serializes cycles
	lastCycle time.Time

	cycles     atomic.Uint64
	lastStats  atomic.Pointer[models.CycleStats]
	lastResult atomic.Pointer[models.DetectionResult]
}

func NewDriver(frames FrameSource, detector Detector, annotator Annotator, sink Sink, config *LiveConfig, logger *zerolog.Logger) *Driver {
	d := &Driver{
		frames:    frames,
		detector:  detector,
		annotator: annotator,
		sink:      sink,
		config:    config,
		latency:   NewLatencyWindow(DefaultLatencyWindow),
	}
	if logger != nil {
		d.logger = logger.With().Str("component", "pipeline_driver").Logger()
	} else {
		d.logger = log.With().Str("service", "pipeline").Logger()
	}
	return d
}

// WithHUD sets the formatter used when ShowStats is on
func (d *Driver) WithHUD(f HUDFormatter) *Driver {
	d.hud = f
	return d
}

// Cycle processes the latest frame. It reports false with no error when no frame
// is available. An inference or annotation error is returned wrapped and nothing
// is presented; sink errors are logged only.
func (d *Driver) Cycle() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	frame, ok := d.frames.TakeLatest()
	if !ok {
		return false, nil
	}
	cfg := d.config.Load()
	start := time.Now()

	result, err := d.detector.InferSized(frame, cfg.ConfidenceThreshold, cfg.InferenceWidth, cfg.InferenceHeight)
	if err != nil {
		return false, fmt.Errorf("detect frame %d: %w", frame.Seq, err)
	}
	inferLatency := time.Since(start)
	d.latency.Add(inferLatency)

	annotated, err := d.annotator.Annotate(frame, result.Detections)
	if err != nil {
		return false, fmt.Errorf("annotate frame %d: %w", frame.Seq, err)
	}

	now := time.Now()
	stats := models.CycleStats{
		DetectionCount:   len(result.Detections),
		InferenceLatency: inferLatency,
		FrameSeq:         frame.Seq,
		At:               now,
	}
	if !d.lastCycle.IsZero() {
		if delta := now.Sub(d.lastCycle).Seconds(); delta > 0 {
			stats.FPS = 1 / delta
		}
	}
	d.lastCycle = now

	if cfg.ShowStats && d.hud != nil {
		if lines := d.hud(stats); len(lines) > 0 {
			annotated, err = d.annotator.Overlay(annotated, lines)
			if err != nil {
				return false, fmt.Errorf("overlay frame %d: %w", frame.Seq, err)
			}
		}
	}
	stats.CycleLatency = time.Since(start)

	d.cycles.Add(1)
	d.lastStats.Store(&stats)
	d.lastResult.Store(&result)

	if d.sink != nil {
		if err := d.sink.Present(annotated, result, stats); err != nil {
			d.logger.Warn().Err(err).Uint64("frame_seq", frame.Seq).Msg("Sink failed to present frame")
		}
	}
	return true, nil
}

// Run calls Cycle at the configured TargetFPS until ctx is done. The interval is
// re-read after every cycle. It returns the first cycle error.
func (d *Driver) Run(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	d.logger.Info().Float64("target_fps", d.config.Load().TargetFPS).Msg("Pipeline driver started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Uint64("cycles", d.cycles.Load()).Msg("Pipeline driver stopped")
			return nil
		case <-timer.C:
		}

		start := time.Now()
		if _, err := d.Cycle(); err != nil {
			d.logger.Error().Err(err).Uint64("cycles", d.cycles.Load()).Msg("Pipeline cycle failed, stopping driver")
			return err
		}

		wait := d.config.Load().Interval() - time.Since(start)
		if wait < 0 {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// Reset clears FPS history and latency samples for a new session
func (d *Driver) Reset() {
	d.mu.Lock()
	d.lastCycle = time.Time{}
	d.mu.Unlock()
	d.latency.Reset()
	d.cycles.Store(0)
	d.lastStats.Store(nil)
	d.lastResult.Store(nil)
}

func (d *Driver) Cycles() uint64 { return d.cycles.Load() }

// LastStats returns the stats of the last successful cycle
func (d *Driver) LastStats() (models.CycleStats, bool) {
	s := d.lastStats.Load()
	if s == nil {
		return models.CycleStats{}, false
	}
	return *s, true
}

// LastResult returns the detections of the last successful cycle
func (d *Driver) LastResult() (models.DetectionResult, bool) {
	r := d.lastResult.Load()
	if r == nil {
		return models.DetectionResult{}, false
	}
	return *r, true
}

func (d *Driver) Latency() LatencySummary {
	return d.latency.Summary()
}
