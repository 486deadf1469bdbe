// Package detection runs a detection model on frames and maps its output back
// onto the source frame.
package detection

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

// Resizer scales a frame to width x height
type Resizer func(f models.Frame, width, height int) (models.Frame, error)

// Stage wraps a Model with the resize, threshold and rescale steps.
type Stage struct {
	model  Model
	resize Resizer
	logger zerolog.Logger

	mu            sync.Mutex // one inference in flight
	defaultWidth  int
	defaultHeight int
}

func NewStage(model Model, inferenceWidth, inferenceHeight int, logger *zerolog.Logger) *Stage {
	s := &Stage{
		model:         model,
		resize:        helpers.ResizeFrame,
		defaultWidth:  inferenceWidth,
		defaultHeight: inferenceHeight,
	}
	if logger != nil {
		s.logger = logger.With().Str("component", "detection_stage").Logger()
	} else {
		s.logger = log.With().Str("service", "detection").Logger()
	}
	return s
}

// WithResizer replaces the OpenCV resize, mostly for tests
func (s *Stage) WithResizer(r Resizer) *Stage {
	s.resize = r
	return s
}

func (s *Stage) Model() Model { return s.model }

// Infer runs the model at the stage's default inference size.
func (s *Stage) Infer(frame models.Frame, threshold float32) (models.DetectionResult, error) {
	return s.InferSized(frame, threshold, s.defaultWidth, s.defaultHeight)
}

// InferSized resizes frame to width x height, runs the model, drops detections below
// threshold and rescales the rest into frame coordinates.
func (s *Stage) InferSized(frame models.Frame, threshold float32, width, height int) (models.DetectionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := models.DetectionResult{
		FrameSeq:       frame.Seq,
		FrameTimestamp: frame.Timestamp,
		Width:          frame.Width,
		Height:         frame.Height,
		Detections:     []models.Detection{},
	}
	if s.model == nil {
		return result, unavailable("none", fmt.Errorf("no model loaded"))
	}
	if !frame.Valid() {
		return result, runtimeFailure(s.model.Name(), fmt.Errorf("invalid frame %dx%d (%d bytes)", frame.Width, frame.Height, len(frame.Data)))
	}
	if width <= 0 || height <= 0 {
		width, height = frame.Width, frame.Height
	}

	start := time.Now()
	input, err := s.resize(frame, width, height)
	if err != nil {
		return result, runtimeFailure(s.model.Name(), fmt.Errorf("resize to %dx%d: %w", width, height, err))
	}

	raw, err := s.model.Predict(input)
	if err != nil {
		var ie *InferenceError
		if !errors.As(err, &ie) {
			err = runtimeFailure(s.model.Name(), err)
		}
		s.logger.Error().Err(err).Str("model", s.model.Name()).Uint64("frame_seq", frame.Seq).Msg("Inference failed")
		return result, err
	}

	result.Detections = Postprocess(raw, s.model.Labels(), threshold, input.Width, input.Height, frame.Width, frame.Height)

	s.logger.Debug().
		Uint64("frame_seq", frame.Seq).
		Int("raw", len(raw)).
		Int("kept", len(result.Detections)).
		Dur("latency", time.Since(start)).
		Msg("Inference complete")
	return result, nil
}

// Close releases the model
func (s *Stage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model == nil {
		return nil
	}
	return s.model.Close()
}
