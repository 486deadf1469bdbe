package pipeline

import (
	"errors"

	"espcam-worker-go/internal/models"
)

// Sink receives every annotated frame together with its detections.
// Present must not retain frame.Data beyond the call unless it copies it.
type Sink interface {
	Present(frame models.Frame, result models.DetectionResult, stats models.CycleStats) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(frame models.Frame, result models.DetectionResult, stats models.CycleStats) error

func (f SinkFunc) Present(frame models.Frame, result models.DetectionResult, stats models.CycleStats) error {
	return f(frame, result, stats)
}

// MultiSink fans a cycle out to several sinks. Every sink is called even if an
// earlier one fails; the errors are joined.
type MultiSink []Sink

func (m MultiSink) Present(frame models.Frame, result models.DetectionResult, stats models.CycleStats) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Present(frame, result, stats); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
