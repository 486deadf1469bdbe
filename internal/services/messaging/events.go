package messaging

import (
	"fmt"
	"time"

	"espcam-worker-go/internal/models"
)

// Publisher is the part of Service the event sink needs
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// SessionInfo identifies the pipeline session that produced an event
type SessionInfo func() (sessionID, target string)

// DetectionEvents publishes one DetectionEvent per processed frame.
type DetectionEvents struct {
	pub      Publisher
	subject  string
	workerID string
	session  SessionInfo
	now      func() time.Time
}

func NewDetectionEvents(pub Publisher, subject, workerID string, session SessionInfo) *DetectionEvents {
	return &DetectionEvents{
		pub:      pub,
		subject:  subject,
		workerID: workerID,
		session:  session,
		now:      time.Now,
	}
}

func (e *DetectionEvents) Present(_ models.Frame, result models.DetectionResult, stats models.CycleStats) error {
	event := models.DetectionEvent{
		WorkerID:   e.workerID,
		Result:     result,
		Stats:      stats,
		ProducedAt: e.now(),
	}
	if e.session != nil {
		event.SessionID, event.Target = e.session()
	}
	if err := e.pub.Publish(e.subject, event); err != nil {
		return fmt.Errorf("publish detections for frame %d: %w", result.FrameSeq, err)
	}
	return nil
}
