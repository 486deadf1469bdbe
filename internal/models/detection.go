package models

import (
	"time"
)

// BoundingBox is an axis-aligned box in pixel coordinates, X1<X2 and Y1<Y2
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Valid reports whether the box has positive area
func (b BoundingBox) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

func (b BoundingBox) Width() int  { return b.X2 - b.X1 }
func (b BoundingBox) Height() int { return b.Y2 - b.Y1 }

// Detection represents one object found in a frame
type Detection struct {
	Box        BoundingBox `json:"box"`
	ClassID    int         `json:"class_id"`
	ClassName  string      `json:"class_name"`
	Confidence float32     `json:"confidence"`
}

// DetectionResult is the output of a single inference.
// Coordinates are in the source frame's pixel space.
type DetectionResult struct {
	FrameSeq       uint64      `json:"frame_seq"`
	FrameTimestamp time.Time   `json:"frame_timestamp"`
	Width          int         `json:"width"`
	Height         int         `json:"height"`
	Detections     []Detection `json:"detections"`
}

// DetectionEvent is published on the message bus once per processed frame
type DetectionEvent struct {
	WorkerID   string          `json:"worker_id"`
	SessionID  string          `json:"session_id"`
	Target     string          `json:"target"`
	Result     DetectionResult `json:"result"`
	Stats      CycleStats      `json:"stats"`
	ProducedAt time.Time       `json:"produced_at"`
}
