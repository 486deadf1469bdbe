package annotation

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

// Annotator draws detections and HUD text onto copies of frames.
// It holds no per-frame state and is safe for concurrent use.
type Annotator struct {
	style Style
}

func NewAnnotator(style Style) *Annotator {
	return &Annotator{style: style}
}

// Annotate returns a copy of frame with a box and a label per detection.
// The input frame is never modified.
func (a *Annotator) Annotate(frame models.Frame, detections []models.Detection) (models.Frame, error) {
	if len(detections) == 0 {
		return frame.Clone(), nil
	}
	return a.draw(frame, func(mat *gocv.Mat) {
		for _, det := range detections {
			a.drawDetection(mat, det)
		}
	})
}

// Overlay returns a copy of frame with lines of shadowed text in the top-left corner.
func (a *Annotator) Overlay(frame models.Frame, lines []string) (models.Frame, error) {
	if len(lines) == 0 {
		return frame.Clone(), nil
	}
	return a.draw(frame, func(mat *gocv.Mat) {
		s := a.style
		for i, line := range lines {
			origin := image.Pt(s.HUDPadding, s.HUDPadding+(i+1)*s.HUDLineHeight-5)
			shadow := origin.Add(image.Pt(s.ShadowOffset, s.ShadowOffset))
			gocv.PutTextWithParams(mat, line, shadow, s.Face, s.HUDScale, s.ShadowColor, s.HUDThickness, gocv.LineAA, false)
			gocv.PutTextWithParams(mat, line, origin, s.Face, s.HUDScale, s.HUDColor, s.HUDThickness, gocv.LineAA, false)
		}
	})
}

func (a *Annotator) draw(frame models.Frame, fn func(mat *gocv.Mat)) (models.Frame, error) {
	if frame.Format != models.PixelFormatBGR24 {
		return models.Frame{}, fmt.Errorf("annotate: unsupported pixel format %s", frame.Format)
	}
	mat, err := helpers.FrameToMat(frame)
	if err != nil {
		return models.Frame{}, fmt.Errorf("annotate: %w", err)
	}
	defer mat.Close()

	fn(&mat)

	out, err := helpers.MatToFrame(mat, frame.Seq, frame.Timestamp)
	if err != nil {
		return models.Frame{}, fmt.Errorf("annotate: %w", err)
	}
	return out, nil
}

func (a *Annotator) drawDetection(mat *gocv.Mat, det models.Detection) {
	s := a.style
	box := clampBox(det.Box, mat.Cols(), mat.Rows())
	if box.Empty() {
		return
	}
	clr := ClassColor(det.ClassID)
	gocv.Rectangle(mat, box, clr, s.BoxThickness)

	text := LabelText(det)
	size, baseline := gocv.GetTextSizeWithBaseline(text, s.Face, s.LabelScale, s.LabelThick)
	labelHeight := size.Y + baseline + 2*s.LabelPadding

	// Label sits above the box, or just inside it when there is no room
	top := box.Min.Y
	if top-labelHeight < 0 {
		top = box.Min.Y + labelHeight
	}
	bg := image.Rect(box.Min.X, top-labelHeight, box.Min.X+size.X+2*s.LabelPadding, top)
	gocv.Rectangle(mat, bg, clr, -1)

	pos := image.Pt(box.Min.X+s.LabelPadding, top-baseline-s.LabelPadding)
	gocv.PutTextWithParams(mat, text, pos, s.Face, s.LabelScale, s.LabelColor, s.LabelThick, gocv.LineAA, false)
}

// LabelText formats a detection label as "name 0.87".
func LabelText(det models.Detection) string {
	return fmt.Sprintf("%s %.2f", det.ClassName, det.Confidence)
}

func clampBox(b models.BoundingBox, width, height int) image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2).Intersect(image.Rect(0, 0, width, height))
}

// HUDOptions selects which cycle stats are rendered by StatsLines.
type HUDOptions struct {
	FPS        bool
	Detections bool
	Latency    bool
}

// StatsLines formats cycle stats as HUD text.
func StatsLines(stats models.CycleStats, opts HUDOptions) []string {
	var lines []string
	if opts.FPS {
		if stats.FPS > 0 {
			lines = append(lines, fmt.Sprintf("FPS: %.2f", stats.FPS))
		} else {
			lines = append(lines, "FPS: --.-")
		}
	}
	if opts.Detections {
		lines = append(lines, fmt.Sprintf("Detections: %d", stats.DetectionCount))
	}
	if opts.Latency {
		lines = append(lines, fmt.Sprintf("Inference: %dms", stats.InferenceLatency.Milliseconds()))
	}
	return lines
}
