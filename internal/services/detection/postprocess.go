package detection

import (
	"math"
	"sort"

	"espcam-worker-go/internal/models"
)

// RawDetection is a model output in the coordinate space of the image the model was given
type RawDetection struct {
	X1, Y1, X2, Y2 float32
	ClassID        int
	Confidence     float32
}

// Postprocess keeps detections with confidence >= threshold (order preserved), maps
// their boxes from an inW x inH image onto outW x outH with independent x/y scale
// factors, clamps to the output frame and drops boxes that collapse.
func Postprocess(raw []RawDetection, labels Labels, threshold float32, inW, inH, outW, outH int) []models.Detection {
	out := make([]models.Detection, 0, len(raw))
	if inW <= 0 || inH <= 0 {
		return out
	}
	sx := float64(outW) / float64(inW)
	sy := float64(outH) / float64(inH)

	for _, r := range raw {
		if r.Confidence < threshold {
			continue
		}
		box := models.BoundingBox{
			X1: clampInt(int(math.Round(float64(r.X1)*sx)), 0, outW),
			Y1: clampInt(int(math.Round(float64(r.Y1)*sy)), 0, outH),
			X2: clampInt(int(math.Round(float64(r.X2)*sx)), 0, outW),
			Y2: clampInt(int(math.Round(float64(r.Y2)*sy)), 0, outH),
		}
		if !box.Valid() {
			continue
		}
		out = append(out, models.Detection{
			Box:        box,
			ClassID:    r.ClassID,
			ClassName:  labels.Name(r.ClassID),
			Confidence: clampConfidence(r.Confidence),
		})
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampConfidence(c float32) float32 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// iou is the intersection over union of two raw boxes
func iou(a, b RawDetection) float32 {
	ix1 := max(a.X1, b.X1)
	iy1 := max(a.Y1, b.Y1)
	ix2 := min(a.X2, b.X2)
	iy2 := min(a.Y2, b.Y2)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMS suppresses overlapping boxes of the same class, highest confidence first.
// The result is ordered by descending confidence.
func NMS(dets []RawDetection, iouThreshold float32) []RawDetection {
	if len(dets) == 0 {
		return nil
	}
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return dets[order[i]].Confidence > dets[order[j]].Confidence
	})

	removed := make([]bool, len(dets))
	keep := make([]RawDetection, 0, len(dets))
	for i, oi := range order {
		if removed[oi] {
			continue
		}
		keep = append(keep, dets[oi])
		for _, oj := range order[i+1:] {
			if removed[oj] || dets[oj].ClassID != dets[oi].ClassID {
				continue
			}
			if iou(dets[oi], dets[oj]) > iouThreshold {
				removed[oj] = true
			}
		}
	}
	return keep
}
