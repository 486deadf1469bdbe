package detection

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

// cascadeConfidence is reported for every hit; Haar cascades give no score
const cascadeConfidence = 1.0

// CascadeModel is a Haar cascade face detector
type CascadeModel struct {
	classifier gocv.CascadeClassifier
	labels     Labels
}

func LoadCascade(path string) (*CascadeModel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, unavailable(BackendCascade, fmt.Errorf("cascade file: %w", err))
	}
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, unavailable(BackendCascade, fmt.Errorf("failed to load cascade %s", path))
	}
	log.Info().Str("cascade_path", path).Msg("Face cascade loaded")
	return &CascadeModel{classifier: classifier, labels: Labels{"face"}}, nil
}

func (m *CascadeModel) Name() string   { return BackendCascade }
func (m *CascadeModel) Labels() Labels { return m.labels }

func (m *CascadeModel) Predict(frame models.Frame) ([]RawDetection, error) {
	src, err := helpers.FrameToMat(frame)
	if err != nil {
		return nil, runtimeFailure(BackendCascade, err)
	}
	defer src.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels == 1 {
		src.CopyTo(&gray)
	} else {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}
	gocv.EqualizeHist(gray, &gray)

	rects := m.classifier.DetectMultiScale(gray)
	out := make([]RawDetection, 0, len(rects))
	for _, r := range rects {
		out = append(out, RawDetection{
			X1:         float32(r.Min.X),
			Y1:         float32(r.Min.Y),
			X2:         float32(r.Max.X),
			Y2:         float32(r.Max.Y),
			ClassID:    0,
			Confidence: cascadeConfidence,
		})
	}
	return out, nil
}

func (m *CascadeModel) Close() error {
	return m.classifier.Close()
}
