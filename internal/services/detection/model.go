package detection

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/models"
)

// Model is a loaded detector. Predict returns boxes in the coordinate space of the
// frame it was given. Implementations are not required to be safe for concurrent
// Predict calls; the pipeline runs at most one inference at a time.
type Model interface {
	Name() string
	Labels() Labels
	Predict(frame models.Frame) ([]RawDetection, error)
	Close() error
}

// Backend names accepted by LoadModel
const (
	BackendONNX    = "onnx"
	BackendCascade = "cascade"
	BackendRemote  = "remote"
)

// ModelOptions select and configure a backend
type ModelOptions struct {
	Backend       string
	ModelPath     string
	LabelsPath    string
	CascadePath   string
	UseGPU        bool
	NetInputSize  image.Point
	NMSThreshold  float32
	RemoteURL     string
	RemoteTimeout time.Duration
	JPEGQuality   int
}

// LoadModel loads the configured backend once. Failures wrap ErrModelUnavailable.
func LoadModel(opts ModelOptions) (Model, error) {
	var labels Labels
	if opts.LabelsPath != "" {
		l, err := LoadLabels(opts.LabelsPath)
		if err != nil {
			return nil, unavailable(opts.Backend, err)
		}
		labels = l
	}

	log.Info().
		Str("backend", opts.Backend).
		Str("model_path", opts.ModelPath).
		Int("labels", len(labels)).
		Bool("use_gpu", opts.UseGPU).
		Msg("Loading detection model")

	switch strings.ToLower(opts.Backend) {
	case BackendONNX, "":
		if labels == nil {
			labels = COCOLabels
		}
		return LoadONNX(opts.ModelPath, labels, opts.NetInputSize, opts.NMSThreshold, opts.UseGPU)
	case BackendCascade:
		return LoadCascade(opts.CascadePath)
	case BackendRemote:
		return DialRemote(opts.RemoteURL, labels, opts.RemoteTimeout, opts.JPEGQuality)
	default:
		return nil, unavailable(opts.Backend, fmt.Errorf("unknown model backend %q", opts.Backend))
	}
}
