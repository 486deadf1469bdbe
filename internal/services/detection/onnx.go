package detection

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

// candidateFloor drops hopeless candidates before NMS; the stage applies the real threshold
const candidateFloor = 0.05

// ONNXModel runs a YOLOv8 ONNX export through the OpenCV DNN module
type ONNXModel struct {
	net          gocv.Net
	labels       Labels
	inputSize    image.Point
	nmsThreshold float32
	backend      string
}

// LoadONNX reads the network and picks CUDA when requested and available, CPU otherwise.
func LoadONNX(path string, labels Labels, inputSize image.Point, nmsThreshold float32, useGPU bool) (*ONNXModel, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, unavailable(BackendONNX, fmt.Errorf("model file: %w", err))
	}
	net := gocv.ReadNetFromONNX(path)
	if net.Empty() {
		return nil, unavailable(BackendONNX, fmt.Errorf("failed to read network from %s", path))
	}
	if inputSize.X <= 0 || inputSize.Y <= 0 {
		inputSize = image.Pt(640, 640)
	}
	if nmsThreshold <= 0 {
		nmsThreshold = 0.45
	}

	m := &ONNXModel{
		net:          net,
		labels:       labels,
		inputSize:    inputSize,
		nmsThreshold: nmsThreshold,
	}
	m.backend = m.setupBackend(useGPU)

	log.Info().
		Str("model_path", path).
		Str("compute", m.backend).
		Int("input_width", inputSize.X).
		Int("input_height", inputSize.Y).
		Int("classes", len(labels)).
		Msg("ONNX model loaded")
	return m, nil
}

// setupBackend tries CUDA and falls back to CPU when a warm-up pass fails
func (m *ONNXModel) setupBackend(useGPU bool) string {
	if !useGPU {
		m.net.SetPreferableBackend(gocv.NetBackendDefault)
		m.net.SetPreferableTarget(gocv.NetTargetCPU)
		return "cpu"
	}

	m.net.SetPreferableBackend(gocv.NetBackendCUDA)
	m.net.SetPreferableTarget(gocv.NetTargetCUDA)

	probe := gocv.NewMatWithSize(m.inputSize.Y, m.inputSize.X, gocv.MatTypeCV8UC3)
	defer probe.Close()
	blob := gocv.BlobFromImage(probe, 1.0/255.0, m.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()

	if out.Empty() {
		log.Warn().Msg("CUDA warm-up produced no output, falling back to CPU")
		m.net.SetPreferableBackend(gocv.NetBackendDefault)
		m.net.SetPreferableTarget(gocv.NetTargetCPU)
		return "cpu"
	}
	return "cuda"
}

func (m *ONNXModel) Name() string   { return BackendONNX }
func (m *ONNXModel) Labels() Labels { return m.labels }

// letterbox records how an image was fitted into the network input
type letterbox struct {
	scale      float32
	padX, padY int
}

func (lb letterbox) unmap(x, y float32) (float32, float32) {
	return (x - float32(lb.padX)) / lb.scale, (y - float32(lb.padY)) / lb.scale
}

func computeLetterbox(srcW, srcH int, dst image.Point) (letterbox, image.Point) {
	scaleW := float32(dst.X) / float32(srcW)
	scaleH := float32(dst.Y) / float32(srcH)
	scale := min(scaleW, scaleH)
	rw := int(float32(srcW) * scale)
	rh := int(float32(srcH) * scale)
	return letterbox{scale: scale, padX: (dst.X - rw) / 2, padY: (dst.Y - rh) / 2}, image.Pt(rw, rh)
}

func (m *ONNXModel) Predict(frame models.Frame) ([]RawDetection, error) {
	src, err := helpers.FrameToMat(frame)
	if err != nil {
		return nil, runtimeFailure(BackendONNX, err)
	}
	defer src.Close()

	lb, resized := computeLetterbox(frame.Width, frame.Height, m.inputSize)
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(src, &scaled, resized, 0, 0, gocv.InterpolationLinear)

	boxed := gocv.NewMat()
	defer boxed.Close()
	gocv.CopyMakeBorder(scaled, &boxed,
		lb.padY, m.inputSize.Y-resized.Y-lb.padY,
		lb.padX, m.inputSize.X-resized.X-lb.padX,
		gocv.BorderConstant, color.RGBA{R: 114, G: 114, B: 114, A: 0})

	blob := gocv.BlobFromImage(boxed, 1.0/255.0, m.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")
	out := m.net.Forward("")
	defer out.Close()
	if out.Empty() {
		return nil, runtimeFailure(BackendONNX, fmt.Errorf("network produced no output"))
	}

	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, runtimeFailure(BackendONNX, fmt.Errorf("read output: %w", err))
	}
	cands, err := decodeYOLOv8(data, out.Size(), candidateFloor)
	if err != nil {
		return nil, runtimeFailure(BackendONNX, err)
	}

	for i := range cands {
		cands[i].X1, cands[i].Y1 = lb.unmap(cands[i].X1, cands[i].Y1)
		cands[i].X2, cands[i].Y2 = lb.unmap(cands[i].X2, cands[i].Y2)
	}
	return NMS(cands, m.nmsThreshold), nil
}

// decodeYOLOv8 reads a [1, 4+C, N] (or transposed [1, N, 4+C]) output tensor of
// center-x, center-y, width, height followed by C class scores.
func decodeYOLOv8(data []float32, dims []int, floor float32) ([]RawDetection, error) {
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected output rank %d", len(dims))
	}
	attrs, n := dims[1], dims[2]
	transposed := false
	if attrs > n {
		attrs, n = n, attrs
		transposed = true
	}
	if attrs < 5 {
		return nil, fmt.Errorf("output has %d attributes, need at least 5", attrs)
	}
	if len(data) < attrs*n {
		return nil, fmt.Errorf("output holds %d values, want %d", len(data), attrs*n)
	}

	at := func(attr, i int) float32 {
		if transposed {
			return data[i*attrs+attr]
		}
		return data[attr*n+i]
	}

	var out []RawDetection
	for i := 0; i < n; i++ {
		best, bestID := float32(0), -1
		for c := 4; c < attrs; c++ {
			if s := at(c, i); s > best {
				best, bestID = s, c-4
			}
		}
		if bestID < 0 || best < floor {
			continue
		}
		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		out = append(out, RawDetection{
			X1:         cx - w/2,
			Y1:         cy - h/2,
			X2:         cx + w/2,
			Y2:         cy + h/2,
			ClassID:    bestID,
			Confidence: best,
		})
	}
	return out, nil
}

func (m *ONNXModel) Close() error {
	return m.net.Close()
}
