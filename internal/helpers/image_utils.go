package helpers

import (
	"encoding/base64"
	"fmt"
	"image"
	"runtime"
	"time"

	"gocv.io/x/gocv"

	"espcam-worker-go/internal/models"
)

// JPEG quality settings
const (
	HighQuality   = 95
	MediumQuality = 75
	LowQuality    = 50
)

// IsJPEGData checks if the byte slice contains JPEG data by checking magic bytes
func IsJPEGData(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	// JPEG magic bytes: FF D8
	return data[0] == 0xFF && data[1] == 0xD8
}

// JPEGDataURL wraps JPEG bytes as a base64 data URL
func JPEGDataURL(jpegData []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegData)
}

func matType(f models.Frame) (gocv.MatType, error) {
	switch f.Channels {
	case 1:
		return gocv.MatTypeCV8UC1, nil
	case 3:
		return gocv.MatTypeCV8UC3, nil
	case 4:
		return gocv.MatTypeCV8UC4, nil
	default:
		return 0, fmt.Errorf("unsupported channel count %d", f.Channels)
	}
}

// FrameToMat copies the frame's pixels into an OpenCV-owned Mat. Caller closes it.
// Drawing on the Mat never touches f.Data.
func FrameToMat(f models.Frame) (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.NewMat(), fmt.Errorf("invalid frame %dx%dx%d with %d bytes", f.Width, f.Height, f.Channels, len(f.Data))
	}
	mt, err := matType(f)
	if err != nil {
		return gocv.NewMat(), err
	}
	view, err := gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create Mat from frame: %w", err)
	}
	// the view aliases Go memory; clone so OpenCV owns the pixels
	mat := view.Clone()
	view.Close()
	runtime.KeepAlive(f.Data)
	return mat, nil
}

// MatToFrame copies a BGR (or gray) Mat into a Frame.
func MatToFrame(mat gocv.Mat, seq uint64, ts time.Time) (models.Frame, error) {
	if mat.Empty() {
		return models.Frame{}, fmt.Errorf("empty mat")
	}
	format := models.PixelFormatBGR24
	switch mat.Channels() {
	case 3:
	case 1:
		format = models.PixelFormatGray8
	default:
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(mat, &bgr, gocv.ColorBGRAToBGR)
		return MatToFrame(bgr, seq, ts)
	}
	return models.Frame{
		Data:      mat.ToBytes(),
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Channels:  mat.Channels(),
		Format:    format,
		Timestamp: ts,
		Seq:       seq,
	}, nil
}

// DecodeJPEG decodes a JPEG (or any OpenCV-readable image) into a BGR frame
func DecodeJPEG(data []byte, seq uint64, ts time.Time) (models.Frame, error) {
	if len(data) == 0 {
		return models.Frame{}, fmt.Errorf("empty image payload")
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return models.Frame{}, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return models.Frame{}, fmt.Errorf("decoded image is empty (%d bytes)", len(data))
	}
	return MatToFrame(mat, seq, ts)
}

// EncodeJPEG encodes a frame as JPEG at the given quality
func EncodeJPEG(f models.Frame, quality int) ([]byte, error) {
	mat, err := FrameToMat(f)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return EncodeMatJPEG(mat, quality)
}

// EncodeMatJPEG encodes a Mat as JPEG at the given quality
func EncodeMatJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	defer buf.Close()

	// GetBytes aliases native memory that dies with buf
	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// ResizeFrame returns a copy of f scaled to width x height
func ResizeFrame(f models.Frame, width, height int) (models.Frame, error) {
	if f.Width == width && f.Height == height {
		return f.Clone(), nil
	}
	src, err := FrameToMat(f)
	if err != nil {
		return models.Frame{}, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return MatToFrame(dst, f.Seq, f.Timestamp)
}

// ThumbnailJPEG scales a frame to maxWidth (keeping aspect) and encodes it
func ThumbnailJPEG(f models.Frame, maxWidth, quality int) ([]byte, error) {
	if maxWidth > 0 && f.Width > maxWidth {
		h := f.Height * maxWidth / f.Width
		if h < 1 {
			h = 1
		}
		scaled, err := ResizeFrame(f, maxWidth, h)
		if err != nil {
			return nil, err
		}
		f = scaled
	}
	return EncodeJPEG(f, quality)
}
