package source

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

func decodeJPEG(data []byte, seq uint64, ts time.Time) (models.Frame, error) {
	return helpers.DecodeJPEG(data, seq, ts)
}

// mirrorFrame flips a frame around its vertical axis, in the source's own copy
func mirrorFrame(f models.Frame) (models.Frame, error) {
	src, err := helpers.FrameToMat(f)
	if err != nil {
		return models.Frame{}, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Flip(src, &dst, 1)

	out, err := helpers.MatToFrame(dst, f.Seq, f.Timestamp)
	if err != nil {
		return models.Frame{}, fmt.Errorf("mirror: %w", err)
	}
	return out, nil
}
