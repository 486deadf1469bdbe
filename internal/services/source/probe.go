package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"espcam-worker-go/internal/helpers"
)

// ProbeReport describes a one-shot validation of a target
type ProbeReport struct {
	Target      string  `json:"target"`
	Kind        string  `json:"kind"`
	Valid       bool    `json:"valid"`
	Message     string  `json:"message"`
	ErrorDetail string  `json:"error_detail,omitempty"`
	ErrorKind   string  `json:"error_kind,omitempty"`
	Width       int     `json:"width,omitempty"`
	Height      int     `json:"height,omitempty"`
	Thumbnail   string  `json:"thumbnail,omitempty"`
	LatencyMS   float64 `json:"latency_ms"`
}

var openSource = Open

// Probe opens target, reads a single frame and returns a JPEG thumbnail of it.
// On timeout the source is released in the background, since an OpenCV close
// waits for the stuck read.
func Probe(ctx context.Context, target string, opts Options, thumbWidth int) ProbeReport {
	opts = opts.withDefaults()
	start := time.Now()
	report := ProbeReport{
		Target:  target,
		Message: "stream validation failed",
	}
	if t, err := ParseTarget(target); err == nil {
		report.Kind = t.Kind.String()
	}

	finish := func(err error) ProbeReport {
		report.LatencyMS = float64(time.Since(start).Microseconds()) / 1000
		if err != nil {
			report.ErrorDetail = err.Error()
			report.ErrorKind = ErrorKind(err)
			opts.Logger.Warn().Str("target", target).Err(err).Msg("Stream validation failed")
		}
		return report
	}

	src, err := openSource(ctx, target, opts)
	if err != nil {
		return finish(err)
	}

	type readResult struct {
		width, height int
		thumb         []byte
		err           error
	}
	done := make(chan readResult, 1)
	go func() {
		frame, err := src.ReadNext()
		if err != nil {
			done <- readResult{err: err}
			return
		}
		jpeg, err := helpers.ThumbnailJPEG(frame, thumbWidth, helpers.MediumQuality)
		done <- readResult{width: frame.Width, height: frame.Height, thumb: jpeg, err: err}
	}()

	timer := time.NewTimer(opts.ProbeTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		src.Close()
		if res.err != nil {
			return finish(res.err)
		}
		report.Valid = true
		report.Message = "stream is valid and accessible"
		report.Width = res.width
		report.Height = res.height
		report.Thumbnail = helpers.JPEGDataURL(res.thumb)
		opts.Logger.Info().
			Str("target", target).
			Int("width", res.width).
			Int("height", res.height).
			Msg("Stream validation successful")
		return finish(nil)
	case <-timer.C:
		go src.Close()
		return finish(readErr(target, ErrEndOfStream, fmt.Errorf("no frame within %s", opts.ProbeTimeout)))
	case <-ctx.Done():
		go src.Close()
		return finish(ctx.Err())
	}
}

// ErrorKind maps a source error onto a short machine-readable name
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnreachable):
		return "unreachable"
	case errors.Is(err, ErrStreamUnavailable):
		return "stream_unavailable"
	case errors.Is(err, ErrEndOfStream):
		return "end_of_stream"
	case errors.Is(err, ErrDecodeFailure):
		return "decode_failure"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "unknown"
	}
}
