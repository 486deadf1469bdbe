package source

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

// VideoCaptureSource reads frames through OpenCV: local devices, RTSP, video files.
type VideoCaptureSource struct {
	target Target
	opts   Options
	logger zerolog.Logger
	cap    *gocv.VideoCapture
	img    gocv.Mat
	state  connState
	seq    atomic.Uint64
	closed atomic.Bool

	// OpenCV reads cannot be interrupted, so Close waits for an in-flight read.
	mu sync.Mutex
}

// Low-latency FFmpeg demuxer options for URL targets. An operator-provided
// OPENCV_FFMPEG_CAPTURE_OPTIONS wins.
var ffmpegOptions = map[string]string{
	"rtsp_transport":      "tcp",
	"max_delay":           "500000",
	"rw_timeout":          "5000000",
	"flags":               "low_delay",
	"fflags":              "nobuffer+flush_packets",
	"analyzeduration":     "500000",
	"probesize":           "500000",
	"reconnect":           "0",
	"allowed_media_types": "video",
}

var ffmpegOnce sync.Once

func ffmpegOptionsString() string {
	opts := make([]string, 0, len(ffmpegOptions))
	for k, v := range ffmpegOptions {
		opts = append(opts, k+";"+v)
	}
	sort.Strings(opts)
	return strings.Join(opts, "|")
}

func configureFFmpegOptions(logger zerolog.Logger) {
	ffmpegOnce.Do(func() {
		if os.Getenv("OPENCV_FFMPEG_CAPTURE_OPTIONS") != "" {
			return
		}
		opts := ffmpegOptionsString()
		os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", opts)
		logger.Debug().Str("ffmpeg_options", opts).Msg("FFmpeg options configured for OpenCV")
	})
}

type openResult struct {
	cap *gocv.VideoCapture
	err error
}

func openVideoCapture(ctx context.Context, t Target, opts Options) (*VideoCaptureSource, error) {
	s := &VideoCaptureSource{
		target: t,
		opts:   opts,
		logger: opts.Logger.With().Str("target", t.String()).Logger(),
	}
	s.state.store(models.StateConnecting)

	kind := ErrStreamUnavailable
	if t.Kind == TargetDevice {
		kind = ErrUnreachable
	}

	if t.Kind != TargetDevice {
		configureFFmpegOptions(s.logger)
	}

	done := make(chan openResult, 1)
	go func() {
		var (
			c   *gocv.VideoCapture
			err error
		)
		if t.Kind == TargetDevice {
			c, err = gocv.OpenVideoCapture(t.Device)
		} else {
			c, err = gocv.OpenVideoCapture(t.Base)
		}
		if err == nil && !c.IsOpened() {
			c.Close()
			err = fmt.Errorf("video capture is not opened")
		}
		done <- openResult{cap: c, err: err}
	}()

	timer := time.NewTimer(opts.ProbeTimeout)
	defer timer.Stop()

	var res openResult
	select {
	case res = <-done:
	case <-timer.C:
		go closeLate(done)
		s.state.store(models.StateFailed)
		return nil, connectErr(t.String(), kind, fmt.Errorf("open exceeded %s", opts.ProbeTimeout))
	case <-ctx.Done():
		go closeLate(done)
		s.state.store(models.StateFailed)
		return nil, connectErr(t.String(), kind, ctx.Err())
	}
	if res.err != nil {
		s.state.store(models.StateFailed)
		s.logger.Warn().Err(res.err).Msg("Failed to open video capture")
		return nil, connectErr(t.String(), kind, res.err)
	}

	// Low latency: keep only the newest frame in the driver queue
	res.cap.Set(gocv.VideoCaptureBufferSize, 1)
	if t.Kind == TargetDevice && opts.Width > 0 && opts.Height > 0 {
		res.cap.Set(gocv.VideoCaptureFrameWidth, float64(opts.Width))
		res.cap.Set(gocv.VideoCaptureFrameHeight, float64(opts.Height))
	}

	s.cap = res.cap
	s.img = gocv.NewMat()
	s.state.store(models.StateConnected)

	s.logger.Info().
		Float64("actual_fps", res.cap.Get(gocv.VideoCaptureFPS)).
		Float64("actual_width", res.cap.Get(gocv.VideoCaptureFrameWidth)).
		Float64("actual_height", res.cap.Get(gocv.VideoCaptureFrameHeight)).
		Msg("VideoCapture opened successfully with actual properties")
	return s, nil
}

// closeLate releases a capture whose open finished after the caller gave up
func closeLate(done <-chan openResult) {
	if res := <-done; res.err == nil && res.cap != nil {
		res.cap.Close()
	}
}

func (s *VideoCaptureSource) ReadNext() (models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return models.Frame{}, readErr(s.target.String(), ErrClosed, nil)
	}
	if ok := s.cap.Read(&s.img); !ok {
		s.state.store(models.StateFailed)
		return models.Frame{}, readErr(s.target.String(), ErrEndOfStream, nil)
	}
	if s.img.Empty() {
		s.state.store(models.StateFailed)
		return models.Frame{}, readErr(s.target.String(), ErrDecodeFailure, fmt.Errorf("empty frame"))
	}

	if s.opts.Mirror {
		gocv.Flip(s.img, &s.img, 1)
	}
	frame, err := helpers.MatToFrame(s.img, s.seq.Add(1), time.Now())
	if err != nil {
		s.state.store(models.StateFailed)
		return models.Frame{}, readErr(s.target.String(), ErrDecodeFailure, err)
	}
	return frame, nil
}

func (s *VideoCaptureSource) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.cap.Close()
	s.img.Close()
	s.state.store(models.StateDisconnected)
	s.logger.Info().Uint64("frames", s.seq.Load()).Msg("VideoCapture closed")
	return err
}

func (s *VideoCaptureSource) State() models.ConnectionState { return s.state.load() }

func (s *VideoCaptureSource) Target() string { return s.target.String() }
