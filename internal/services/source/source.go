// Package source opens video inputs and yields decoded BGR frames one at a time.
package source

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/models"
)

// DefaultProbeTimeout bounds the liveness probe and stream handshake of HTTP cameras
const DefaultProbeTimeout = 5 * time.Second

// FrameSource is an opened video input.
//
// ReadNext blocks until a frame is decoded or the source fails; it never returns a
// partially decoded frame. Close is idempotent and safe in any state, including
// during ReadNext. The HTTP camera's Close unblocks a pending read; OpenCV reads
// cannot be interrupted, so VideoCaptureSource.Close waits for the read to end.
type FrameSource interface {
	ReadNext() (models.Frame, error)
	Close() error
	State() models.ConnectionState
	Target() string
}

// Decoder turns one compressed image into a BGR frame
type Decoder func(data []byte, seq uint64, ts time.Time) (models.Frame, error)

// Options tune how a target is opened
type Options struct {
	ProbeTimeout time.Duration
	Mirror       bool
	Width        int // capture hint for local devices, 0 keeps the driver default
	Height       int
	HTTPClient   *http.Client
	Decoder      Decoder
	Logger       *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = DefaultProbeTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	if o.Decoder == nil {
		o.Decoder = decodeJPEG
	}
	if o.Logger == nil {
		l := log.With().Str("service", "source").Logger()
		o.Logger = &l
	}
	return o
}

// Open parses target and opens the matching backend. On error nothing is left open.
func Open(ctx context.Context, target string, opts Options) (FrameSource, error) {
	t, err := ParseTarget(target)
	if err != nil {
		return nil, connectErr(target, ErrUnreachable, err)
	}
	opts = opts.withDefaults()

	opts.Logger.Info().
		Str("target", t.String()).
		Str("kind", t.Kind.String()).
		Bool("mirror", opts.Mirror).
		Msg("Opening frame source")

	switch t.Kind {
	case TargetHTTPCamera:
		src, err := openMJPEG(ctx, t, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	case TargetDevice, TargetURL:
		src, err := openVideoCapture(ctx, t, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, connectErr(target, ErrUnreachable, fmt.Errorf("unsupported target kind %s", t.Kind))
	}
}

// connState is the atomically updated ConnectionState shared by backends
type connState struct {
	v atomic.Int32
}

func (s *connState) load() models.ConnectionState {
	return models.ConnectionState(s.v.Load())
}

func (s *connState) store(st models.ConnectionState) {
	s.v.Store(int32(st))
}
