package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"espcam-worker-go/internal/models"
)

// maxPartSize caps a single JPEG part so a broken stream cannot exhaust memory
const maxPartSize = 16 << 20

// MJPEGSource reads a multipart/x-mixed-replace JPEG stream from an HTTP camera
type MJPEGSource struct {
	target  Target
	opts    Options
	logger  zerolog.Logger
	body    io.ReadCloser
	reader  *multipart.Reader
	cancel  context.CancelFunc
	state   connState
	seq     atomic.Uint64
	closed  atomic.Bool
	closeMu sync.Mutex
}

// ProbeHTTPCamera issues the liveness GET against the camera root.
func ProbeHTTPCamera(ctx context.Context, client *http.Client, t Target, timeout time.Duration) error {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return probeHTTPCamera(probeCtx, client, t)
}

func probeHTTPCamera(ctx context.Context, client *http.Client, t Target) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.ProbeURL(), nil)
	if err != nil {
		return connectErr(t.String(), ErrUnreachable, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return connectErr(t.String(), ErrUnreachable, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return connectErr(t.String(), ErrUnreachable, fmt.Errorf("probe returned status %d", resp.StatusCode))
	}
	return nil
}

func openMJPEG(ctx context.Context, t Target, opts Options) (*MJPEGSource, error) {
	s := &MJPEGSource{
		target: t,
		opts:   opts,
		logger: opts.Logger.With().Str("target", t.String()).Logger(),
	}
	s.state.store(models.StateConnecting)

	// probe and stream handshake share one deadline
	deadline := time.Now().Add(opts.ProbeTimeout)
	probeCtx, cancelProbe := context.WithDeadline(ctx, deadline)
	err := probeHTTPCamera(probeCtx, opts.HTTPClient, t)
	cancelProbe()
	if err != nil {
		s.state.store(models.StateFailed)
		s.logger.Warn().Err(err).Str("probe_url", t.ProbeURL()).Msg("Camera liveness probe failed")
		return nil, err
	}

	// The stream request outlives Open, so it gets its own context that Close cancels.
	streamCtx, cancel := context.WithCancel(context.Background())
	stopOnCaller := context.AfterFunc(ctx, cancel)
	handshake := time.AfterFunc(time.Until(deadline), cancel)

	fail := func(err error) (*MJPEGSource, error) {
		handshake.Stop()
		stopOnCaller()
		cancel()
		s.state.store(models.StateFailed)
		s.logger.Warn().Err(err).Str("stream_url", t.StreamURL()).Msg("Failed to open camera stream")
		return nil, err
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.StreamURL(), nil)
	if err != nil {
		return fail(connectErr(t.String(), ErrStreamUnavailable, err))
	}
	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fail(connectErr(t.String(), ErrStreamUnavailable, err))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fail(connectErr(t.String(), ErrStreamUnavailable, fmt.Errorf("stream returned status %d", resp.StatusCode)))
	}

	boundary, err := multipartBoundary(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return fail(connectErr(t.String(), ErrStreamUnavailable, err))
	}

	// Headers arrived in time; from here on only Close or the caller ends the stream.
	if !handshake.Stop() {
		resp.Body.Close()
		return fail(connectErr(t.String(), ErrStreamUnavailable, fmt.Errorf("stream handshake exceeded %s", opts.ProbeTimeout)))
	}
	stopOnCaller()

	s.body = resp.Body
	s.reader = multipart.NewReader(resp.Body, boundary)
	s.cancel = cancel
	s.state.store(models.StateConnected)

	s.logger.Info().
		Str("stream_url", t.StreamURL()).
		Str("boundary", boundary).
		Msg("Camera stream opened")
	return s, nil
}

func multipartBoundary(contentType string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", fmt.Errorf("bad content type %q: %w", contentType, err)
	}
	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", fmt.Errorf("unexpected content type %q", mediaType)
	}
	boundary := strings.TrimPrefix(params["boundary"], "--")
	if boundary == "" {
		return "", fmt.Errorf("content type %q has no boundary", contentType)
	}
	return boundary, nil
}

// ReadNext blocks for the next JPEG part and decodes it
func (s *MJPEGSource) ReadNext() (models.Frame, error) {
	if s.closed.Load() {
		return models.Frame{}, readErr(s.target.String(), ErrClosed, nil)
	}

	part, err := s.reader.NextPart()
	if err != nil {
		return models.Frame{}, s.fail(ErrEndOfStream, err)
	}
	data, err := io.ReadAll(io.LimitReader(part, maxPartSize+1))
	part.Close()
	if err != nil {
		return models.Frame{}, s.fail(ErrEndOfStream, err)
	}
	if len(data) > maxPartSize {
		return models.Frame{}, s.fail(ErrDecodeFailure, fmt.Errorf("part exceeds %d bytes", maxPartSize))
	}

	frame, err := s.opts.Decoder(data, s.seq.Add(1), time.Now())
	if err != nil {
		return models.Frame{}, s.fail(ErrDecodeFailure, err)
	}
	if s.opts.Mirror {
		if frame, err = mirrorFrame(frame); err != nil {
			return models.Frame{}, s.fail(ErrDecodeFailure, err)
		}
	}
	return frame, nil
}

func (s *MJPEGSource) fail(kind, err error) error {
	if s.closed.Load() {
		return readErr(s.target.String(), ErrClosed, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		kind = ErrEndOfStream
	}
	s.state.store(models.StateFailed)
	return readErr(s.target.String(), kind, err)
}

// Close cancels the stream request and releases the connection
func (s *MJPEGSource) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	err := s.body.Close()
	s.state.store(models.StateDisconnected)
	s.logger.Info().Uint64("frames", s.seq.Load()).Msg("Camera stream closed")
	return err
}

func (s *MJPEGSource) State() models.ConnectionState { return s.state.load() }

func (s *MJPEGSource) Target() string { return s.target.String() }
