package source

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"espcam-worker-go/internal/models"
)

// fakeDecoder turns a payload "N" into a 2x1 frame filled with byte N
func fakeDecoder(data []byte, seq uint64, ts time.Time) (models.Frame, error) {
	if len(data) == 0 || data[0] == 'X' {
		return models.Frame{}, fmt.Errorf("not an image")
	}
	px := make([]byte, 2*1*3)
	for i := range px {
		px[i] = data[0]
	}
	return models.Frame{Data: px, Width: 2, Height: 1, Channels: 3, Format: models.PixelFormatBGR24, Seq: seq, Timestamp: ts}, nil
}

type camera struct {
	rootStatus int
	streamCode int
	parts      []string
	holdOpen   bool
	streamHits atomic.Int32
}

func (c *camera) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(c.rootStatus)
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		c.streamHits.Add(1)
		if c.streamCode != http.StatusOK {
			w.WriteHeader(c.streamCode)
			return
		}
		mw := multipart.NewWriter(w)
		_ = mw.SetBoundary("frame")
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.WriteHeader(http.StatusOK)
		for _, p := range c.parts {
			pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			_, _ = pw.Write([]byte(p))
		}
		if c.holdOpen {
			// Open the next part so the previous one is complete, then stall mid-frame.
			_, _ = mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
			<-r.Context().Done()
			return
		}
		_ = mw.Close()
	})
	return mux
}

func testOptions() Options {
	return Options{ProbeTimeout: 2 * time.Second, Decoder: fakeDecoder}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		raw    string
		kind   TargetKind
		base   string
		device int
	}{
		{raw: "0", kind: TargetDevice, device: 0},
		{raw: "2", kind: TargetDevice, device: 2},
		{raw: "192.168.1.40", kind: TargetHTTPCamera, base: "http://192.168.1.40"},
		{raw: "192.168.1.40:81/", kind: TargetHTTPCamera, base: "http://192.168.1.40:81"},
		{raw: "https://cam.local", kind: TargetHTTPCamera, base: "https://cam.local"},
		{raw: "rtsp://10.0.0.5/live", kind: TargetURL, base: "rtsp://10.0.0.5/live"},
		{raw: "/data/clip.mp4", kind: TargetURL, base: "/data/clip.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTarget(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.base, got.Base)
			assert.Equal(t, tt.device, got.Device)
		})
	}

	_, err := ParseTarget("  ")
	assert.Error(t, err)
	_, err = ParseTarget("-1")
	assert.Error(t, err)
}

func TestCameraEndpoints(t *testing.T) {
	tg, err := ParseTarget("10.0.0.9")
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.9/", tg.ProbeURL())
	assert.Equal(t, "http://10.0.0.9/stream", tg.StreamURL())
}

func TestOpenProbeFailureNeverRequestsStream(t *testing.T) {
	cam := &camera{rootStatus: http.StatusInternalServerError, streamCode: http.StatusOK}
	srv := httptest.NewServer(cam.handler())
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL, testOptions())
	require.Error(t, err)
	assert.Nil(t, src)
	assert.True(t, errors.Is(err, ErrUnreachable))

	var ce *ConnectError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, int32(0), cam.streamHits.Load())
}

func TestOpenUnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := Open(context.Background(), addr, testOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestOpenProbeTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	opts := testOptions()
	opts.ProbeTimeout = 100 * time.Millisecond

	start := time.Now()
	_, err := Open(context.Background(), srv.URL, opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestOpenProbeAndHandshakeShareTimeout(t *testing.T) {
	const timeout = 200 * time.Millisecond
	wait := func(r *http.Request, d time.Duration) bool {
		select {
		case <-time.After(d):
			return true
		case <-r.Context().Done():
			return false
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if wait(r, timeout*6/10) {
			w.WriteHeader(http.StatusOK)
		}
	})
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		if wait(r, timeout*6/10) {
			w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
			w.WriteHeader(http.StatusOK)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	opts := testOptions()
	opts.ProbeTimeout = timeout

	start := time.Now()
	src, err := Open(context.Background(), srv.URL, opts)
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.Nil(t, src)
	assert.ErrorIs(t, err, ErrStreamUnavailable)
	assert.Less(t, elapsed, timeout+100*time.Millisecond)
}

func TestOpenStreamUnavailable(t *testing.T) {
	cam := &camera{rootStatus: http.StatusOK, streamCode: http.StatusNotFound}
	srv := httptest.NewServer(cam.handler())
	defer srv.Close()

	_, err := Open(context.Background(), srv.URL, testOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStreamUnavailable)
	assert.Equal(t, int32(1), cam.streamHits.Load())
}

func TestReadFramesThenEndOfStream(t *testing.T) {
	cam := &camera{rootStatus: http.StatusOK, streamCode: http.StatusOK, parts: []string{"a", "b", "c"}}
	srv := httptest.NewServer(cam.handler())
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL, testOptions())
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, models.StateConnected, src.State())

	for i, want := range []byte("abc") {
		f, err := src.ReadNext()
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), f.Seq)
		assert.Equal(t, want, f.Data[0])
	}

	_, err = src.ReadNext()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEndOfStream)
	assert.Equal(t, models.StateFailed, src.State())
}

func TestReadDecodeFailure(t *testing.T) {
	cam := &camera{rootStatus: http.StatusOK, streamCode: http.StatusOK, parts: []string{"X"}}
	srv := httptest.NewServer(cam.handler())
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL, testOptions())
	require.NoError(t, err)
	defer src.Close()

	_, err = src.ReadNext()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecodeFailure)

	var re *ReadError
	assert.True(t, errors.As(err, &re))
}

func TestCloseUnblocksReadAndIsIdempotent(t *testing.T) {
	cam := &camera{rootStatus: http.StatusOK, streamCode: http.StatusOK, parts: []string{"a"}, holdOpen: true}
	srv := httptest.NewServer(cam.handler())
	defer srv.Close()

	src, err := Open(context.Background(), srv.URL, testOptions())
	require.NoError(t, err)

	_, err = src.ReadNext()
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := src.ReadNext()
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, src.Close())
	require.NoError(t, src.Close())

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("ReadNext still blocked after Close")
	}
	assert.Equal(t, models.StateDisconnected, src.State())

	_, err = src.ReadNext()
	assert.ErrorIs(t, err, ErrClosed)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "unreachable", ErrorKind(connectErr("x", ErrUnreachable, nil)))
	assert.Equal(t, "decode_failure", ErrorKind(readErr("x", ErrDecodeFailure, errors.New("bad"))))
	assert.Equal(t, "", ErrorKind(nil))
}

func TestMultipartBoundary(t *testing.T) {
	b, err := multipartBoundary("multipart/x-mixed-replace;boundary=123456789000000000000987654321")
	require.NoError(t, err)
	assert.Equal(t, "123456789000000000000987654321", b)

	b, err = multipartBoundary("multipart/x-mixed-replace; boundary=--frame")
	require.NoError(t, err)
	assert.Equal(t, "frame", b)

	_, err = multipartBoundary("image/jpeg")
	assert.Error(t, err)
}

func TestFFmpegOptionsStringIsSorted(t *testing.T) {
	opts := strings.Split(ffmpegOptionsString(), "|")
	require.Len(t, opts, len(ffmpegOptions))
	assert.True(t, sort.StringsAreSorted(opts))
	assert.Contains(t, opts, "rtsp_transport;tcp")
}

// stuckSource mimics an OpenCV capture: ReadNext never returns on its own and
// Close waits for the in-flight read.
type stuckSource struct {
	release chan struct{}
	mu      sync.Mutex
	closed  atomic.Bool
}

func (s *stuckSource) ReadNext() (models.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	<-s.release
	return models.Frame{}, readErr("stuck", ErrEndOfStream, fmt.Errorf("released"))
}

func (s *stuckSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed.Store(true)
	return nil
}

func (s *stuckSource) State() models.ConnectionState { return models.StateConnected }
func (s *stuckSource) Target() string               { return "stuck" }

func TestProbeTimeoutDoesNotWaitForClose(t *testing.T) {
	stuck := &stuckSource{release: make(chan struct{})}
	openSource = func(context.Context, string, Options) (FrameSource, error) { return stuck, nil }
	defer func() { openSource = Open }()

	opts := testOptions()
	opts.ProbeTimeout = 100 * time.Millisecond

	start := time.Now()
	report := Probe(context.Background(), "0", opts, 64)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.False(t, report.Valid)
	assert.Equal(t, "end_of_stream", report.ErrorKind)
	assert.False(t, stuck.closed.Load())

	close(stuck.release)
	assert.Eventually(t, stuck.closed.Load, time.Second, 5*time.Millisecond)
}
