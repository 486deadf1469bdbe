package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"espcam-worker-go/internal/config"
	"espcam-worker-go/internal/models"
	"espcam-worker-go/internal/services/detection"
	"espcam-worker-go/internal/services/pipeline"
	"espcam-worker-go/internal/services/source"
)

type stubSource struct {
	target    string
	failAfter int // 0 streams forever
	seq       atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
	closing   chan struct{}
}

func newStubSource(target string, failAfter int) *stubSource {
	return &stubSource{target: target, failAfter: failAfter, closing: make(chan struct{})}
}

func (s *stubSource) ReadNext() (models.Frame, error) {
	select {
	case <-s.closing:
		return models.Frame{}, source.ErrClosed
	case <-time.After(2 * time.Millisecond):
	}
	n := s.seq.Add(1)
	if s.failAfter > 0 && int(n) > s.failAfter {
		return models.Frame{}, &source.ReadError{Target: s.target, Kind: source.ErrEndOfStream, Err: errors.New("camera went away")}
	}
	return models.Frame{
		Data:      make([]byte, 8*6*3),
		Width:     8,
		Height:    6,
		Channels:  3,
		Format:    models.PixelFormatBGR24,
		Timestamp: time.Now(),
		Seq:       n,
	}, nil
}

func (s *stubSource) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closing)
	})
	return nil
}

func (s *stubSource) State() models.ConnectionState {
	if s.closed.Load() {
		return models.StateDisconnected
	}
	return models.StateConnected
}

func (s *stubSource) Target() string { return s.target }

type stubDetector struct {
	err    atomic.Pointer[error]
	closed atomic.Bool
}

func (d *stubDetector) InferSized(frame models.Frame, _ float32, _, _ int) (models.DetectionResult, error) {
	if e := d.err.Load(); e != nil {
		return models.DetectionResult{}, *e
	}
	return models.DetectionResult{
		FrameSeq: frame.Seq,
		Width:    frame.Width,
		Height:   frame.Height,
		Detections: []models.Detection{
			{Box: models.BoundingBox{X1: 1, Y1: 1, X2: 4, Y2: 4}, ClassName: "person", Confidence: 0.9},
		},
	}, nil
}

func (d *stubDetector) Close() error {
	d.closed.Store(true)
	return nil
}

type passAnnotator struct{}

func (passAnnotator) Annotate(f models.Frame, _ []models.Detection) (models.Frame, error) {
	return f.Clone(), nil
}

func (passAnnotator) Overlay(f models.Frame, _ []string) (models.Frame, error) {
	return f.Clone(), nil
}

type stubPresenter struct {
	mu      sync.Mutex
	last    *models.Frame
	frames  int
	cleared int
}

func (p *stubPresenter) Present(f models.Frame, _ models.DetectionResult, _ models.CycleStats) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = &f
	p.frames++
	return nil
}

func (p *stubPresenter) LatestJPEG() ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return nil, false
	}
	return []byte(fmt.Sprintf("jpeg-%d", p.last.Seq)), true
}

func (p *stubPresenter) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = nil
	p.cleared++
}

func (p *stubPresenter) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frames
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.DetectionEvent
}

func (r *eventRecorder) Publish(_ string, data interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data.(models.DetectionEvent))
	return nil
}

func (r *eventRecorder) last() (models.DetectionEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return models.DetectionEvent{}, false
	}
	return r.events[len(r.events)-1], true
}

type fixture struct {
	w         *Worker
	detector  *stubDetector
	presenter *stubPresenter
	extra     *stubPresenter
	events    *eventRecorder
	sources   []*stubSource
	openErr   error
	failAfter int
	mu        sync.Mutex
}

func testConfig() *config.Config {
	return &config.Config{
		WorkerID:            "test-worker",
		ProbeTimeout:        time.Second,
		Mirror:              true,
		ThumbnailWidth:      64,
		ConfidenceThreshold: 0.5,
		TargetFPS:           200,
		InferenceWidth:      8,
		InferenceHeight:     6,
		DetectionsSubject:   "detections",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		detector:  &stubDetector{},
		presenter: &stubPresenter{},
		extra:     &stubPresenter{},
		events:    &eventRecorder{},
	}
	opener := func(_ context.Context, target string, _ source.Options) (source.FrameSource, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.openErr != nil {
			return nil, f.openErr
		}
		src := newStubSource(target, f.failAfter)
		f.sources = append(f.sources, src)
		return src, nil
	}
	w, err := New(testConfig(), Deps{
		Detector:  f.detector,
		ModelName: "stub",
		Presenter: f.presenter,
		Annotator: passAnnotator{},
		Events:    f.events,
		Opener:    opener,
		Sinks:     []pipeline.Sink{f.extra},
	})
	require.NoError(t, err)
	w.SetStopGrace(50 * time.Millisecond)
	f.w = w
	t.Cleanup(func() { _ = w.Stop() })
	return f
}

func (f *fixture) lastSource() *stubSource {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sources[len(f.sources)-1]
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	require.NotNil(t, done)
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not end")
	}
}

func TestStartRunsPipelineAndStopReleases(t *testing.T) {
	f := newFixture(t)

	st, err := f.w.Start(context.Background(), StartRequest{Target: "http://cam.local"})
	require.NoError(t, err)
	assert.Equal(t, models.PipelineRunning, st.State)
	assert.NotEmpty(t, st.SessionID)
	assert.Equal(t, "http://cam.local", st.Target)
	assert.Equal(t, "stub", st.Model)

	require.Eventually(t, func() bool { return f.presenter.count() >= 3 }, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return f.extra.count() >= 1 }, time.Second, 5*time.Millisecond)

	jpeg, ok := f.w.LatestJPEG()
	require.True(t, ok)
	assert.Contains(t, string(jpeg), "jpeg-")

	res, ok := f.w.LatestResult()
	require.True(t, ok)
	assert.Len(t, res.Detections, 1)

	ev, ok := f.events.last()
	require.True(t, ok)
	assert.Equal(t, "test-worker", ev.WorkerID)
	assert.Equal(t, st.SessionID, ev.SessionID)
	assert.Equal(t, "http://cam.local", ev.Target)

	require.NoError(t, f.w.Stop())
	st = f.w.Status()
	assert.Equal(t, models.PipelineIdle, st.State)
	assert.Empty(t, st.SessionID)
	assert.Empty(t, st.LastError)
	assert.True(t, f.lastSource().closed.Load())
	assert.Equal(t, "idle", st.Capture.State)
	assert.False(t, st.Buffer.HasFrame)
	assert.Greater(t, st.Cycles, uint64(0))
}

func TestStartRejectsSecondSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.Start(context.Background(), StartRequest{Target: "0"})
	require.NoError(t, err)

	_, err = f.w.Start(context.Background(), StartRequest{Target: "1"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.Start(context.Background(), StartRequest{})
	assert.ErrorIs(t, err, ErrNoTarget)
	assert.ErrorIs(t, f.w.Stop(), ErrNotRunning)
}

func TestStartOpenFailureReportsKind(t *testing.T) {
	f := newFixture(t)
	f.openErr = &source.ConnectError{Target: "http://10.0.0.9", Kind: source.ErrUnreachable, Err: errors.New("probe returned 500")}

	st, err := f.w.Start(context.Background(), StartRequest{Target: "http://10.0.0.9"})
	require.Error(t, err)
	assert.ErrorIs(t, err, source.ErrUnreachable)
	assert.Equal(t, models.PipelineFailed, st.State)
	assert.Equal(t, "unreachable", st.ErrorKind)

	// failure is not sticky: a later start works
	f.openErr = nil
	st, err = f.w.Start(context.Background(), StartRequest{Target: "http://10.0.0.9"})
	require.NoError(t, err)
	assert.Equal(t, models.PipelineRunning, st.State)
	assert.Empty(t, st.LastError)
}

func TestCaptureFailureEndsSession(t *testing.T) {
	f := newFixture(t)
	f.failAfter = 5

	_, err := f.w.Start(context.Background(), StartRequest{Target: "http://cam.local"})
	require.NoError(t, err)
	waitDone(t, f.w.Done())

	st := f.w.Status()
	assert.Equal(t, models.PipelineFailed, st.State)
	assert.Equal(t, "end_of_stream", st.ErrorKind)
	assert.True(t, f.lastSource().closed.Load())
	assert.ErrorIs(t, f.w.Stop(), ErrNotRunning)
}

func TestInferenceFailureStopsPipeline(t *testing.T) {
	f := newFixture(t)
	boom := fmt.Errorf("tensor shape mismatch: %w", detection.ErrRuntimeFailure)
	f.detector.err.Store(&boom)

	_, err := f.w.Start(context.Background(), StartRequest{Target: "0"})
	require.NoError(t, err)
	waitDone(t, f.w.Done())

	st := f.w.Status()
	assert.Equal(t, models.PipelineFailed, st.State)
	assert.Equal(t, "runtime_failure", st.ErrorKind)
	assert.Contains(t, st.LastError, "tensor shape mismatch")
	assert.True(t, f.lastSource().closed.Load())
	assert.Zero(t, f.presenter.count())
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t)

	th := float32(0.7)
	cfg, err := f.w.UpdateConfig(models.PipelineConfigPatch{ConfidenceThreshold: &th})
	require.NoError(t, err)
	assert.Equal(t, float32(0.7), cfg.ConfidenceThreshold)
	assert.Equal(t, float32(0.7), f.w.Status().Config.ConfidenceThreshold)

	bad := -1.0
	_, err = f.w.UpdateConfig(models.PipelineConfigPatch{TargetFPS: &bad})
	assert.Error(t, err)
	assert.Equal(t, 200.0, f.w.Config().TargetFPS)
}

func TestShutdownClosesDetector(t *testing.T) {
	f := newFixture(t)
	_, err := f.w.Start(context.Background(), StartRequest{Target: "0"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, f.w.Shutdown(ctx))
	assert.True(t, f.detector.closed.Load())
	assert.Equal(t, models.PipelineIdle, f.w.Status().State)
}

func TestHandleControl(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mirror := false
	cmd, err := json.Marshal(ControlCommand{Action: "start", Target: "http://cam.local", Mirror: &mirror})
	require.NoError(t, err)
	reply := f.w.HandleControl(ctx, cmd)
	assert.True(t, reply.OK, reply.Error)
	assert.Equal(t, models.PipelineRunning, reply.Status.State)

	reply = f.w.HandleControl(ctx, []byte(`{"action":"status"}`))
	assert.True(t, reply.OK)
	assert.Equal(t, "http://cam.local", reply.Status.Target)

	reply = f.w.HandleControl(ctx, []byte(`{"action":"config","config":{"target_fps":10}}`))
	assert.True(t, reply.OK, reply.Error)
	assert.Equal(t, 10.0, reply.Status.Config.TargetFPS)

	reply = f.w.HandleControl(ctx, []byte(`{"action":"config"}`))
	assert.False(t, reply.OK)

	reply = f.w.HandleControl(ctx, []byte(`{"action":"stop"}`))
	assert.True(t, reply.OK, reply.Error)
	assert.Equal(t, models.PipelineIdle, reply.Status.State)

	reply = f.w.HandleControl(ctx, []byte(`{"action":"reboot"}`))
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, "unknown action")

	reply = f.w.HandleControl(ctx, []byte(`not json`))
	assert.False(t, reply.OK)
	assert.Contains(t, reply.Error, "invalid command")
}

func TestStatusReportsStaleCapture(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.w.Status().Stale)

	f.w.cfg.FrameStaleThreshold = time.Nanosecond
	_, err := f.w.Start(context.Background(), StartRequest{Target: "cam"})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	assert.True(t, f.w.Status().Stale)

	f.w.cfg.FrameStaleThreshold = time.Hour
	assert.False(t, f.w.Status().Stale)
	require.NoError(t, f.w.Stop())
}
