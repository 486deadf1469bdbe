package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"espcam-worker-go/internal/api/handlers"
	"espcam-worker-go/internal/config"
	"espcam-worker-go/internal/models"
	"espcam-worker-go/internal/services/source"
	"espcam-worker-go/internal/worker"
)

type fakePipeline struct {
	mu       sync.Mutex
	status   worker.Status
	startErr error
	stopErr  error
	cfg      models.PipelineConfig
	result   *models.DetectionResult
	jpeg     []byte
	started  []worker.StartRequest
	probed   []string
}

func (f *fakePipeline) Start(_ context.Context, req worker.StartRequest) (worker.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req)
	if f.startErr != nil {
		return f.status, f.startErr
	}
	f.status.State = models.PipelineRunning
	f.status.SessionID = "session-1"
	f.status.Target = req.Target
	return f.status, nil
}

func (f *fakePipeline) Stop() error { return f.stopErr }

func (f *fakePipeline) Status() worker.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakePipeline) UpdateConfig(patch models.PipelineConfigPatch) (models.PipelineConfig, error) {
	next := patch.Apply(f.cfg)
	if err := next.Validate(); err != nil {
		return f.cfg, err
	}
	f.cfg = next
	return next, nil
}

func (f *fakePipeline) LatestResult() (models.DetectionResult, bool) {
	if f.result == nil {
		return models.DetectionResult{}, false
	}
	return *f.result, true
}

func (f *fakePipeline) LatestJPEG() ([]byte, bool) {
	return f.jpeg, f.jpeg != nil
}

func (f *fakePipeline) Probe(_ context.Context, target string) source.ProbeReport {
	f.probed = append(f.probed, target)
	if strings.Contains(target, "dead") {
		return source.ProbeReport{Target: target, Message: "stream validation failed", ErrorKind: "unreachable"}
	}
	return source.ProbeReport{Target: target, Valid: true, Message: "ok", Width: 640, Height: 480}
}

type fakeStreamer struct{}

func (fakeStreamer) StreamMJPEGHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	fmt.Fprint(w, "--frame\r\n")
}

func newTestServer(t *testing.T) (*fakePipeline, http.Handler) {
	t.Helper()
	cfg := &config.Config{WorkerID: "espcam-1", Version: "1.0.0", Port: 8000, SwaggerHost: "localhost:8000"}
	p := &fakePipeline{
		status: worker.Status{WorkerID: "espcam-1", State: models.PipelineIdle, Model: "onnx:yolov8n"},
		cfg:    models.PipelineConfig{ConfidenceThreshold: 0.5, TargetFPS: 33, InferenceWidth: 640, InferenceHeight: 360},
	}
	return p, NewServer(cfg, p, fakeStreamer{}).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndInfo(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	health := decode[handlers.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, models.PipelineIdle, health.Pipeline)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	info := decode[handlers.WorkerInfoResponse](t, rec)
	assert.Equal(t, "espcam-1", info.WorkerID)
	assert.Equal(t, "onnx:yolov8n", info.Model)
}

func TestRequestIDIsEchoed(t *testing.T) {
	_, h := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestStartPipeline(t *testing.T) {
	p, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/pipeline/start", `{"target":"http://192.168.1.50","mirror":false}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	st := decode[worker.Status](t, rec)
	assert.Equal(t, models.PipelineRunning, st.State)
	assert.Equal(t, "session-1", st.SessionID)

	require.Len(t, p.started, 1)
	require.NotNil(t, p.started[0].Mirror)
	assert.False(t, *p.started[0].Mirror)
}

func TestStartPipelineErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		err  error
		code int
		kind string
	}{
		{"missing target", `{}`, nil, http.StatusBadRequest, "bad_request"},
		{"unreachable", `{"target":"10.0.0.9"}`, &source.ConnectError{Target: "10.0.0.9", Kind: source.ErrUnreachable}, http.StatusBadGateway, "unreachable"},
		{"no stream", `{"target":"10.0.0.9"}`, &source.ConnectError{Target: "10.0.0.9", Kind: source.ErrStreamUnavailable}, http.StatusBadGateway, "stream_unavailable"},
		{"busy", `{"target":"0"}`, worker.ErrAlreadyRunning, http.StatusConflict, "already_running"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, h := newTestServer(t)
			p.startErr = tc.err

			rec := do(t, h, http.MethodPost, "/pipeline/start", tc.body)
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, tc.kind, decode[handlers.ErrorResponse](t, rec).Kind)
		})
	}
}

func TestStopPipeline(t *testing.T) {
	p, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/pipeline/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	p.stopErr = worker.ErrNotRunning
	rec = do(t, h, http.MethodPost, "/pipeline/stop", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_running", decode[handlers.ErrorResponse](t, rec).Kind)
}

func TestUpdateConfig(t *testing.T) {
	_, h := newTestServer(t)

	rec := do(t, h, http.MethodPatch, "/pipeline/config", `{"confidence_threshold":0.7,"show_stats":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cfg := decode[models.PipelineConfig](t, rec)
	assert.InDelta(t, 0.7, cfg.ConfidenceThreshold, 1e-6)
	assert.True(t, cfg.ShowStats)
	assert.Equal(t, 640, cfg.InferenceWidth)

	rec = do(t, h, http.MethodPatch, "/pipeline/config", `{"target_fps":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPatch, "/pipeline/config", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetectionsAndFrame(t *testing.T) {
	p, h := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/pipeline/detections", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/pipeline/frame", "").Code)

	p.result = &models.DetectionResult{FrameSeq: 4, Detections: []models.Detection{{ClassName: "person", Confidence: 0.9}}}
	p.jpeg = []byte{0xFF, 0xD8, 0xFF}

	rec := do(t, h, http.MethodGet, "/pipeline/detections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[models.DetectionResult](t, rec)
	assert.Equal(t, uint64(4), res.FrameSeq)
	assert.Len(t, res.Detections, 1)

	rec = do(t, h, http.MethodGet, "/pipeline/frame", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, p.jpeg, rec.Body.Bytes())
}

func TestStreamDelegates(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/pipeline/stream", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "multipart/x-mixed-replace")
}

func TestProbeCamera(t *testing.T) {
	p, h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/cameras/probe", `{"target":"192.168.1.50"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[source.ProbeReport](t, rec)
	assert.True(t, report.Valid)
	assert.Equal(t, 640, report.Width)

	rec = do(t, h, http.MethodPost, "/cameras/probe", `{"target":"dead.local"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	report = decode[source.ProbeReport](t, rec)
	assert.False(t, report.Valid)
	assert.Equal(t, "unreachable", report.ErrorKind)

	rec = do(t, h, http.MethodPost, "/cameras/probe", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"192.168.1.50", "dead.local"}, p.probed)
}

func TestCORSPreflight(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodOptions, "/pipeline/start", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSwaggerDocs(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/docs/doc.json", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/pipeline/start")
}
