// Package worker owns the detection session: it opens the camera, runs the
// capture loop and the pipeline driver, and tears both down in order.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"espcam-worker-go/internal/config"
	"espcam-worker-go/internal/logging"
	"espcam-worker-go/internal/models"
	"espcam-worker-go/internal/services/annotation"
	"espcam-worker-go/internal/services/capture"
	"espcam-worker-go/internal/services/detection"
	"espcam-worker-go/internal/services/framebuffer"
	"espcam-worker-go/internal/services/messaging"
	"espcam-worker-go/internal/services/pipeline"
	"espcam-worker-go/internal/services/source"
)

var (
	ErrAlreadyRunning = errors.New("pipeline already running")
	ErrNotRunning     = errors.New("pipeline not running")
	ErrNoTarget       = errors.New("no camera target given")
)

// Opener opens a frame source; source.Open in production
type Opener func(ctx context.Context, target string, opts source.Options) (source.FrameSource, error)

// Detector is the detection stage as the worker sees it
type Detector interface {
	pipeline.Detector
	Close() error
}

// Presenter receives annotated frames and serves the latest one as JPEG
type Presenter interface {
	pipeline.Sink
	LatestJPEG() ([]byte, bool)
	Clear()
}

// Deps are the collaborators a Worker is built from
type Deps struct {
	Detector  Detector
	ModelName string
	Presenter Presenter
	Annotator pipeline.Annotator  // defaults to the OpenCV annotator
	Events    messaging.Publisher // optional detection events
	Opener    Opener              // defaults to source.Open
	Sinks     []pipeline.Sink     // extra sinks, the display window in desktop mode
}

// StartRequest selects the camera for a new session
type StartRequest struct {
	Target string `json:"target" binding:"required" example:"http://192.168.1.50"`
	Mirror *bool  `json:"mirror,omitempty" example:"true"`
}

// Status is the control-surface view of the worker
type Status struct {
	WorkerID  string                  `json:"worker_id"`
	State     models.PipelineState    `json:"state"`
	SessionID string                  `json:"session_id,omitempty"`
	Target    string                  `json:"target,omitempty"`
	StartedAt *time.Time              `json:"started_at,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
	ErrorKind string                  `json:"error_kind,omitempty"`
	Model     string                  `json:"model"`
	Config    models.PipelineConfig   `json:"config"`
	Capture   capture.Stats           `json:"capture"`
	Stale     bool                    `json:"stale"`
	Buffer    framebuffer.Stats       `json:"buffer"`
	Cycles    uint64                  `json:"cycles"`
	LastCycle *models.CycleStats      `json:"last_cycle,omitempty"`
	Latency   pipeline.LatencySummary `json:"inference_latency"`
}

type session struct {
	id        string
	target    string
	startedAt time.Time
	src       source.FrameSource
	cancel    context.CancelFunc
	done      chan struct{}
}

type Worker struct {
	cfg    *config.Config
	logger zerolog.Logger
	deps   Deps
	buffer *framebuffer.Buffer
	loop   *capture.Loop
	live   *pipeline.LiveConfig
	driver *pipeline.Driver

	mu       sync.Mutex
	state    models.PipelineState
	current  *session
	lastDone chan struct{}
	lastErr  error
}

func New(cfg *config.Config, deps Deps) (*Worker, error) {
	if deps.Detector == nil {
		return nil, fmt.Errorf("worker requires a detector")
	}
	if deps.Presenter == nil {
		return nil, fmt.Errorf("worker requires a presenter")
	}
	if deps.Opener == nil {
		deps.Opener = source.Open
	}
	if deps.Annotator == nil {
		deps.Annotator = annotation.NewAnnotator(annotation.StyleFromConfig(cfg))
	}

	live, err := pipeline.NewLiveConfig(cfg.PipelineDefaults())
	if err != nil {
		return nil, err
	}

	logger := logging.NewServiceLogger(cfg, "worker")
	w := &Worker{
		cfg:    cfg,
		logger: logger,
		deps:   deps,
		buffer: framebuffer.New(),
		live:   live,
		state:  models.PipelineIdle,
	}
	captureLogger := logging.NewServiceLogger(cfg, "capture")
	w.loop = capture.NewLoop(w.buffer, &captureLogger)

	sinks := pipeline.MultiSink{deps.Presenter}
	if deps.Events != nil {
		sinks = append(sinks, messaging.NewDetectionEvents(deps.Events, cfg.DetectionsSubject, cfg.WorkerID, w.sessionInfo))
	}
	sinks = append(sinks, deps.Sinks...)

	hud := annotation.HUDOptions{FPS: cfg.ShowFPS, Detections: cfg.ShowDetectionsCount, Latency: cfg.ShowLatency}
	pipelineLogger := logging.NewServiceLogger(cfg, "pipeline")
	w.driver = pipeline.NewDriver(w.buffer, deps.Detector, deps.Annotator, sinks, live, &pipelineLogger).
		WithHUD(func(s models.CycleStats) []string { return annotation.StatsLines(s, hud) })

	return w, nil
}

// SetStopGrace forwards to the capture loop
func (w *Worker) SetStopGrace(d time.Duration) {
	w.loop.SetStopGrace(d)
}

func (w *Worker) sessionInfo() (string, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return "", ""
	}
	return w.current.id, w.current.target
}

func (w *Worker) sourceOptions(mirror bool) source.Options {
	l := logging.NewServiceLogger(w.cfg, "source")
	return source.Options{
		ProbeTimeout: w.cfg.ProbeTimeout,
		Mirror:       mirror,
		Width:        w.cfg.CaptureWidth,
		Height:       w.cfg.CaptureHeight,
		Logger:       &l,
	}
}

// Start opens req.Target and runs a new session. It returns once the source is
// connected and both goroutines are running; connection errors are returned as is.
func (w *Worker) Start(ctx context.Context, req StartRequest) (Status, error) {
	if req.Target == "" {
		return w.Status(), ErrNoTarget
	}

	w.mu.Lock()
	if w.current != nil || w.state == models.PipelineStarting {
		w.mu.Unlock()
		return w.Status(), ErrAlreadyRunning
	}
	w.state = models.PipelineStarting
	w.lastErr = nil
	w.mu.Unlock()

	mirror := w.live.Load().Mirror
	if req.Mirror != nil {
		mirror = *req.Mirror
	}
	logger := logging.WithCamera(w.logger, req.Target)
	logger.Info().Bool("mirror", mirror).Msg("Starting pipeline")

	src, err := w.deps.Opener(ctx, req.Target, w.sourceOptions(mirror))
	if err != nil {
		w.fail(err)
		logger.Error().Err(err).Str("error_kind", source.ErrorKind(err)).Msg("Failed to open camera")
		return w.Status(), err
	}

	w.buffer.Clear()
	w.driver.Reset()
	w.deps.Presenter.Clear()

	if err := w.loop.Start(src); err != nil {
		src.Close()
		w.fail(err)
		return w.Status(), err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sess := &session{
		id:        uuid.New().String(),
		target:    req.Target,
		startedAt: time.Now(),
		src:       src,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	w.mu.Lock()
	w.current = sess
	w.lastDone = sess.done
	w.state = models.PipelineRunning
	w.mu.Unlock()

	go w.supervise(runCtx, sess)

	logger.Info().Str("session_id", sess.id).Msg("Pipeline running")
	return w.Status(), nil
}

// supervise runs the driver and watches the capture loop. Whichever ends first
// ends the session; teardown order is driver, capture, source.
func (w *Worker) supervise(ctx context.Context, sess *session) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return w.driver.Run(gctx)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-w.loop.Done():
			if err := w.loop.Err(); err != nil {
				return fmt.Errorf("capture ended: %w", err)
			}
			return nil
		}
	})

	err := g.Wait()
	w.loop.Stop()
	if cerr := sess.src.Close(); cerr != nil {
		w.logger.Warn().Err(cerr).Str("session_id", sess.id).Msg("Error releasing source")
	}
	w.finish(sess, err)
}

func (w *Worker) finish(sess *session, err error) {
	sess.cancel()

	w.mu.Lock()
	if w.current == sess {
		w.current = nil
	}
	w.lastErr = err
	if err != nil {
		w.state = models.PipelineFailed
	} else {
		w.state = models.PipelineIdle
	}
	w.mu.Unlock()
	close(sess.done)

	ev := w.logger.Info()
	if err != nil {
		ev = w.logger.Error().Err(err).Str("error_kind", errorKind(err))
	}
	ev.Str("session_id", sess.id).
		Str("target", sess.target).
		Dur("duration", time.Since(sess.startedAt)).
		Uint64("cycles", w.driver.Cycles()).
		Msg("Pipeline session ended")
}

func (w *Worker) fail(err error) {
	w.mu.Lock()
	w.state = models.PipelineFailed
	w.lastErr = err
	w.mu.Unlock()
}

// Stop ends the running session and waits for teardown.
func (w *Worker) Stop() error {
	w.mu.Lock()
	sess := w.current
	if sess == nil {
		w.mu.Unlock()
		return ErrNotRunning
	}
	w.state = models.PipelineStopping
	w.mu.Unlock()

	w.logger.Info().Str("session_id", sess.id).Msg("Stopping pipeline")
	sess.cancel()
	<-sess.done
	return nil
}

// Done is closed when the most recent session ends; nil before the first Start
func (w *Worker) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastDone
}

// UpdateConfig applies a live settings patch; it takes effect on the next cycle
func (w *Worker) UpdateConfig(patch models.PipelineConfigPatch) (models.PipelineConfig, error) {
	cfg, err := w.live.Update(patch)
	if err != nil {
		return cfg, err
	}
	w.logger.Info().Interface("config", cfg).Msg("Pipeline config updated")
	return cfg, nil
}

func (w *Worker) Config() models.PipelineConfig {
	return w.live.Load()
}

// Probe checks a camera target without touching the running session
func (w *Worker) Probe(ctx context.Context, target string) source.ProbeReport {
	return source.Probe(ctx, target, w.sourceOptions(false), w.cfg.ThumbnailWidth)
}

// LatestJPEG is the last annotated frame
func (w *Worker) LatestJPEG() ([]byte, bool) {
	return w.deps.Presenter.LatestJPEG()
}

// LatestResult is the last detection result of the current or last session
func (w *Worker) LatestResult() (models.DetectionResult, bool) {
	return w.driver.LastResult()
}

func (w *Worker) Status() Status {
	w.mu.Lock()
	st := Status{
		WorkerID: w.cfg.WorkerID,
		State:    w.state,
		Model:    w.deps.ModelName,
	}
	if w.current != nil {
		started := w.current.startedAt
		st.SessionID = w.current.id
		st.Target = w.current.target
		st.StartedAt = &started
		st.Uptime = time.Since(started).Round(time.Second).String()
	}
	if w.lastErr != nil {
		st.LastError = w.lastErr.Error()
		st.ErrorKind = errorKind(w.lastErr)
	}
	w.mu.Unlock()

	st.Config = w.live.Load()
	st.Capture = w.loop.Stats()
	if st.StartedAt != nil && w.cfg.FrameStaleThreshold > 0 {
		last := st.Capture.LastFrameAt
		if last.IsZero() {
			last = *st.StartedAt
		}
		st.Stale = time.Since(last) > w.cfg.FrameStaleThreshold
	}
	st.Buffer = w.buffer.Stats()
	st.Cycles = w.driver.Cycles()
	if s, ok := w.driver.LastStats(); ok {
		st.LastCycle = &s
	}
	st.Latency = w.driver.Latency()
	return st
}

// Shutdown stops any session and releases the detector
func (w *Worker) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		if err := w.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
			w.logger.Warn().Err(err).Msg("Error stopping pipeline")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("pipeline did not stop: %w", ctx.Err())
	}
	return w.deps.Detector.Close()
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, detection.ErrModelUnavailable):
		return "model_unavailable"
	case errors.Is(err, detection.ErrRuntimeFailure):
		return "runtime_failure"
	case errors.Is(err, capture.ErrSourceBound), errors.Is(err, capture.ErrNotIdle):
		return "busy"
	}
	return source.ErrorKind(err)
}
