// Package capture runs the producer side of the pipeline: one goroutine that
// reads frames from a source and overwrites the shared frame buffer.
package capture

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"espcam-worker-go/internal/models"
)

var (
	ErrNotIdle            = errors.New("capture loop is not idle")
	ErrSourceNotConnected = errors.New("source is not connected")
	ErrSourceBound        = errors.New("source already bound to a capture loop")
)

// LoopState is the atomic lifecycle of a capture loop
type LoopState int32

const (
	StateIdle LoopState = iota
	StateRunning
	StateStopping
)

func (s LoopState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Source is the part of a frame source the loop drives.
//
// Stop calls Close while a ReadNext may still be in flight, so Close must be
// safe during ReadNext and idempotent. It should unblock the pending read; a
// backend that cannot interrupt a read must let it finish with an error.
type Source interface {
	ReadNext() (models.Frame, error)
	Close() error
	State() models.ConnectionState
	Target() string
}

// FrameStore receives every frame read; the latest one wins
type FrameStore interface {
	Publish(frame models.Frame)
	Clear()
}

// DefaultStopGrace is how long Stop waits for a cooperative exit before closing
// the source underneath a blocked read.
const DefaultStopGrace = 2 * time.Second

const fpsWindowSize = 30

// bindings enforces that a source is read by at most one loop
var bindings sync.Map

// Stats is a snapshot of the loop counters
type Stats struct {
	State       string    `json:"state"`
	Target      string    `json:"target,omitempty"`
	FramesRead  uint64    `json:"frames_read"`
	LastFrameAt time.Time `json:"last_frame_at"`
	FPS         float64   `json:"fps"`
	LastError   string    `json:"last_error,omitempty"`
}

// Loop moves frames from one Source into a FrameStore until stopped or the source fails.
// A read failure is terminal for the run: the source is closed, the store cleared and
// the loop returns to idle. Reconnecting is the caller's job.
type Loop struct {
	store     FrameStore
	logger    zerolog.Logger
	stopGrace time.Duration

	state atomic.Int32

	// pubMu orders the stop request against Publish so nothing read after
	// Stop was requested reaches the store.
	pubMu   sync.Mutex
	stopReq bool

	mu         sync.Mutex
	src        Source
	done       chan struct{}
	lastErr    error
	frameTimes []time.Time

	framesRead atomic.Uint64
	lastFrame  atomic.Int64
}

func NewLoop(store FrameStore, logger *zerolog.Logger) *Loop {
	l := &Loop{
		store:     store,
		stopGrace: DefaultStopGrace,
	}
	if logger != nil {
		l.logger = logger.With().Str("component", "capture_loop").Logger()
	} else {
		l.logger = log.With().Str("service", "capture").Logger()
	}
	return l
}

// SetStopGrace overrides DefaultStopGrace
func (l *Loop) SetStopGrace(d time.Duration) {
	l.stopGrace = d
}

func (l *Loop) State() LoopState {
	return LoopState(l.state.Load())
}

// Start binds src and spawns the capture goroutine.
func (l *Loop) Start(src Source) error {
	if !l.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("start capture: %w (state=%s)", ErrNotIdle, l.State())
	}
	if st := src.State(); st != models.StateConnected {
		l.state.Store(int32(StateIdle))
		return fmt.Errorf("start capture on %s: %w (state=%s)", src.Target(), ErrSourceNotConnected, st)
	}
	if _, loaded := bindings.LoadOrStore(src, l); loaded {
		l.state.Store(int32(StateIdle))
		return fmt.Errorf("start capture on %s: %w", src.Target(), ErrSourceBound)
	}

	done := make(chan struct{})
	l.pubMu.Lock()
	l.stopReq = false
	l.pubMu.Unlock()

	l.mu.Lock()
	l.src = src
	l.done = done
	l.lastErr = nil
	l.frameTimes = l.frameTimes[:0]
	l.mu.Unlock()
	l.framesRead.Store(0)
	l.lastFrame.Store(0)

	l.logger.Info().Str("target", src.Target()).Msg("Capture loop started")
	go l.run(src, done)
	return nil
}

func (l *Loop) run(src Source, done chan struct{}) {
	var runErr error
	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("capture loop panic: %v", r)
			l.logger.Error().Interface("panic", r).Str("target", src.Target()).Msg("Capture loop panicked")
		}
		l.finish(src, done, runErr)
	}()

	for {
		if l.stopRequested() {
			return
		}

		frame, err := src.ReadNext()
		if err != nil {
			if l.stopRequested() {
				// read aborted by Stop closing the source
				return
			}
			runErr = err
			l.logger.Error().Err(err).Str("target", src.Target()).Uint64("frames_read", l.framesRead.Load()).Msg("Frame read failed, stopping capture")
			return
		}

		l.pubMu.Lock()
		if l.stopReq {
			l.pubMu.Unlock()
			return
		}
		l.store.Publish(frame)
		l.pubMu.Unlock()

		l.recordFrame(time.Now())
	}
}

func (l *Loop) stopRequested() bool {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()
	return l.stopReq
}

func (l *Loop) recordFrame(now time.Time) {
	l.framesRead.Add(1)
	l.lastFrame.Store(now.UnixNano())

	l.mu.Lock()
	l.frameTimes = append(l.frameTimes, now)
	if len(l.frameTimes) > fpsWindowSize {
		l.frameTimes = l.frameTimes[1:]
	}
	l.mu.Unlock()
}

func (l *Loop) finish(src Source, done chan struct{}, runErr error) {
	l.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))

	if err := src.Close(); err != nil {
		l.logger.Warn().Err(err).Str("target", src.Target()).Msg("Error closing source")
	}
	l.store.Clear()
	bindings.Delete(src)

	l.mu.Lock()
	l.lastErr = runErr
	l.src = nil
	l.mu.Unlock()

	l.state.Store(int32(StateIdle))
	close(done)

	l.logger.Info().
		Str("target", src.Target()).
		Uint64("frames_read", l.framesRead.Load()).
		Bool("failed", runErr != nil).
		Msg("Capture loop exited")
}

// Stop requests a cooperative stop and waits until the goroutine has exited and
// the source is released. Safe to call in any state and more than once.
func (l *Loop) Stop() {
	l.mu.Lock()
	done := l.done
	src := l.src
	l.mu.Unlock()
	if done == nil {
		return
	}

	l.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	l.pubMu.Lock()
	l.stopReq = true
	l.pubMu.Unlock()

	timer := time.NewTimer(l.stopGrace)
	defer timer.Stop()

	select {
	case <-done:
		return
	case <-timer.C:
	}

	if src != nil {
		l.logger.Warn().Str("target", src.Target()).Dur("grace", l.stopGrace).Msg("Capture loop still blocked in read, closing source")
		go src.Close()
	}
	<-done
}

// Done is closed when the current run ends. It is nil before the first Start.
func (l *Loop) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Err is the terminal error of the last run, nil after a clean stop.
func (l *Loop) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// CalculateFPS returns the capture rate over the rolling window
func (l *Loop) CalculateFPS() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frameTimes) < 2 {
		return 0
	}
	span := l.frameTimes[len(l.frameTimes)-1].Sub(l.frameTimes[0]).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(len(l.frameTimes)-1) / span
}

func (l *Loop) Stats() Stats {
	st := Stats{
		State:      l.State().String(),
		FramesRead: l.framesRead.Load(),
		FPS:        l.CalculateFPS(),
	}
	if ns := l.lastFrame.Load(); ns > 0 {
		st.LastFrameAt = time.Unix(0, ns)
	}
	l.mu.Lock()
	if l.src != nil {
		st.Target = l.src.Target()
	}
	if l.lastErr != nil {
		st.LastError = l.lastErr.Error()
	}
	l.mu.Unlock()
	return st
}
