// Package window shows annotated frames in a local OpenCV window.
package window

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

const (
	keyEsc = 27
	keyQ   = 'q'

	// event pump interval while no frames arrive
	idlePoll = 30 * time.Millisecond
)

// Display is a latest-wins sink drained by Run on the OS main thread.
type Display struct {
	title  string
	logger zerolog.Logger

	mu      sync.Mutex
	pending *models.Frame
	wake    chan struct{}
}

func NewDisplay(title string, logger *zerolog.Logger) *Display {
	d := &Display{
		title: title,
		wake:  make(chan struct{}, 1),
	}
	if logger != nil {
		d.logger = logger.With().Str("component", "window").Logger()
	} else {
		d.logger = log.With().Str("service", "window").Logger()
	}
	return d
}

// Present keeps a copy of the frame for the next repaint
func (d *Display) Present(frame models.Frame, _ models.DetectionResult, _ models.CycleStats) error {
	f := frame.Clone()
	d.mu.Lock()
	d.pending = &f
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *Display) take() (models.Frame, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return models.Frame{}, false
	}
	f := *d.pending
	d.pending = nil
	return f, true
}

// Run owns the window until ctx is done or the user presses q or Esc, in which
// case it returns true. It must be called from the main goroutine.
func (d *Display) Run(ctx context.Context) bool {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	win := gocv.NewWindow(d.title)
	defer win.Close()
	d.logger.Info().Str("title", d.title).Msg("Display window opened")

	poll := time.NewTicker(idlePoll)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-d.wake:
		case <-poll.C:
		}

		frame, ok := d.take()
		if ok {
			mat, err := helpers.FrameToMat(frame)
			if err != nil {
				d.logger.Warn().Err(err).Uint64("frame_seq", frame.Seq).Msg("Cannot display frame")
				continue
			}
			win.IMShow(mat)
			mat.Close()
		}

		switch win.WaitKey(1) {
		case keyEsc, keyQ:
			d.logger.Info().Msg("Display window closed by user")
			return true
		}
	}
}
