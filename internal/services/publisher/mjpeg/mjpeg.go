package mjpeg

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"espcam-worker-go/internal/helpers"
	"espcam-worker-go/internal/models"
)

const boundary = "frame"

// DefaultKeepalive re-sends the last frame so idle proxies keep the stream open
const DefaultKeepalive = 2 * time.Second

// Encoder turns a frame into JPEG bytes
type Encoder func(f models.Frame, quality int) ([]byte, error)

// Publisher keeps the latest annotated frame as JPEG and pushes it to every
// connected MJPEG viewer.
type Publisher struct {
	quality   int
	keepalive time.Duration
	encode    Encoder
	logger    zerolog.Logger

	jpegMutex  sync.RWMutex
	latestJPEG []byte
	version    uint64 // bumped on every publish
	updatedAt  time.Time

	notifyMutex sync.Mutex
	viewers     map[uint64]chan struct{}
	nextViewer  uint64
	closed      bool
}

func NewPublisher(quality int, logger *zerolog.Logger) *Publisher {
	if quality <= 0 || quality > 100 {
		quality = helpers.MediumQuality
	}
	p := &Publisher{
		quality:   quality,
		keepalive: DefaultKeepalive,
		encode:    helpers.EncodeJPEG,
		viewers:   make(map[uint64]chan struct{}),
	}
	if logger != nil {
		p.logger = logger.With().Str("component", "mjpeg").Logger()
	} else {
		p.logger = log.With().Str("service", "mjpeg").Logger()
	}
	return p
}

// WithEncoder replaces the OpenCV JPEG encoder
func (p *Publisher) WithEncoder(e Encoder) *Publisher {
	p.encode = e
	return p
}

// WithKeepalive sets the re-send interval for idle streams
func (p *Publisher) WithKeepalive(d time.Duration) *Publisher {
	p.keepalive = d
	return p
}

// Present encodes the annotated frame and wakes the viewers
func (p *Publisher) Present(frame models.Frame, _ models.DetectionResult, _ models.CycleStats) error {
	return p.PublishFrame(frame)
}

func (p *Publisher) PublishFrame(frame models.Frame) error {
	jpeg, err := p.encode(frame, p.quality)
	if err != nil {
		return fmt.Errorf("mjpeg encode frame %d: %w", frame.Seq, err)
	}

	p.jpegMutex.Lock()
	p.latestJPEG = jpeg
	p.version++
	p.updatedAt = time.Now()
	p.jpegMutex.Unlock()

	p.notifyViewers()
	return nil
}

// LatestJPEG returns the last published frame and its publish version
func (p *Publisher) LatestJPEG() ([]byte, uint64, bool) {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	if len(p.latestJPEG) == 0 {
		return nil, 0, false
	}
	return p.latestJPEG, p.version, true
}

// UpdatedAt is the time of the last publish
func (p *Publisher) UpdatedAt() time.Time {
	p.jpegMutex.RLock()
	defer p.jpegMutex.RUnlock()
	return p.updatedAt
}

// Clear drops the stored frame; viewers fall back to the placeholder on reconnect
func (p *Publisher) Clear() {
	p.jpegMutex.Lock()
	p.latestJPEG = nil
	p.jpegMutex.Unlock()
}

func (p *Publisher) Viewers() int {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	return len(p.viewers)
}

func (p *Publisher) notifyViewers() {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	for _, notify := range p.viewers {
		select {
		case notify <- struct{}{}:
		default:
		}
	}
}

func (p *Publisher) subscribe() (uint64, chan struct{}, bool) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	if p.closed {
		return 0, nil, false
	}
	p.nextViewer++
	notify := make(chan struct{}, 1)
	p.viewers[p.nextViewer] = notify
	return p.nextViewer, notify, true
}

func (p *Publisher) unsubscribe(id uint64) {
	p.notifyMutex.Lock()
	defer p.notifyMutex.Unlock()
	if notify, exists := p.viewers[id]; exists {
		close(notify)
		delete(p.viewers, id)
	}
}

// StreamMJPEGHTTP serves multipart/x-mixed-replace until the client leaves or
// the publisher shuts down.
func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, notify, ok := p.subscribe()
	if !ok {
		http.Error(w, "Publisher shut down", http.StatusServiceUnavailable)
		return
	}
	defer p.unsubscribe(id)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	writePart := func(jpeg []byte) bool {
		if _, err := io.WriteString(w, "--"+boundary+"\r\n"); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "Content-Type: image/jpeg\r\n"); err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(jpeg)); err != nil {
			return false
		}
		if _, err := w.Write(jpeg); err != nil {
			return false
		}
		if _, err := io.WriteString(w, "\r\n"); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	first, lastSent, ok := p.LatestJPEG()
	if !ok {
		first = placeholderJPEG()
	}
	if len(first) > 0 && !writePart(first) {
		return
	}
	p.logger.Debug().Str("remote", r.RemoteAddr).Uint64("viewer", id).Msg("MJPEG viewer connected")

	keepaliveTicker := time.NewTicker(p.keepalive)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Uint64("viewer", id).Msg("MJPEG viewer disconnected")
			return
		case _, open := <-notify:
			if !open {
				return
			}
			buf, version, ok := p.LatestJPEG()
			if ok && version != lastSent {
				if !writePart(buf) {
					return
				}
				lastSent = version
			}
		case <-keepaliveTicker.C:
			if buf, _, ok := p.LatestJPEG(); ok {
				if !writePart(buf) {
					return
				}
			}
		}
	}
}

var (
	placeholderOnce sync.Once
	placeholder     []byte
)

func placeholderJPEG() []byte {
	placeholderOnce.Do(func() {
		mat := gocv.NewMatWithSize(360, 640, gocv.MatTypeCV8UC3)
		defer mat.Close()
		mat.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})

		textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
		gocv.PutText(&mat, "Waiting for camera...", image.Pt(20, 190), gocv.FontHersheySimplex, 1.0, textColor, 2)

		buf, err := helpers.EncodeMatJPEG(mat, helpers.MediumQuality)
		if err == nil {
			placeholder = buf
		}
	})
	return placeholder
}

// Shutdown disconnects every viewer
func (p *Publisher) Shutdown() {
	p.notifyMutex.Lock()
	p.closed = true
	for id, notify := range p.viewers {
		close(notify)
		delete(p.viewers, id)
	}
	p.notifyMutex.Unlock()
	p.logger.Info().Msg("MJPEG Publisher shutting down")
}
