// Package framebuffer holds the single most recent frame handed from the
// capture goroutine to the pipeline driver.
package framebuffer

import (
	"sync"
	"sync/atomic"
	"time"

	"espcam-worker-go/internal/models"
)

// Stats is a point-in-time view of the buffer counters
type Stats struct {
	Published     uint64    `json:"published"`
	Overwritten   uint64    `json:"overwritten"`
	Taken         uint64    `json:"taken"`
	HasFrame      bool      `json:"has_frame"`
	LastPublished time.Time `json:"last_published"`
}

// Buffer is a single-slot, latest-wins mailbox.
//
// Publish never blocks on a reader and TakeLatest never waits for new data.
// Callers must not touch frame.Data after Publish; TakeLatest hands out copies,
// so the stored frame is never shared.
type Buffer struct {
	mu      sync.Mutex
	current *models.Frame
	unread  bool
	lastPub time.Time

	published   uint64
	overwritten uint64
	taken       uint64
}

func New() *Buffer {
	return &Buffer{}
}

// Publish replaces the stored frame unconditionally.
func (b *Buffer) Publish(frame models.Frame) {
	f := frame
	b.mu.Lock()
	if b.unread {
		atomic.AddUint64(&b.overwritten, 1)
	}
	b.current = &f
	b.unread = true
	b.lastPub = time.Now()
	b.mu.Unlock()
	atomic.AddUint64(&b.published, 1)
}

// TakeLatest returns a copy of the most recent frame, or false if none is stored.
// The same frame may be returned again if nothing newer was published.
func (b *Buffer) TakeLatest() (models.Frame, bool) {
	b.mu.Lock()
	cur := b.current
	b.unread = false
	if cur == nil {
		b.mu.Unlock()
		return models.Frame{}, false
	}
	out := cur.Clone()
	b.mu.Unlock()
	atomic.AddUint64(&b.taken, 1)
	return out, true
}

// Clear drops the stored frame so readers see "no frame".
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.current = nil
	b.unread = false
	b.mu.Unlock()
}

func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	has := b.current != nil
	last := b.lastPub
	b.mu.Unlock()
	return Stats{
		Published:     atomic.LoadUint64(&b.published),
		Overwritten:   atomic.LoadUint64(&b.overwritten),
		Taken:         atomic.LoadUint64(&b.taken),
		HasFrame:      has,
		LastPublished: last,
	}
}
