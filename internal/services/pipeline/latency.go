package pipeline

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// DefaultLatencyWindow is the number of samples kept for latency statistics
const DefaultLatencyWindow = 120

// LatencySummary is the rolling latency view exposed on the status endpoint
type LatencySummary struct {
	Samples int     `json:"samples"`
	MeanMS  float64 `json:"mean_ms"`
	P95MS   float64 `json:"p95_ms"`
	MaxMS   float64 `json:"max_ms"`
	LastMS  float64 `json:"last_ms"`
}

// LatencyWindow is a fixed-size ring of latency samples
type LatencyWindow struct {
	mu      sync.Mutex
	samples []float64 // milliseconds
	next    int
	full    bool
}

func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = DefaultLatencyWindow
	}
	return &LatencyWindow{samples: make([]float64, size)}
}

func (w *LatencyWindow) Add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = float64(d) / float64(time.Millisecond)
	w.next = (w.next + 1) % len(w.samples)
	if w.next == 0 {
		w.full = true
	}
}

func (w *LatencyWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next = 0
	w.full = false
}

// Summary computes mean, p95 and max over the current window
func (w *LatencyWindow) Summary() LatencySummary {
	w.mu.Lock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	if n == 0 {
		w.mu.Unlock()
		return LatencySummary{}
	}
	last := w.samples[(w.next-1+len(w.samples))%len(w.samples)]
	sorted := make([]float64, n)
	copy(sorted, w.samples[:n])
	w.mu.Unlock()

	sort.Float64s(sorted)
	return LatencySummary{
		Samples: n,
		MeanMS:  stat.Mean(sorted, nil),
		P95MS:   stat.Quantile(0.95, stat.Empirical, sorted, nil),
		MaxMS:   sorted[n-1],
		LastMS:  last,
	}
}
