package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"espcam-worker-go/internal/models"
)

func TestNewLiveConfigValidates(t *testing.T) {
	bad := testConfig()
	bad.TargetFPS = 0
	_, err := NewLiveConfig(bad)
	assert.Error(t, err)
}

func TestLiveConfigUpdate(t *testing.T) {
	lc, err := NewLiveConfig(testConfig())
	require.NoError(t, err)

	fps := 10.0
	next, err := lc.Update(models.PipelineConfigPatch{TargetFPS: &fps})
	require.NoError(t, err)
	assert.Equal(t, 10.0, next.TargetFPS)
	assert.Equal(t, float32(0.5), next.ConfidenceThreshold)
	assert.Equal(t, 100*time.Millisecond, lc.Load().Interval())

	th := float32(1.5)
	cur, err := lc.Update(models.PipelineConfigPatch{ConfidenceThreshold: &th})
	assert.Error(t, err)
	assert.Equal(t, float32(0.5), cur.ConfidenceThreshold)
	assert.Equal(t, float32(0.5), lc.Load().ConfidenceThreshold)
}

func TestLiveConfigConcurrentUpdates(t *testing.T) {
	lc, err := NewLiveConfig(testConfig())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			_, _ = lc.Update(models.PipelineConfigPatch{InferenceWidth: &w})
			_ = lc.Load()
		}(i)
	}
	wg.Wait()
	w := lc.Load().InferenceWidth
	assert.True(t, w >= 1 && w <= 50)
}

func TestLatencyWindowSummary(t *testing.T) {
	w := NewLatencyWindow(4)
	assert.Equal(t, LatencySummary{}, w.Summary())

	for _, ms := range []int{10, 20, 30, 40, 100} {
		w.Add(time.Duration(ms) * time.Millisecond)
	}
	s := w.Summary()
	// 10 was evicted
	assert.Equal(t, 4, s.Samples)
	assert.InDelta(t, 47.5, s.MeanMS, 1e-9)
	assert.InDelta(t, 100.0, s.MaxMS, 1e-9)
	assert.InDelta(t, 100.0, s.P95MS, 1e-9)
	assert.InDelta(t, 100.0, s.LastMS, 1e-9)

	w.Reset()
	assert.Zero(t, w.Summary().Samples)
}
