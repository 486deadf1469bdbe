package pipeline

import (
	"fmt"
	"sync/atomic"

	"espcam-worker-go/internal/models"
)

// LiveConfig holds the pipeline settings the driver reads at the start of every
// cycle. Updates become visible on the next cycle, never mid-cycle.
type LiveConfig struct {
	cur atomic.Pointer[models.PipelineConfig]
}

func NewLiveConfig(initial models.PipelineConfig) (*LiveConfig, error) {
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	lc := &LiveConfig{}
	lc.cur.Store(&initial)
	return lc, nil
}

// Load returns a snapshot of the current settings
func (lc *LiveConfig) Load() models.PipelineConfig {
	return *lc.cur.Load()
}

// Store replaces the settings after validating them
func (lc *LiveConfig) Store(c models.PipelineConfig) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline config: %w", err)
	}
	lc.cur.Store(&c)
	return nil
}

// Update applies a partial patch atomically and returns the resulting settings.
// An invalid result leaves the current settings untouched.
func (lc *LiveConfig) Update(patch models.PipelineConfigPatch) (models.PipelineConfig, error) {
	for {
		old := lc.cur.Load()
		next := patch.Apply(*old)
		if err := next.Validate(); err != nil {
			return *old, fmt.Errorf("invalid pipeline config: %w", err)
		}
		if lc.cur.CompareAndSwap(old, &next) {
			return next, nil
		}
	}
}
