package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"espcam-worker-go/internal/models"
)

func TestPresentKeepsLatestCopy(t *testing.T) {
	d := NewDisplay("test", nil)
	_, ok := d.take()
	assert.False(t, ok)

	first := models.Frame{Data: []byte{1, 2, 3}, Width: 1, Height: 1, Channels: 3, Seq: 1}
	second := models.Frame{Data: []byte{4, 5, 6}, Width: 1, Height: 1, Channels: 3, Seq: 2}
	require.NoError(t, d.Present(first, models.DetectionResult{}, models.CycleStats{}))
	require.NoError(t, d.Present(second, models.DetectionResult{}, models.CycleStats{}))
	second.Data[0] = 99

	f, ok := d.take()
	require.True(t, ok)
	assert.Equal(t, uint64(2), f.Seq)
	assert.Equal(t, []byte{4, 5, 6}, f.Data)

	_, ok = d.take()
	assert.False(t, ok)
	assert.Len(t, d.wake, 1)
}
